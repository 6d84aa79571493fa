// Package manifest provides types and utilities for loading and validating
// gofer manifest files. A manifest declares multiple resources with
// per-resource download options, enabling batch fetching.
//
// # Manifest Format
//
// Manifests can be written in YAML or JSON format:
//
//	resources:
//	  - url: https://example.com/pkg-1.0.tar.gz
//	    name: pkg
//	    version: "1.0"
//	    mirrors:
//	      - https://mirror.example.org/pkg-1.0.tar.gz
//	  - url: https://github.com/org/repo.git
//	    tag: v2.3.0
//	    submodules: true
//	  - url: https://svn.example.com/project/trunk
//	    strategy: svn
//	    head: true
//	options:
//	  continue_on_error: true
//	  concurrency: 4
//
// # Usage
//
// Load a manifest file:
//
//	cfg, err := manifest.Load("resources.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, resource := range cfg.Resources {
//	    desc := resource.Descriptor()
//	    // Feed the descriptor to the download layer
//	}
//
// # Error Handling
//
// The package defines sentinel errors for common failure cases:
//   - ErrNoResources: manifest has no resources defined
//   - ErrEmptyURL: resource is missing the required URL field
//   - ErrInvalidFormat: file is not valid YAML/JSON
//   - ErrFileNotFound: manifest file does not exist
//   - ErrUnsupportedExt: unsupported file extension
package manifest
