package manifest

import "errors"

// Sentinel errors for the manifest package
var (
	// ErrNoResources indicates the manifest has no resources defined
	ErrNoResources = errors.New("manifest must declare at least one resource")

	// ErrEmptyURL indicates a resource is missing the required URL field
	ErrEmptyURL = errors.New("resource URL cannot be empty")

	// ErrInvalidFormat indicates the manifest file is not valid YAML or JSON
	ErrInvalidFormat = errors.New("manifest must be valid YAML or JSON")

	// ErrFileNotFound indicates the manifest file does not exist
	ErrFileNotFound = errors.New("manifest file not found")

	// ErrUnsupportedExt indicates an unsupported file extension
	ErrUnsupportedExt = errors.New("unsupported file extension (use .yaml, .yml, or .json)")
)
