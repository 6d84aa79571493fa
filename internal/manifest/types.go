package manifest

import (
	"fmt"
	"strings"

	"github.com/goferpkg/gofer/internal/domain"
)

// Config represents the complete manifest configuration
type Config struct {
	Resources []Resource `yaml:"resources" json:"resources"`
	Options   Options    `yaml:"options" json:"options"`
}

// Resource declares one artifact to acquire. Strategy names the download
// strategy explicitly; when empty the URL shape decides. The remaining
// fields mirror the per-resource download options.
type Resource struct {
	URL      string `yaml:"url" json:"url"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Version  string `yaml:"version,omitempty" json:"version,omitempty"`
	Head     bool   `yaml:"head,omitempty" json:"head,omitempty"`
	Strategy string `yaml:"strategy,omitempty" json:"strategy,omitempty"`

	// HTTP family
	Mirrors  []string          `yaml:"mirrors,omitempty" json:"mirrors,omitempty"`
	Headers  []string          `yaml:"headers,omitempty" json:"headers,omitempty"`
	Cookies  map[string]string `yaml:"cookies,omitempty" json:"cookies,omitempty"`
	Referer  string            `yaml:"referer,omitempty" json:"referer,omitempty"`
	User     string            `yaml:"user,omitempty" json:"user,omitempty"`
	Data     map[string]string `yaml:"data,omitempty" json:"data,omitempty"`
	DataJSON bool              `yaml:"data_json,omitempty" json:"data_json,omitempty"`

	// VCS family
	Tag        string            `yaml:"tag,omitempty" json:"tag,omitempty"`
	Branch     string            `yaml:"branch,omitempty" json:"branch,omitempty"`
	Revision   string            `yaml:"revision,omitempty" json:"revision,omitempty"`
	Revisions  map[string]string `yaml:"revisions,omitempty" json:"revisions,omitempty"`
	Submodules bool              `yaml:"submodules,omitempty" json:"submodules,omitempty"`
	OnlyPaths  []string          `yaml:"only_paths,omitempty" json:"only_paths,omitempty"`
	TrustCert  bool              `yaml:"trust_cert,omitempty" json:"trust_cert,omitempty"`
	Module     string            `yaml:"module,omitempty" json:"module,omitempty"`
}

// Options represents global manifest options. A zero Concurrency inherits
// the configured default.
type Options struct {
	ContinueOnError bool `yaml:"continue_on_error" json:"continue_on_error"`
	Concurrency     int  `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
}

// Descriptor converts the declaration into the descriptor the download
// layer consumes. A "HEAD" version or the head flag selects the tip of the
// repository instead of a release.
func (r Resource) Descriptor() *domain.Descriptor {
	var version *domain.Version
	switch {
	case r.Head || strings.EqualFold(r.Version, "HEAD"):
		version = domain.NewHeadVersion()
	case r.Version != "":
		version = domain.NewVersion(r.Version)
	}

	return &domain.Descriptor{
		URL:     r.URL,
		Name:    r.Name,
		Version: version,
		Meta: domain.Meta{
			Mirrors:    r.Mirrors,
			Cookies:    r.Cookies,
			Referer:    r.Referer,
			User:       r.User,
			Headers:    r.Headers,
			Data:       r.Data,
			DataJSON:   r.DataJSON,
			Tag:        r.Tag,
			Branch:     r.Branch,
			Revision:   r.Revision,
			Revisions:  r.Revisions,
			Submodules: r.Submodules,
			OnlyPaths:  r.OnlyPaths,
			TrustCert:  r.TrustCert,
			Module:     r.Module,
		},
	}
}

// Validate validates the manifest configuration. Strategy names are checked
// at resolution time, not here, so the manifest layer stays independent of
// the strategy table.
func (c *Config) Validate() error {
	if len(c.Resources) == 0 {
		return ErrNoResources
	}
	for i, r := range c.Resources {
		if r.URL == "" {
			return fmt.Errorf("resource %d: %w", i, ErrEmptyURL)
		}
	}
	return nil
}
