package strategies

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goferpkg/gofer/internal/config"
	"github.com/goferpkg/gofer/internal/domain"
)

// anonymousToken is the base64 anonymous bearer token accepted by
// GitHub Packages for public pulls.
const anonymousToken = "QQ=="

var _ Strategy = (*RegistryStrategy)(nil)

// RegistryStrategy downloads prebuilt artifacts from an OCI registry.
// It attaches registry authorization and the OCI layer Accept header,
// and honors the artifact-domain override for private mirrors.
type RegistryStrategy struct {
	*CurlStrategy
}

// NewRegistryStrategy creates the OCI registry download strategy.
func NewRegistryStrategy(desc *domain.Descriptor, deps *Dependencies) *RegistryStrategy {
	s := NewCurlStrategy(desc, deps)
	strategy := &RegistryStrategy{CurlStrategy: s}

	s.extraHeaders = map[string]string{
		"Accept": "application/vnd.oci.image.layer.v1.tar+gzip",
	}
	if token := registryToken(deps.Config); token != "" {
		s.extraHeaders["Authorization"] = "Bearer " + token
	}
	if deps.Config.ArtifactDomain != "" {
		s.resolveURL = strategy.rewriteArtifactURL
	}
	return strategy
}

func (r *RegistryStrategy) Name() string { return "registry" }

// Prebuilt reports that registry artifacts need no build from source.
func (r *RegistryStrategy) Prebuilt() bool { return true }

// registryToken picks the bearer token for registry requests. A private
// artifact-domain mirror without its own token handles auth itself, so no
// token is sent at all in that case.
func registryToken(cfg *config.Config) string {
	if cfg.Registry.Token != "" {
		return cfg.Registry.Token
	}
	if cfg.ArtifactDomain == "" {
		return anonymousToken
	}
	return ""
}

// rewriteArtifactURL redirects the request at the configured artifact
// domain, keeping the registry path intact.
func (r *RegistryStrategy) rewriteArtifactURL(_ context.Context, rawURL string) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(r.Deps.Config.ArtifactDomain, "/"))
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("parsing artifact domain %q: %w", r.Deps.Config.ArtifactDomain, domain.ErrInvalidURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rawURL, domain.ErrInvalidURL)
	}
	u.Scheme = base.Scheme
	u.Host = base.Host
	u.Path = strings.TrimSuffix(base.Path, "/") + u.Path
	return u.String(), nil
}
