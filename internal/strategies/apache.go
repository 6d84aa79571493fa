package strategies

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/goferpkg/gofer/internal/domain"
)

var _ Strategy = (*ApacheStrategy)(nil)

// ApacheStrategy downloads from an Apache mirror chosen by the
// closer.lua mirror service. Artifacts that have left the mirror
// network fall back to the permanent archive host.
type ApacheStrategy struct {
	*CurlStrategy
}

// NewApacheStrategy creates the Apache mirror download strategy.
func NewApacheStrategy(desc *domain.Descriptor, deps *Dependencies) *ApacheStrategy {
	s := NewCurlStrategy(desc, deps)
	strategy := &ApacheStrategy{CurlStrategy: s}
	s.resolveURL = strategy.resolveMirror
	return strategy
}

func (a *ApacheStrategy) Name() string { return "apache" }

type apacheMirrorList struct {
	Preferred string `json:"preferred"`
	PathInfo  string `json:"path_info"`
	InDist    bool   `json:"in_dist"`
}

// resolveMirror asks the mirror service for its JSON rendering of the
// download page and picks the preferred mirror, or the archive host when
// the artifact is no longer distributed.
func (a *ApacheStrategy) resolveMirror(ctx context.Context, rawURL string) (string, error) {
	jsonURL := rawURL + "?asjson=1"
	if strings.Contains(rawURL, "?") {
		jsonURL = rawURL + "&asjson=1"
	}

	body, err := a.Deps.Getter.Get(ctx, jsonURL, a.RequestOptions())
	if err != nil {
		return "", domain.NewMirrorResolutionError(rawURL, err)
	}

	var list apacheMirrorList
	if err := json.Unmarshal(body, &list); err != nil {
		return "", domain.NewMirrorResolutionError(rawURL, err)
	}
	path := strings.TrimPrefix(list.PathInfo, "/")
	if path == "" {
		return "", domain.NewMirrorResolutionError(rawURL, domain.ErrInvalidURL)
	}
	if !list.InDist {
		return "https://archive.apache.org/dist/" + path, nil
	}
	if list.Preferred == "" {
		return "", domain.NewMirrorResolutionError(rawURL, domain.ErrInvalidURL)
	}
	return strings.TrimSuffix(list.Preferred, "/") + "/" + path, nil
}
