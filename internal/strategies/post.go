package strategies

import (
	"net/url"
	"strings"

	"github.com/goferpkg/gofer/internal/domain"
)

var _ Strategy = (*PostStrategy)(nil)

// PostStrategy transfers with an HTTP POST: the descriptor's explicit data
// payload when present, otherwise the URL's query parameters move into the
// body.
type PostStrategy struct {
	*CurlStrategy
}

// NewPostStrategy creates the POST download strategy.
func NewPostStrategy(desc *domain.Descriptor, deps *Dependencies) *PostStrategy {
	s := NewCurlStrategy(desc, deps)
	s.usePost = true
	return &PostStrategy{CurlStrategy: s}
}

func (s *PostStrategy) Name() string { return "post" }

// preparePost fills the POST payload and returns the URL to transfer from.
func (c *CurlStrategy) preparePost(rawURL string, opts *domain.DownloadOptions) string {
	opts.PostJSON = c.Desc.Meta.DataJSON

	if len(c.Desc.Meta.Data) > 0 {
		opts.PostData = c.Desc.Meta.Data
		return rawURL
	}

	// No explicit payload: the query string becomes the form body.
	base, query, _ := strings.Cut(rawURL, "?")
	data := map[string]string{}
	if query != "" {
		if values, err := url.ParseQuery(query); err == nil {
			for key := range values {
				data[key] = values.Get(key)
			}
		}
	}
	opts.PostData = data
	return base
}
