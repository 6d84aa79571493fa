package fetcher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/utils"
)

// Probe resolves a URL's transfer metadata without downloading the body.
// It tries HEAD first; origins that reject HEAD (405, 501, or some picky
// CDNs) are probed again with a GET whose body is discarded unread.
func (c *Client) Probe(ctx context.Context, rawURL string, opts domain.RequestOptions) (*domain.Resolution, error) {
	resp, err := c.probeOnce(ctx, http.MethodHead, rawURL, opts)
	switch {
	case err != nil:
		// A timeout is a hard answer, not an invitation to retry with GET.
		if domain.IsTimeout(err) {
			return nil, err
		}
	case resp.StatusCode < 400:
		defer resp.Body.Close()
		return c.buildResolution(rawURL, resp), nil
	default:
		status := resp.StatusCode
		resp.Body.Close()
		if !headRejected(status) {
			return nil, fmt.Errorf("probe %s: HTTP %d", utils.RedactURL(rawURL), status)
		}
	}

	resp, err = c.probeOnce(ctx, http.MethodGet, rawURL, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("probe %s: HTTP %d", utils.RedactURL(rawURL), resp.StatusCode)
	}
	return c.buildResolution(rawURL, resp), nil
}

func (c *Client) probeOnce(ctx context.Context, method, rawURL string, opts domain.RequestOptions) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, rawURL, nil, opts, false)
	if err != nil {
		return nil, err
	}
	return c.do(req, "probe")
}

// headRejected reports status codes from origins that answer HEAD with an
// error yet serve the same URL fine over GET.
func headRejected(status int) bool {
	switch status {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented,
		http.StatusForbidden, http.StatusBadRequest:
		return true
	}
	return status >= 500
}

func (c *Client) buildResolution(originalURL string, resp *http.Response) *domain.Resolution {
	finalURL := originalURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	res := &domain.Resolution{
		URL:         finalURL,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Redirected:  finalURL != originalURL,
	}

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			res.LastModified = t
		}
	}

	// The server-declared filename beats the URL-derived one, but both go
	// through sanitization; a disposition naming "." or escaping the
	// directory falls back to the URL.
	if name := BasenameFromDisposition(resp.Header.Get("Content-Disposition")); name != "" {
		res.Basename = name
	} else {
		res.Basename = utils.BasenameFromURL(finalURL)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("url", utils.RedactURL(finalURL)).
			Str("basename", res.Basename).
			Int64("size", res.Size).
			Bool("redirected", res.Redirected).
			Msg("Probe resolved")
	}
	return res
}
