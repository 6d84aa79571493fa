package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/utils"
)

// Download streams the response body for rawURL into dest. With opts.Resume
// set and a non-empty dest already present, the transfer continues from its
// current size via a Range request; an origin that answers 200 anyway (or
// 416 for an overlong range) restarts the file from scratch.
//
// Download never renames dest; publication into the cache is the caller's
// job, so an interrupted transfer leaves only the partial dest behind.
func (c *Client) Download(ctx context.Context, rawURL, dest string, opts domain.DownloadOptions) error {
	if err := utils.EnsureDir(dest); err != nil {
		return err
	}

	var offset int64
	if opts.Resume {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			offset = info.Size()
		}
	}

	resp, err := c.startTransfer(ctx, rawURL, offset, opts)
	if err != nil {
		return err
	}

	// An origin can refuse the range when the partial file already covers
	// the full body, or when it never supported ranges. Restart clean.
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		resp.Body.Close()
		offset = 0
		resp, err = c.startTransfer(ctx, rawURL, 0, opts)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("download %s: HTTP %d", utils.RedactURL(rawURL), resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resp.StatusCode == http.StatusPartialContent && offset > 0 {
		flags |= os.O_APPEND
	} else {
		// Full body incoming; whatever partial data existed is stale.
		flags |= os.O_TRUNC
		offset = 0
	}

	out, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return err
	}

	total := resp.ContentLength
	if total >= 0 {
		total += offset
	}
	bar := utils.NewByteProgressBar(total, utils.DescDownloading, opts.Quiet)
	if offset > 0 {
		_ = bar.Add64(offset)
	}

	if _, err := io.Copy(io.MultiWriter(out, bar), resp.Body); err != nil {
		out.Close()
		return classifyRequestError("download", rawURL, err)
	}
	_ = bar.Finish()

	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (c *Client) startTransfer(ctx context.Context, rawURL string, offset int64, opts domain.DownloadOptions) (*http.Response, error) {
	method := http.MethodGet
	var body io.Reader
	var contentType string

	if opts.PostData != nil {
		method = http.MethodPost
		if opts.PostJSON {
			encoded, err := json.Marshal(opts.PostData)
			if err != nil {
				return nil, fmt.Errorf("encoding POST payload: %w", err)
			}
			body = strings.NewReader(string(encoded))
			contentType = "application/json"
		} else {
			form := url.Values{}
			for k, v := range opts.PostData {
				form.Set(k, v)
			}
			body = strings.NewReader(form.Encode())
			contentType = "application/x-www-form-urlencoded"
		}
	}

	req, err := c.newRequest(ctx, method, rawURL, body, opts.RequestOptions, opts.StripAuth)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	return c.do(req, "download")
}
