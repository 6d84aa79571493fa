// Package fetcher implements the HTTP transfer layer: probing a URL for
// basename, timestamp, and size without downloading it, and streaming the
// body to a local file with optional resume.
//
// Redirects are followed up to a cap. Credentials (basic auth, cookies,
// custom headers carrying tokens) are sent on the first request only; every
// redirect hop drops them so a bouncing origin cannot harvest them. An
// https → http hop is refused outright when the client is configured to
// block insecure redirects.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/utils"
)

// Client is the HTTP client shared by all download strategies.
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     *utils.Logger
}

// ClientOptions contains options for creating a Client
type ClientOptions struct {
	Timeout                time.Duration // overall transfer cap, 0 for none
	ConnectTimeout         time.Duration
	MaxRedirects           int
	UserAgent              string
	BlockInsecureRedirects bool
	Logger                 *utils.Logger
}

// DefaultClientOptions returns default client options
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:        15 * time.Minute,
		ConnectTimeout: 30 * time.Second,
		MaxRedirects:   10,
		UserAgent:      "gofer",
	}
}

// NewClient creates a new download client
func NewClient(opts ClientOptions) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ConnectTimeout,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}

	httpClient := &http.Client{
		Transport:     transport,
		Timeout:       opts.Timeout,
		CheckRedirect: redirectPolicy(opts.MaxRedirects, opts.BlockInsecureRedirects),
	}

	return &Client{
		httpClient: httpClient,
		userAgent:  opts.UserAgent,
		logger:     opts.Logger,
	}
}

// redirectPolicy bounds the redirect chain, optionally refuses https → http
// downgrades, and drops credentials on every hop.
func redirectPolicy(maxRedirects int, blockInsecure bool) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}

		prev := via[len(via)-1]
		if blockInsecure && prev.URL.Scheme == "https" && req.URL.Scheme == "http" {
			return fmt.Errorf("insecure redirect from %s to %s refused", utils.RedactURL(prev.URL.String()), utils.RedactURL(req.URL.String()))
		}

		// Credentials never survive a redirect, same-host included.
		req.Header.Del("Authorization")
		req.Header.Del("Cookie")
		return nil
	}
}

// newRequest builds a request carrying the strategy-supplied headers. When
// stripAuth is set the credential-bearing options are skipped, leaving only
// the neutral ones.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader, opts domain.RequestOptions, stripAuth bool) (*http.Request, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", utils.RedactURL(rawURL), err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	for k, v := range opts.Headers {
		if stripAuth && http.CanonicalHeaderKey(k) == "Authorization" {
			continue
		}
		req.Header.Set(k, v)
	}

	if !stripAuth {
		for k, v := range opts.Cookies {
			req.AddCookie(&http.Cookie{Name: k, Value: v})
		}
		if opts.User != "" {
			user, pass, _ := strings.Cut(opts.User, ":")
			req.SetBasicAuth(user, pass)
		}
	}

	return req, nil
}

// do issues the request, translating transport timeouts into TimeoutError
// so callers can tell them from ordinary transfer failures.
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyRequestError(op, req.URL.String(), err)
	}
	return resp, nil
}

// maxGetBody caps in-memory responses; mirror listings and API payloads are
// tiny, so anything larger indicates the wrong endpoint.
const maxGetBody = 4 << 20

// Get fetches a small body entirely into memory. Non-2xx statuses are
// returned as errors carrying the status code.
func (c *Client) Get(ctx context.Context, rawURL string, opts domain.RequestOptions) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil, opts, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, "get")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: unexpected status %d", utils.RedactURL(rawURL), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGetBody))
	if err != nil {
		return nil, classifyRequestError("get", rawURL, err)
	}
	return body, nil
}

func classifyRequestError(op, rawURL string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return domain.NewTimeoutError(op, utils.RedactURL(rawURL), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTimeoutError(op, utils.RedactURL(rawURL), err)
	}
	return fmt.Errorf("%s %s: %w", op, utils.RedactURL(rawURL), err)
}
