// Package github queries the GitHub REST API for the repository metadata
// the download layer needs, chiefly whether a local clone is still at the
// tip of its upstream branch. Responses are memoized in the metadata cache
// and revalidated with ETags once they go stale.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goferpkg/gofer/internal/cache"
	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/fetcher"
	"github.com/goferpkg/gofer/internal/utils"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// Records outlive their freshness window so the ETag is still around to
// revalidate with instead of refetching the body.
const recordRetention = 24 * time.Hour

// Client talks to the GitHub API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	store      domain.MetadataCache
	ttl        time.Duration
	retrier    *fetcher.Retrier
	logger     *utils.Logger
}

// ClientOptions contains options for creating a Client
type ClientOptions struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
	Cache     domain.MetadataCache
	CacheTTL  time.Duration
	Retrier   *fetcher.Retrier
	Logger    *utils.Logger
}

// DefaultClientOptions returns default client options
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		BaseURL:  DefaultBaseURL,
		Timeout:  30 * time.Second,
		CacheTTL: 15 * time.Minute,
	}
}

// NewClient creates a GitHub API client
func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 15 * time.Minute
	}
	if opts.Cache == nil {
		opts.Cache = cache.NopCache{}
	}
	if opts.Retrier == nil {
		opts.Retrier = fetcher.NewRetrier(fetcher.DefaultRetrierOptions())
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewDefaultLogger()
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		token:      opts.Token,
		userAgent:  opts.UserAgent,
		store:      opts.Cache,
		ttl:        opts.CacheTTL,
		retrier:    opts.Retrier,
		logger:     opts.Logger.WithComponent("github"),
	}
}

// commitRecord is the cached form of a commit lookup.
type commitRecord struct {
	SHA       string    `json:"sha"`
	ETag      string    `json:"etag"`
	FetchedAt time.Time `json:"fetched_at"`
}

type commitResult struct {
	sha         string
	etag        string
	notModified bool
}

// LatestCommit returns the commit hash a ref currently points at. Fresh
// cache entries answer without touching the network; stale ones are
// revalidated conditionally.
func (c *Client) LatestCommit(ctx context.Context, owner, repo, ref string) (string, error) {
	key := cache.CommitKey(fmt.Sprintf("https://github.com/%s/%s", owner, repo), ref)

	var rec commitRecord
	cached := false
	if data, err := c.store.Get(ctx, key); err == nil {
		if json.Unmarshal(data, &rec) == nil && rec.SHA != "" {
			cached = true
			if time.Since(rec.FetchedAt) < c.ttl {
				c.logger.Debug().Str("owner", owner).Str("repo", repo).Str("ref", ref).Msg("Commit lookup served from cache")
				return rec.SHA, nil
			}
		}
	}

	apiURL := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.baseURL, owner, repo, url.PathEscape(ref))
	etag := ""
	if cached {
		etag = rec.ETag
	}

	result, err := c.fetchCommit(ctx, apiURL, etag)
	if err != nil {
		return "", err
	}

	if result.notModified && cached {
		rec.FetchedAt = time.Now()
		c.save(ctx, key, rec)
		return rec.SHA, nil
	}

	rec = commitRecord{SHA: result.sha, ETag: result.etag, FetchedAt: time.Now()}
	c.save(ctx, key, rec)
	return result.sha, nil
}

// branchRecord is the cached form of a default-branch lookup.
type branchRecord struct {
	Name      string    `json:"name"`
	FetchedAt time.Time `json:"fetched_at"`
}

// DefaultBranch returns the repository's default branch. The answer changes
// rarely, so cached entries are trusted for the full TTL without an ETag
// round trip.
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	key := cache.BranchKey(fmt.Sprintf("https://github.com/%s/%s", owner, repo))

	var rec branchRecord
	if data, err := c.store.Get(ctx, key); err == nil {
		if json.Unmarshal(data, &rec) == nil && rec.Name != "" && time.Since(rec.FetchedAt) < c.ttl {
			c.logger.Debug().Str("owner", owner).Str("repo", repo).Msg("Branch lookup served from cache")
			return rec.Name, nil
		}
	}

	apiURL := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo)
	name, err := fetcher.RetryWithValue(ctx, c.retrier, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return "", err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", domain.NewRetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			var payload struct {
				DefaultBranch string `json:"default_branch"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return "", fmt.Errorf("decoding repository response: %w", err)
			}
			if payload.DefaultBranch == "" {
				return "", fmt.Errorf("repository response missing default_branch")
			}
			return payload.DefaultBranch, nil
		case fetcher.ShouldRetryStatus(resp.StatusCode):
			return "", domain.NewRetryableError(fmt.Errorf("github api status %d", resp.StatusCode))
		default:
			return "", fmt.Errorf("github api status %d", resp.StatusCode)
		}
	})
	if err != nil {
		return "", err
	}

	if data, err := json.Marshal(branchRecord{Name: name, FetchedAt: time.Now()}); err == nil {
		if err := c.store.Set(ctx, key, data, recordRetention); err != nil {
			c.logger.Debug().Err(err).Msg("Caching branch record failed")
		}
	}
	return name, nil
}

// CommitOutdated reports whether revision is no longer the tip of ref. An
// API failure is returned as an error so callers can fall back to a real
// fetch instead of guessing.
func (c *Client) CommitOutdated(ctx context.Context, owner, repo, ref, revision string) (bool, error) {
	latest, err := c.LatestCommit(ctx, owner, repo, ref)
	if err != nil {
		return true, err
	}
	if latest == "" || revision == "" {
		return true, nil
	}
	return !sameCommit(latest, revision), nil
}

func (c *Client) fetchCommit(ctx context.Context, apiURL, etag string) (commitResult, error) {
	return fetcher.RetryWithValue(ctx, c.retrier, func() (commitResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return commitResult{}, err
		}
		c.setHeaders(req)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return commitResult{}, domain.NewRetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotModified:
			return commitResult{notModified: true}, nil
		case resp.StatusCode == http.StatusOK:
			var payload struct {
				SHA string `json:"sha"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return commitResult{}, fmt.Errorf("decoding commit response: %w", err)
			}
			if payload.SHA == "" {
				return commitResult{}, fmt.Errorf("commit response missing sha")
			}
			return commitResult{sha: payload.SHA, etag: resp.Header.Get("ETag")}, nil
		case fetcher.ShouldRetryStatus(resp.StatusCode):
			return commitResult{}, domain.NewRetryableError(fmt.Errorf("github api status %d", resp.StatusCode))
		default:
			return commitResult{}, fmt.Errorf("github api status %d", resp.StatusCode)
		}
	})
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) save(ctx context.Context, key string, rec commitRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, data, recordRetention); err != nil {
		c.logger.Debug().Err(err).Msg("Caching commit record failed")
	}
}

// sameCommit treats a short hash as equal to any full hash it prefixes.
func sameCommit(a, b string) bool {
	if len(a) < len(b) {
		return strings.HasPrefix(b, a)
	}
	return strings.HasPrefix(a, b)
}

// SplitURL extracts owner and repository from a github.com URL.
func SplitURL(rawURL string) (owner, repo string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing %s: %w", utils.RedactURL(rawURL), err)
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%s is not an owner/repository URL", utils.RedactURL(rawURL))
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
