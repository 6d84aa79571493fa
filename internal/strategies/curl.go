package strategies

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/lock"
	"github.com/goferpkg/gofer/internal/utils"
)

var _ Strategy = (*CurlStrategy)(nil)

// CurlStrategy downloads a file over HTTP into the content-addressed cache.
// It probes each candidate URL at most once, trusts an existing cache entry
// when the origin is unreachable, and falls through the mirror list when a
// transfer fails. Variants configure it through the hook fields.
type CurlStrategy struct {
	Base

	// variant knobs
	extraHeaders map[string]string
	resolveURL   func(ctx context.Context, rawURL string) (string, error)
	transfer     func(ctx context.Context, rawURL, dest string, opts domain.DownloadOptions) error
	usePost      bool

	// per-instance resolution memo
	resolutions  map[string]*domain.Resolution
	probeErrs    map[string]error
	resolved     *domain.Resolution // resolution naming the cache entry
	authStripped bool               // a redirect was observed; stop sending credentials
}

// NewCurlStrategy creates the plain HTTP download strategy.
func NewCurlStrategy(desc *domain.Descriptor, deps *Dependencies) *CurlStrategy {
	return &CurlStrategy{
		Base:        NewBase(desc, deps),
		resolutions: make(map[string]*domain.Resolution),
		probeErrs:   make(map[string]error),
	}
}

func (c *CurlStrategy) Name() string { return "curl" }

// Fetch drives the download state machine: name the cache entry, take the
// download lock, then walk the candidate URLs until one serves the artifact
// or confirms the cache is still fresh.
func (c *CurlStrategy) Fetch(ctx context.Context) error {
	primary := c.Desc.URL
	if c.resolveURL != nil {
		resolved, err := c.resolveURL(ctx, primary)
		if err != nil {
			return err
		}
		primary = resolved
	}

	candidates := []string{primary}
	if !c.Deps.Config.NoFallback {
		candidates = append(candidates, c.Desc.Meta.Mirrors...)
	}

	// Name the cache entry before locking so concurrent fetchers key the
	// same lock. A failed probe falls back to the URL basename; an entry
	// already on disk wins either way.
	if res, err := c.resolve(ctx, primary); err == nil {
		c.resolved = res
	}
	location := c.CachedLocation()
	temporary := location + ".incomplete"

	if err := utils.EnsureDir(location); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}

	downloadLock := lock.New(temporary)
	if err := downloadLock.TryAcquire(); err != nil {
		return err
	}
	defer downloadLock.Release()

	var lastErr error
	for i, candidate := range candidates {
		if i > 0 {
			c.Logger().Info().Str("url", utils.RedactURL(candidate)).Msg("Trying a mirror")
		}

		err := c.fetchOne(ctx, candidate, location, temporary)
		if err == nil {
			c.refreshSymlink(location)
			return nil
		}
		if domain.IsTimeout(err) {
			return err
		}
		lastErr = err
		c.Logger().Debug().Err(err).Str("url", utils.RedactURL(candidate)).Msg("Candidate failed")
	}

	return domain.NewDownloadError(utils.RedactURL(c.Desc.URL), len(candidates), lastErr)
}

// fetchOne downloads from a single candidate, or decides the cache already
// serves.
func (c *CurlStrategy) fetchOne(ctx context.Context, rawURL, location, temporary string) error {
	c.Logger().Info().Str("url", utils.RedactURL(rawURL)).Msg("Downloading")

	res, probeErr := c.resolve(ctx, rawURL)
	if probeErr != nil {
		// Offline tolerance: an unreachable origin does not invalidate
		// what we already have.
		if utils.FileExists(location) {
			c.Logger().Debug().Err(probeErr).Msg("Probe failed, trusting existing cache")
			return nil
		}
		return probeErr
	}

	if info, err := os.Stat(location); err == nil {
		if fresh(res, info) {
			c.Logger().Info().Str("cache", location).Msg("Already downloaded")
			return nil
		}
		c.Logger().Info().Str("url", utils.RedactURL(rawURL)).Msg("Cached copy is outdated, fetching again")
	}

	opts := domain.DownloadOptions{
		RequestOptions: c.RequestOptions(c.extraHeaders),
		Resume:         true,
		StripAuth:      c.authStripped,
		Quiet:          c.Quiet(),
	}

	transferURL := rawURL
	if c.usePost {
		transferURL = c.preparePost(rawURL, &opts)
	}

	download := c.transfer
	if download == nil {
		download = c.Deps.Downloader.Download
	}
	if err := download(ctx, transferURL, temporary, opts); err != nil {
		return err
	}
	if err := os.Rename(temporary, location); err != nil {
		return fmt.Errorf("publishing download: %w", err)
	}
	return nil
}

// resolve probes a URL once per instance and remembers the outcome, failed
// probes included.
func (c *CurlStrategy) resolve(ctx context.Context, rawURL string) (*domain.Resolution, error) {
	if res, ok := c.resolutions[rawURL]; ok {
		return res, nil
	}
	if err, ok := c.probeErrs[rawURL]; ok {
		return nil, err
	}

	res, err := c.Deps.Prober.Probe(ctx, rawURL, c.RequestOptions(c.extraHeaders))
	if err != nil {
		c.probeErrs[rawURL] = err
		return nil, err
	}
	if res.Redirected {
		c.authStripped = true
	}
	c.resolutions[rawURL] = res
	return res, nil
}

// fresh reports whether the cached file still matches what the origin
// advertises. Textual content types change headers too freely to trust, so
// they skip the comparison and keep the cache.
func fresh(res *domain.Resolution, info os.FileInfo) bool {
	if res.IsTextual() {
		return true
	}
	if !res.LastModified.IsZero() && res.LastModified.After(info.ModTime()) {
		return false
	}
	if res.Size > 0 && res.Size != info.Size() {
		return false
	}
	return true
}

// CachedLocation returns the canonical cache path without touching the
// network: a lone on-disk entry for this URL, else the probed basename when
// one was memoized, else the URL's own basename.
func (c *CurlStrategy) CachedLocation() string {
	if matches, err := filepath.Glob(filepath.Join(c.Deps.Config.DownloadsDir(), c.urlHash()+"--*")); err == nil {
		var files []string
		for _, m := range matches {
			if strings.HasSuffix(m, ".incomplete") || strings.HasSuffix(m, ".lock") {
				continue
			}
			files = append(files, m)
		}
		if len(files) == 1 {
			return files[0]
		}
	}
	return c.cachePath(c.basename())
}

func (c *CurlStrategy) cachePath(basename string) string {
	return filepath.Join(c.Deps.Config.DownloadsDir(), c.urlHash()+"--"+basename)
}

// urlHash keys the cache entry on the descriptor URL, stable across mirror
// and artifact-domain rewrites.
func (c *CurlStrategy) urlHash() string {
	sum := sha256.Sum256([]byte(c.Desc.URL))
	return hex.EncodeToString(sum[:])
}

// basename picks the artifact's file name: a pre-resolved descriptor
// basename wins, then whatever the probe reported, then the URL path.
func (c *CurlStrategy) basename() string {
	if c.Desc.Meta.Basename != "" {
		return utils.SanitizeBasename(c.Desc.Meta.Basename)
	}
	if c.resolved != nil && c.resolved.Basename != "" {
		return utils.SanitizeBasename(c.resolved.Basename)
	}
	return utils.SanitizeBasename(utils.BasenameFromURL(c.Desc.URL))
}

// Stage extracts the cached artifact into dest and yields the working
// directory.
func (c *CurlStrategy) Stage(ctx context.Context, dest string, ready func(workdir string) error) error {
	location := c.CachedLocation()
	if !utils.FileExists(location) {
		return fmt.Errorf("%s: %w", utils.RedactURL(c.Desc.URL), domain.ErrNoCache)
	}

	c.Logger().Info().Str("cache", location).Str("dest", dest).Msg("Extracting")
	result, err := c.Deps.Unpacker.Stage(ctx, location, dest)
	if err != nil {
		return err
	}
	if result.Entries == 0 {
		return domain.NewEmptyArchiveError(location)
	}
	if ready == nil {
		return nil
	}
	return ready(result.WorkDir)
}

// ClearCache removes the cache entry, its sidecar files, and the alias.
func (c *CurlStrategy) ClearCache() error {
	matches, err := filepath.Glob(filepath.Join(c.Deps.Config.DownloadsDir(), c.urlHash()+"--*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			return err
		}
	}

	link := c.SymlinkPath(c.basename())
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SourceModifiedTime reports the newest file in the staged tree.
func (c *CurlStrategy) SourceModifiedTime(ctx context.Context, workdir string) (time.Time, error) {
	return utils.NewestMTime(workdir)
}

func (c *CurlStrategy) refreshSymlink(location string) {
	link := c.SymlinkPath(filepath.Base(location))
	if err := utils.ReplaceSymlink(location, link); err != nil {
		c.Logger().Debug().Err(err).Str("link", link).Msg("Refreshing cache symlink failed")
	}
}
