// Package strategies implements the download strategies gofer picks from a
// resource URL: plain HTTP transfers with mirrors and cache revalidation,
// and version-control checkouts kept up to date in place.
package strategies

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/goferpkg/gofer/internal/archive"
	"github.com/goferpkg/gofer/internal/cache"
	"github.com/goferpkg/gofer/internal/config"
	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/fetcher"
	"github.com/goferpkg/gofer/internal/git"
	"github.com/goferpkg/gofer/internal/github"
	"github.com/goferpkg/gofer/internal/run"
	"github.com/goferpkg/gofer/internal/utils"
)

// Strategy is the contract every download strategy satisfies. A strategy
// instance is bound to one resource descriptor and never shared.
type Strategy interface {
	// Name returns the strategy name
	Name() string
	// Fetch acquires the artifact into the cache, revalidating an
	// existing entry instead of re-downloading when it is still fresh.
	Fetch(ctx context.Context) error
	// CachedLocation returns the canonical cache path without touching
	// the network. The path may not exist yet.
	CachedLocation() string
	// Stage materializes the cached artifact into dest and hands the
	// working directory to ready.
	Stage(ctx context.Context, dest string, ready func(workdir string) error) error
	// ClearCache removes the cached artifact and its derived files.
	ClearCache() error
	// SourceModifiedTime reports when the fetched source last changed.
	SourceModifiedTime(ctx context.Context, workdir string) (time.Time, error)
	// Prebuilt reports whether the artifact is a prebuilt binary rather
	// than source.
	Prebuilt() bool
	// SetQuiet suppresses informational status lines.
	SetQuiet(quiet bool)
}

// Dependencies contains shared dependencies for all strategies
type Dependencies struct {
	Prober     domain.Prober
	Downloader domain.Downloader
	Getter     domain.Getter
	Runner     domain.Runner
	Unpacker   domain.Unpacker
	Inspector  git.Inspector
	GitHub     *github.Client
	Store      domain.MetadataCache
	Logger     *utils.Logger
	Config     *config.Config
}

// NewDependencies creates new dependencies for strategies
func NewDependencies(cfg *config.Config, logger *utils.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = utils.NewDefaultLogger()
	}

	client := fetcher.NewClient(fetcher.ClientOptions{
		Timeout:                cfg.HTTP.Timeout,
		ConnectTimeout:         cfg.HTTP.ConnectTimeout,
		MaxRedirects:           cfg.HTTP.MaxRedirects,
		UserAgent:              cfg.HTTP.UserAgent,
		BlockInsecureRedirects: cfg.NoInsecureRedirect,
		Logger:                 logger,
	})

	var store domain.MetadataCache = cache.NopCache{}
	if cfg.APICache.Enabled {
		badgerStore, err := cache.NewBadgerCache(cache.Options{Directory: cfg.APICache.Dir})
		if err != nil {
			// Another process may hold the store open; metadata lookups
			// degrade to uncached rather than failing the fetch.
			logger.Warn().Err(err).Str("dir", cfg.APICache.Dir).Msg("Metadata cache unavailable")
		} else {
			store = badgerStore
		}
	}

	githubClient := github.NewClient(github.ClientOptions{
		Token:     cfg.GitHub.Token,
		UserAgent: cfg.HTTP.UserAgent,
		Cache:     store,
		CacheTTL:  cfg.APICache.TTL,
		Logger:    logger,
	})

	return &Dependencies{
		Prober:     client,
		Downloader: client,
		Getter:     client,
		Runner:     run.NewRunner(logger),
		Unpacker:   archive.NewStager(logger),
		Inspector:  git.NewInspector(),
		GitHub:     githubClient,
		Store:      store,
		Logger:     logger,
		Config:     cfg,
	}, nil
}

// Close releases all resources
func (d *Dependencies) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}

// Base carries what every strategy shares: the descriptor, the dependency
// set, and the quiet flag.
type Base struct {
	Desc   *domain.Descriptor
	Deps   *Dependencies
	logger *utils.Logger
	quiet  bool
}

// NewBase binds a descriptor to the shared dependencies.
func NewBase(desc *domain.Descriptor, deps *Dependencies) Base {
	return Base{Desc: desc, Deps: deps, logger: deps.Logger}
}

// SetQuiet suppresses informational status lines.
func (b *Base) SetQuiet(quiet bool) {
	b.quiet = quiet
	if quiet {
		b.logger = utils.NewQuietLogger()
	} else {
		b.logger = b.Deps.Logger
	}
}

// Quiet reports whether status output is suppressed.
func (b *Base) Quiet() bool { return b.quiet }

// Logger returns the strategy's logger, honoring the quiet flag.
func (b *Base) Logger() *utils.Logger { return b.logger }

// Prebuilt is false for source artifacts; the registry strategy overrides it.
func (b *Base) Prebuilt() bool { return false }

// ResourceName returns the descriptor name, falling back to the URL basename
// without its archive extension.
func (b *Base) ResourceName() string {
	if b.Desc.Name != "" {
		return b.Desc.Name
	}
	base := utils.BasenameFromURL(b.Desc.URL)
	return strings.TrimSuffix(base, utils.ExtName(base))
}

// RequestOptions assembles the HTTP options a descriptor carries. Extra
// header maps are merged on top of the descriptor's raw header lines.
func (b *Base) RequestOptions(extra ...map[string]string) domain.RequestOptions {
	headers := make(map[string]string)
	for _, line := range b.Desc.Meta.Headers {
		if name, value, ok := strings.Cut(line, ":"); ok {
			headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	for _, m := range extra {
		for k, v := range m {
			headers[k] = v
		}
	}

	return domain.RequestOptions{
		Headers: headers,
		Cookies: b.Desc.Meta.Cookies,
		Referer: b.Desc.Meta.Referer,
		User:    b.Desc.Meta.User,
	}
}

// SymlinkPath returns the human-readable alias in the cache root for an
// artifact with the given basename.
func (b *Base) SymlinkPath(basename string) string {
	name := utils.SanitizeBasename(b.ResourceName())
	if version := b.Desc.Version.String(); version != "" {
		name += "--" + version
	}
	return filepath.Join(b.Deps.Config.CacheDir, name+utils.ExtName(basename))
}
