// Package app resolves descriptors to download strategies and drives
// fetches, one at a time or as a batch.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goferpkg/gofer/internal/config"
	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/fetcher"
	"github.com/goferpkg/gofer/internal/strategies"
	"github.com/goferpkg/gofer/internal/utils"
)

// Request is one unit of acquisition work: a resource descriptor plus the
// strategy tag it may carry. An empty tag means detect from the URL.
type Request struct {
	Descriptor *domain.Descriptor
	Tag        string
}

func (r Request) url() string {
	if r.Descriptor == nil {
		return ""
	}
	return r.Descriptor.URL
}

// StrategyFactory builds the strategy for a resolved type. Tests inject
// fakes through it.
type StrategyFactory func(StrategyType, *domain.Descriptor, *strategies.Dependencies) (strategies.Strategy, error)

// Orchestrator resolves strategies and coordinates fetches against one
// shared dependency set.
type Orchestrator struct {
	config      *config.Config
	deps        *strategies.Dependencies
	logger      *utils.Logger
	factory     StrategyFactory
	lockRetrier *fetcher.Retrier
}

// OrchestratorOptions contains options for creating an orchestrator
type OrchestratorOptions struct {
	Config  *config.Config
	Verbose bool
	// WaitForLock retries a fetch that lost the download lock to another
	// process instead of failing fast.
	WaitForLock     bool
	StrategyFactory StrategyFactory
}

// NewOrchestrator validates the configuration and wires the shared
// dependency set for it.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logLevel := cfg.Logging.Level
	if logLevel == "" {
		logLevel = config.DefaultLogLevel
	}
	logFormat := cfg.Logging.Format
	if logFormat == "" {
		logFormat = config.DefaultLogFormat
	}

	// Developer mode implies verbose diagnostics.
	logger := utils.NewLogger(utils.LoggerOptions{
		Level:   logLevel,
		Format:  logFormat,
		Verbose: opts.Verbose || cfg.Developer,
		Quiet:   cfg.Quiet,
	})

	deps, err := strategies.NewDependencies(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dependencies: %w", err)
	}

	factory := opts.StrategyFactory
	if factory == nil {
		factory = CreateStrategy
	}

	var lockRetrier *fetcher.Retrier
	if opts.WaitForLock {
		lockRetrier = fetcher.NewRetrier(fetcher.RetrierOptions{
			MaxRetries:      8,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
		})
	}

	return &Orchestrator{
		config:      cfg,
		deps:        deps,
		logger:      logger,
		factory:     factory,
		lockRetrier: lockRetrier,
	}, nil
}

// Close releases all resources held by the orchestrator
func (o *Orchestrator) Close() error {
	if o.deps != nil {
		return o.deps.Close()
	}
	return nil
}

// resolve picks and instantiates the strategy for one request.
func (o *Orchestrator) resolve(req Request) (strategies.Strategy, error) {
	if req.Descriptor == nil || req.Descriptor.URL == "" {
		return nil, fmt.Errorf("descriptor with a url is required")
	}

	strategyType, err := ResolveStrategy(req.Descriptor.URL, req.Tag)
	if err != nil {
		return nil, err
	}

	o.logger.Debug().
		Str("url", req.Descriptor.URL).
		Str("strategy", string(strategyType)).
		Msg("Resolved strategy")

	strategy, err := o.factory(strategyType, req.Descriptor, o.deps)
	if err != nil {
		return nil, err
	}
	if o.config.Quiet {
		strategy.SetQuiet(true)
	}
	return strategy, nil
}

// Fetch acquires one resource into the cache and returns the strategy bound
// to it, so the caller can stage or inspect the artifact afterwards.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) (strategies.Strategy, error) {
	start := time.Now()

	strategy, err := o.resolve(req)
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("url", req.Descriptor.URL).
		Str("strategy", strategy.Name()).
		Msg("Fetching")

	if err := o.fetch(ctx, strategy); err != nil {
		if ctx.Err() != nil {
			o.logger.Warn().Str("url", req.Descriptor.URL).Msg("Fetch cancelled")
			return nil, ctx.Err()
		}
		return nil, err
	}

	o.logger.Info().
		Str("url", req.Descriptor.URL).
		Str("cache", strategy.CachedLocation()).
		Dur("duration", time.Since(start)).
		Msg("Fetch completed")

	return strategy, nil
}

// fetch runs one download. Strategies fail fast when another process holds
// the download lock; with WaitForLock the orchestrator retries the fetch
// with exponential backoff until the lock frees or patience runs out.
func (o *Orchestrator) fetch(ctx context.Context, strategy strategies.Strategy) error {
	if o.lockRetrier == nil {
		return strategy.Fetch(ctx)
	}

	return o.lockRetrier.Retry(ctx, func() error {
		err := strategy.Fetch(ctx)
		if errors.Is(err, domain.ErrLockHeld) {
			o.logger.Info().
				Str("strategy", strategy.Name()).
				Msg("Download lock held by another process, waiting")
			return domain.NewRetryableError(err)
		}
		return err
	})
}

// Stage fetches a resource and materializes it into dest, returning the
// working directory inside it.
func (o *Orchestrator) Stage(ctx context.Context, req Request, dest string) (string, error) {
	strategy, err := o.Fetch(ctx, req)
	if err != nil {
		return "", err
	}

	var workdir string
	err = strategy.Stage(ctx, dest, func(wd string) error {
		workdir = wd
		return nil
	})
	if err != nil {
		return "", err
	}

	o.logger.Info().
		Str("url", req.Descriptor.URL).
		Str("workdir", workdir).
		Msg("Staged")

	return workdir, nil
}

// ClearCache removes the cached artifact for one request. It resolves the
// strategy without touching the network.
func (o *Orchestrator) ClearCache(req Request) error {
	strategy, err := o.resolve(req)
	if err != nil {
		return err
	}

	o.logger.Info().
		Str("url", req.Descriptor.URL).
		Str("cache", strategy.CachedLocation()).
		Msg("Clearing cache entry")

	return strategy.ClearCache()
}

// ClearAll removes every entry under the cache root. A metadata store
// configured inside the root is left alone because it may be open.
func (o *Orchestrator) ClearAll() error {
	entries, err := os.ReadDir(o.config.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	o.logger.Info().Str("cache_dir", o.config.CacheDir).Msg("Clearing cache")

	for _, entry := range entries {
		path := filepath.Join(o.config.CacheDir, entry.Name())
		if path == o.config.APICache.Dir {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}

// FetchResult records the outcome of one batch entry.
type FetchResult struct {
	Request  Request
	Error    error
	Duration time.Duration
}

// FetchAll acquires a batch of resources in parallel, bounded by the
// configured concurrency. With continueOnError the whole batch runs and the
// first failure is reported at the end; otherwise the first failure cancels
// the remaining work.
func (o *Orchestrator) FetchAll(ctx context.Context, reqs []Request, continueOnError bool) error {
	start := time.Now()
	total := len(reqs)

	o.logger.Info().
		Int("resources", total).
		Bool("continue_on_error", continueOnError).
		Int("concurrency", o.config.Concurrency).
		Msg("Starting batch fetch")

	if total == 0 {
		return nil
	}

	results := make([]FetchResult, total)
	var resultsMu sync.Mutex
	var firstErr error
	var firstErrMu sync.Mutex

	runCtx := ctx
	var cancel context.CancelFunc
	if !continueOnError {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	type requestWithIndex struct {
		req   Request
		index int
	}
	items := make([]requestWithIndex, total)
	for i, req := range reqs {
		items[i] = requestWithIndex{req: req, index: i}
	}

	errs := utils.ParallelForEach(runCtx, items, o.config.Concurrency, func(ctx context.Context, item requestWithIndex) error {
		itemStart := time.Now()

		_, err := o.Fetch(ctx, item.req)

		resultsMu.Lock()
		results[item.index] = FetchResult{
			Request:  item.req,
			Error:    err,
			Duration: time.Since(itemStart),
		}
		resultsMu.Unlock()

		if err != nil {
			o.logger.Error().
				Err(err).
				Str("url", item.req.url()).
				Msg("Fetch failed")

			firstErrMu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch %s: %w", item.req.url(), err)
			}
			firstErrMu.Unlock()

			if cancel != nil {
				cancel()
				return err
			}
		}
		return nil
	})

	if ctx.Err() != nil {
		o.logger.Warn().Msg("Batch fetch cancelled")
		return ctx.Err()
	}

	if !continueOnError && firstErr != nil {
		o.logger.Warn().Msg("Stopping batch (continue_on_error=false)")
		return firstErr
	}

	if err := utils.FirstError(errs); err != nil && firstErr == nil {
		firstErr = err
	}

	succeeded := 0
	for _, r := range results {
		if r.Error == nil {
			succeeded++
		}
	}

	o.logger.Info().
		Dur("total_duration", time.Since(start)).
		Int("total", total).
		Int("success", succeeded).
		Int("failed", total-succeeded).
		Msg("Batch fetch completed")

	if firstErr != nil {
		return fmt.Errorf("batch completed with %d/%d failures: %w",
			total-succeeded, total, firstErr)
	}
	return nil
}
