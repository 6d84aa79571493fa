package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/goferpkg/gofer/internal/config"
	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/run/runmock"
	"github.com/goferpkg/gofer/internal/strategies"
)

type fakeStrategy struct {
	name     string
	location string
	fetchErr error
	fetchFn  func(ctx context.Context) error
	fetches  int
	stagedTo string
	cleared  bool
	quiet    bool
}

func (f *fakeStrategy) Name() string           { return f.name }
func (f *fakeStrategy) CachedLocation() string { return f.location }
func (f *fakeStrategy) Prebuilt() bool         { return false }
func (f *fakeStrategy) SetQuiet(quiet bool)    { f.quiet = quiet }
func (f *fakeStrategy) ClearCache() error      { f.cleared = true; return nil }

func (f *fakeStrategy) Fetch(ctx context.Context) error {
	f.fetches++
	if f.fetchFn != nil {
		return f.fetchFn(ctx)
	}
	return f.fetchErr
}

func (f *fakeStrategy) Stage(_ context.Context, dest string, ready func(string) error) error {
	f.stagedTo = dest
	return ready(dest)
}

func (f *fakeStrategy) SourceModifiedTime(context.Context, string) (time.Time, error) {
	return time.Time{}, nil
}

func testOrchestratorConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		CacheDir: t.TempDir(),
		Quiet:    true,
		Logging:  config.LoggingConfig{Level: "error"},
	}
}

func newTestOrchestrator(t *testing.T, opts OrchestratorOptions) *Orchestrator {
	t.Helper()
	if opts.Config == nil {
		opts.Config = testOrchestratorConfig(t)
	}
	orch, err := NewOrchestrator(opts)
	require.NoError(t, err)
	t.Cleanup(func() { orch.Close() })
	return orch
}

func TestNewOrchestrator(t *testing.T) {
	t.Run("requires a config", func(t *testing.T) {
		_, err := NewOrchestrator(OrchestratorOptions{})
		assert.ErrorContains(t, err, "config is required")
	})

	t.Run("rejects an invalid config", func(t *testing.T) {
		cfg := testOrchestratorConfig(t)
		cfg.ArtifactDomain = "not a url"
		_, err := NewOrchestrator(OrchestratorOptions{Config: cfg})
		assert.ErrorContains(t, err, "artifact_domain")
	})

	t.Run("close tolerates nil dependencies", func(t *testing.T) {
		orch := &Orchestrator{}
		assert.NoError(t, orch.Close())
	})
}

func TestOrchestratorFetch(t *testing.T) {
	t.Run("fetches through the resolved strategy", func(t *testing.T) {
		fake := &fakeStrategy{location: "/cache/webflow--git"}
		var resolved StrategyType

		orch := newTestOrchestrator(t, OrchestratorOptions{
			StrategyFactory: func(st StrategyType, desc *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				resolved = st
				fake.name = string(st)
				return fake, nil
			},
		})

		req := Request{Descriptor: &domain.Descriptor{URL: "https://github.com/octo/webflow.git"}}
		got, err := orch.Fetch(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, StrategyGithub, resolved)
		assert.Equal(t, 1, fake.fetches)
		assert.Same(t, fake, got.(*fakeStrategy))
	})

	t.Run("tag overrides url detection", func(t *testing.T) {
		var resolved StrategyType
		orch := newTestOrchestrator(t, OrchestratorOptions{
			StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				resolved = st
				return &fakeStrategy{name: string(st)}, nil
			},
		})

		req := Request{
			Descriptor: &domain.Descriptor{URL: "https://example.com/pkg-1.0.tar.gz"},
			Tag:        "post",
		}
		_, err := orch.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, StrategyPost, resolved)
	})

	t.Run("rejects unknown tags without creating a strategy", func(t *testing.T) {
		created := false
		orch := newTestOrchestrator(t, OrchestratorOptions{
			StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				created = true
				return &fakeStrategy{name: string(st)}, nil
			},
		})

		req := Request{
			Descriptor: &domain.Descriptor{URL: "https://example.com/pkg.tar.gz"},
			Tag:        "warp",
		}
		_, err := orch.Fetch(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
		assert.False(t, created)
	})

	t.Run("rejects requests without a url", func(t *testing.T) {
		orch := newTestOrchestrator(t, OrchestratorOptions{})
		_, err := orch.Fetch(context.Background(), Request{})
		assert.ErrorContains(t, err, "descriptor")
	})

	t.Run("surfaces fetch failures", func(t *testing.T) {
		fake := &fakeStrategy{fetchErr: assert.AnError}
		orch := newTestOrchestrator(t, OrchestratorOptions{
			StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				return fake, nil
			},
		})

		req := Request{Descriptor: &domain.Descriptor{URL: "https://example.com/pkg.tar.gz"}}
		_, err := orch.Fetch(context.Background(), req)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("returns the context error on cancellation", func(t *testing.T) {
		fake := &fakeStrategy{fetchFn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}
		orch := newTestOrchestrator(t, OrchestratorOptions{
			StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				return fake, nil
			},
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req := Request{Descriptor: &domain.Descriptor{URL: "https://example.com/pkg.tar.gz"}}
		_, err := orch.Fetch(ctx, req)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("quiet config silences strategies", func(t *testing.T) {
		fake := &fakeStrategy{}
		orch := newTestOrchestrator(t, OrchestratorOptions{
			StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				return fake, nil
			},
		})

		req := Request{Descriptor: &domain.Descriptor{URL: "https://example.com/pkg.tar.gz"}}
		_, err := orch.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, fake.quiet)
	})
}

func TestOrchestratorLockWait(t *testing.T) {
	t.Run("fails fast by default", func(t *testing.T) {
		fake := &fakeStrategy{fetchErr: domain.NewLockHeldError("/cache/pkg.lock")}
		orch := newTestOrchestrator(t, OrchestratorOptions{
			StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				return fake, nil
			},
		})

		req := Request{Descriptor: &domain.Descriptor{URL: "https://example.com/pkg.tar.gz"}}
		_, err := orch.Fetch(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrLockHeld)
		assert.Equal(t, 1, fake.fetches)
	})

	t.Run("waits out a held lock when asked", func(t *testing.T) {
		attempts := 0
		fake := &fakeStrategy{fetchFn: func(context.Context) error {
			attempts++
			if attempts == 1 {
				return domain.NewLockHeldError("/cache/pkg.lock")
			}
			return nil
		}}
		orch := newTestOrchestrator(t, OrchestratorOptions{
			WaitForLock: true,
			StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				return fake, nil
			},
		})

		req := Request{Descriptor: &domain.Descriptor{URL: "https://example.com/pkg.tar.gz"}}
		_, err := orch.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 2, fake.fetches)
	})

	t.Run("does not retry other failures", func(t *testing.T) {
		fake := &fakeStrategy{fetchErr: assert.AnError}
		orch := newTestOrchestrator(t, OrchestratorOptions{
			WaitForLock: true,
			StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				return fake, nil
			},
		})

		req := Request{Descriptor: &domain.Descriptor{URL: "https://example.com/pkg.tar.gz"}}
		_, err := orch.Fetch(context.Background(), req)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, fake.fetches)
	})
}

func TestOrchestratorStage(t *testing.T) {
	fake := &fakeStrategy{}
	orch := newTestOrchestrator(t, OrchestratorOptions{
		StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
			return fake, nil
		},
	})

	dest := t.TempDir()
	req := Request{Descriptor: &domain.Descriptor{URL: "https://example.com/pkg.tar.gz"}}

	workdir, err := orch.Stage(context.Background(), req, dest)
	require.NoError(t, err)

	assert.Equal(t, dest, workdir)
	assert.Equal(t, dest, fake.stagedTo)
	assert.Equal(t, 1, fake.fetches, "stage fetches before unpacking")
}

func TestOrchestratorClearCache(t *testing.T) {
	fake := &fakeStrategy{location: "/cache/pkg--1.0.tar.gz"}
	orch := newTestOrchestrator(t, OrchestratorOptions{
		StrategyFactory: func(st StrategyType, _ *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
			return fake, nil
		},
	})

	req := Request{Descriptor: &domain.Descriptor{URL: "https://example.com/pkg.tar.gz"}}
	require.NoError(t, orch.ClearCache(req))

	assert.True(t, fake.cleared)
	assert.Zero(t, fake.fetches, "clearing must not touch the network")
}

func TestOrchestratorClearAll(t *testing.T) {
	cfg := testOrchestratorConfig(t)
	cfg.APICache.Dir = filepath.Join(cfg.CacheDir, "api")
	orch := newTestOrchestrator(t, OrchestratorOptions{Config: cfg})

	require.NoError(t, os.MkdirAll(filepath.Join(cfg.CacheDir, "downloads"), 0o755))
	require.NoError(t, os.MkdirAll(cfg.APICache.Dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CacheDir, "pkg--1.0.tar.gz"), []byte("x"), 0o644))

	require.NoError(t, orch.ClearAll())

	assert.NoDirExists(t, filepath.Join(cfg.CacheDir, "downloads"))
	assert.NoFileExists(t, filepath.Join(cfg.CacheDir, "pkg--1.0.tar.gz"))
	assert.DirExists(t, cfg.APICache.Dir, "open metadata store must survive")
}

func TestOrchestratorFetchAll(t *testing.T) {
	newBatch := func(t *testing.T, cfg *config.Config, failing map[string]error) (*Orchestrator, map[string]*fakeStrategy) {
		t.Helper()
		var mu sync.Mutex
		created := make(map[string]*fakeStrategy)
		orch := newTestOrchestrator(t, OrchestratorOptions{
			Config: cfg,
			StrategyFactory: func(st StrategyType, desc *domain.Descriptor, _ *strategies.Dependencies) (strategies.Strategy, error) {
				fake := &fakeStrategy{name: string(st), fetchErr: failing[desc.URL]}
				mu.Lock()
				created[desc.URL] = fake
				mu.Unlock()
				return fake, nil
			},
		})
		return orch, created
	}

	requests := func(urls ...string) []Request {
		reqs := make([]Request, len(urls))
		for i, u := range urls {
			reqs[i] = Request{Descriptor: &domain.Descriptor{URL: u}}
		}
		return reqs
	}

	t.Run("fetches every resource", func(t *testing.T) {
		orch, created := newBatch(t, nil, nil)
		reqs := requests(
			"https://example.com/a.tar.gz",
			"https://example.com/b.tar.gz",
			"https://example.com/c.tar.gz",
		)

		require.NoError(t, orch.FetchAll(context.Background(), reqs, false))

		require.Len(t, created, 3)
		for url, fake := range created {
			assert.Equal(t, 1, fake.fetches, url)
		}
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		orch, created := newBatch(t, nil, nil)
		require.NoError(t, orch.FetchAll(context.Background(), nil, false))
		assert.Empty(t, created)
	})

	t.Run("continues past failures when asked", func(t *testing.T) {
		failing := map[string]error{"https://example.com/b.tar.gz": assert.AnError}
		orch, created := newBatch(t, nil, failing)
		reqs := requests(
			"https://example.com/a.tar.gz",
			"https://example.com/b.tar.gz",
			"https://example.com/c.tar.gz",
		)

		err := orch.FetchAll(context.Background(), reqs, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
		assert.ErrorContains(t, err, "1/3 failures")

		require.Len(t, created, 3)
		for url, fake := range created {
			assert.Equal(t, 1, fake.fetches, url)
		}
	})

	t.Run("stops at the first failure otherwise", func(t *testing.T) {
		cfg := testOrchestratorConfig(t)
		cfg.Concurrency = 1
		failing := map[string]error{"https://example.com/a.tar.gz": assert.AnError}
		orch, created := newBatch(t, cfg, failing)
		reqs := requests(
			"https://example.com/a.tar.gz",
			"https://example.com/b.tar.gz",
			"https://example.com/c.tar.gz",
		)

		err := orch.FetchAll(context.Background(), reqs, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
		assert.ErrorContains(t, err, "fetch https://example.com/a.tar.gz")
		assert.Equal(t, 1, created["https://example.com/a.tar.gz"].fetches)
	})

	t.Run("cancellation wins over partial results", func(t *testing.T) {
		orch, _ := newBatch(t, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := orch.FetchAll(ctx, requests("https://example.com/a.tar.gz"), true)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDoctor(t *testing.T) {
	newDoctor := func(t *testing.T, gitVersion string, missing map[string]bool) []ToolCheck {
		t.Helper()
		ctrl := gomock.NewController(t)
		runner := runmock.NewMockRunner(ctrl)

		runner.EXPECT().LookPath(gomock.Any()).DoAndReturn(func(name string) (string, error) {
			if missing[name] {
				return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
			}
			return "/usr/bin/" + name, nil
		}).AnyTimes()

		versions := map[string]string{
			"curl":   "curl 8.7.1 (x86_64-pc-linux-gnu) libcurl/8.7.1",
			"git":    gitVersion,
			"svn":    "1.14.3",
			"hg":     "6.8.1",
			"bzr":    "Breezy (brz) 3.3.8",
			"cvs":    "Concurrent Versions System (CVS) 1.12.13",
			"fossil": "This is fossil version 2.24 [8be0372c10] 2024-04-23",
		}
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd domain.Command) (*domain.RunResult, error) {
			return &domain.RunResult{Stdout: versions[cmd.Name] + "\n"}, nil
		}).AnyTimes()

		orch := newTestOrchestrator(t, OrchestratorOptions{})
		orch.deps.Runner = runner
		return orch.Doctor(context.Background())
	}

	t.Run("reports every tool in order", func(t *testing.T) {
		checks := newDoctor(t, "git version 2.39.5", nil)
		require.Len(t, checks, 7)

		tools := make([]string, len(checks))
		for i, c := range checks {
			tools[i] = c.Tool
			assert.True(t, c.Ok(), c.Tool)
			assert.NotEmpty(t, c.Version, c.Tool)
		}
		assert.Equal(t, []string{"curl", "git", "svn", "hg", "bzr", "cvs", "fossil"}, tools)
	})

	t.Run("flags a git too old for sparse checkouts", func(t *testing.T) {
		checks := newDoctor(t, "git version 2.20.1", nil)
		var git ToolCheck
		for _, c := range checks {
			if c.Tool == "git" {
				git = c
			}
		}
		assert.True(t, git.Ok())
		assert.Contains(t, git.Warning, "sparse checkouts")
	})

	t.Run("recent git draws no warning", func(t *testing.T) {
		checks := newDoctor(t, "git version 2.39.5 (Apple Git-154)", nil)
		for _, c := range checks {
			if c.Tool == "git" {
				assert.Empty(t, c.Warning)
			}
		}
	})

	t.Run("missing tools are reported, not fatal", func(t *testing.T) {
		checks := newDoctor(t, "git version 2.39.5", map[string]bool{"svn": true})
		for _, c := range checks {
			if c.Tool == "svn" {
				assert.False(t, c.Ok())
				assert.Error(t, c.Err)
				assert.Empty(t, c.Path)
			} else {
				assert.True(t, c.Ok(), c.Tool)
			}
		}
	})
}

func TestParseToolVersion(t *testing.T) {
	v, err := parseToolVersion("git version 2.39.5 (Apple Git-154)")
	require.NoError(t, err)
	assert.Equal(t, "2.39.5", v.String())

	_, err = parseToolVersion("flurble")
	assert.Error(t, err)
}
