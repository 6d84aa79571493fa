package vcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goferpkg/gofer/internal/domain"
)

// stubInspector scripts the local repository state git strategies read
// through go-git.
type stubInspector struct {
	valid   bool
	head    string
	headErr error
	when    time.Time
	shallow bool
}

func (s *stubInspector) Valid(string) bool                    { return s.valid }
func (s *stubInspector) HeadRevision(string) (string, error)  { return s.head, s.headErr }
func (s *stubInspector) CommitTime(string) (time.Time, error) { return s.when, nil }
func (s *stubInspector) IsShallow(string) (bool, error)       { return s.shallow, nil }

// serveGitVersion answers `git version` probes and lets everything else
// succeed silently.
func serveGitVersion(version string) func(cmd domain.Command) (*domain.RunResult, error) {
	return func(cmd domain.Command) (*domain.RunResult, error) {
		if len(cmd.Args) > 0 && cmd.Args[0] == "version" {
			return &domain.RunResult{Stdout: "git version " + version + "\n"}, nil
		}
		return &domain.RunResult{}, nil
	}
}

func newGitUnderTest(t *testing.T, desc *domain.Descriptor, inspector *stubInspector,
	respond func(domain.Command) (*domain.RunResult, error)) (*GitStrategy, *commandLog) {
	t.Helper()
	deps := testDeps(t, testConfig(t))
	runner, log := mockRunner(t, respond)
	deps.Runner = runner
	deps.Inspector = inspector
	return NewGitStrategy(desc, deps), log
}

func TestGitClone(t *testing.T) {
	ctx := context.Background()
	url := "https://example.com/scm/repo.git"

	t.Run("shallow clones by default", func(t *testing.T) {
		s, log := newGitUnderTest(t, testDescriptor(url, "repo", "1.0"), &stubInspector{}, nil)

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 1)
		clone := log.calls[0]
		assert.Equal(t, "git", clone.Name)
		assert.Equal(t, []string{
			"clone", "--depth", "1",
			"-c", "advice.detachedHead=false",
			url, s.CachedLocation(),
		}, clone.Args)
		assert.Contains(t, clone.Env, "GIT_TERMINAL_PROMPT=0")
	})

	t.Run("checks out a pinned tag", func(t *testing.T) {
		desc := testDescriptor(url, "repo", "1.2.0")
		desc.Meta.Tag = "v1.2.0"
		s, log := newGitUnderTest(t, desc, &stubInspector{}, nil)

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 2)
		assert.Contains(t, log.calls[0].Args, "--branch")
		assert.Contains(t, log.calls[0].Args, "v1.2.0")
		assert.Equal(t, []string{"checkout", "-f", "v1.2.0", "--"}, log.calls[1].Args)
		assert.Equal(t, s.CachedLocation(), log.calls[1].Dir)
	})

	t.Run("clones full history for a revision ref", func(t *testing.T) {
		desc := testDescriptor(url, "repo", "1.0")
		desc.Meta.Revision = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
		s, log := newGitUnderTest(t, desc, &stubInspector{}, nil)

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 2)
		assert.NotContains(t, log.calls[0].Args, "--depth")
		assert.Equal(t, []string{"checkout", "-f", desc.Meta.Revision, "--"}, log.calls[1].Args)
	})

	t.Run("sparse checkout sets cone paths", func(t *testing.T) {
		desc := testDescriptor(url, "repo", "1.0")
		desc.Meta.OnlyPaths = []string{"docs", "tools/gen"}
		s, log := newGitUnderTest(t, desc, &stubInspector{}, serveGitVersion("2.39.5"))

		require.NoError(t, s.Fetch(ctx))

		assert.Equal(t, "repo--git-sparse", filepath.Base(s.CachedLocation()))
		require.Len(t, log.calls, 4)
		assert.Contains(t, log.calls[0].Args, "--no-checkout")
		assert.Contains(t, log.calls[0].Args, "--filter=blob:none")
		assert.Equal(t, []string{"version"}, log.calls[1].Args)
		assert.Equal(t, []string{"sparse-checkout", "set", "--cone", "docs", "tools/gen"}, log.calls[2].Args)
		assert.Equal(t, []string{"checkout", "-f"}, log.calls[3].Args)
	})

	t.Run("rejects sparse checkout on old git", func(t *testing.T) {
		desc := testDescriptor(url, "repo", "1.0")
		desc.Meta.OnlyPaths = []string{"docs"}
		s, _ := newGitUnderTest(t, desc, &stubInspector{}, serveGitVersion("2.24.0"))

		require.ErrorContains(t, s.Fetch(ctx), "requires git >= 2.25")
	})
}

func TestGitUpdate(t *testing.T) {
	ctx := context.Background()
	url := "https://example.com/scm/repo.git"

	existing := func(t *testing.T, desc *domain.Descriptor, inspector *stubInspector,
		respond func(domain.Command) (*domain.RunResult, error)) (*GitStrategy, *commandLog) {
		t.Helper()
		s, log := newGitUnderTest(t, desc, inspector, respond)
		require.NoError(t, os.MkdirAll(s.CachedLocation(), 0o755))
		return s, log
	}

	t.Run("fetches and resets a tracked branch", func(t *testing.T) {
		desc := testDescriptor(url, "repo", "1.0")
		desc.Meta.Branch = "main"
		s, log := existing(t, desc, &stubInspector{valid: true}, nil)

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 3)
		assert.Equal(t, []string{"fetch", "origin"}, log.calls[0].Args)
		assert.Equal(t, s.CachedLocation(), log.calls[0].Dir)
		assert.Equal(t, []string{"checkout", "-f", "main", "--"}, log.calls[1].Args)
		assert.Equal(t, []string{"reset", "--hard", "origin/main", "--"}, log.calls[2].Args)
	})

	t.Run("unshallows before following a branch", func(t *testing.T) {
		desc := testDescriptor(url, "repo", "1.0")
		desc.Meta.Branch = "main"
		s, log := existing(t, desc, &stubInspector{valid: true, shallow: true}, nil)

		require.NoError(t, s.Fetch(ctx))

		require.NotEmpty(t, log.calls)
		assert.Equal(t, []string{"fetch", "--unshallow"}, log.calls[0].Args)
	})

	t.Run("skips the fetch when a pinned revision is present", func(t *testing.T) {
		desc := testDescriptor(url, "repo", "1.0")
		desc.Meta.Revision = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
		s, log := existing(t, desc, &stubInspector{valid: true}, nil)

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 3)
		assert.Equal(t, []string{"rev-parse", "-q", "--verify", desc.Meta.Revision + "^{commit}"}, log.calls[0].Args)
		assert.Equal(t, []string{"checkout", "-f", desc.Meta.Revision, "--"}, log.calls[1].Args)
		assert.Equal(t, []string{"reset", "--hard", desc.Meta.Revision, "--"}, log.calls[2].Args)
	})

	t.Run("fetches when the pinned revision is absent", func(t *testing.T) {
		desc := testDescriptor(url, "repo", "1.0")
		desc.Meta.Revision = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
		respond := func(cmd domain.Command) (*domain.RunResult, error) {
			if len(cmd.Args) > 0 && cmd.Args[0] == "rev-parse" {
				return nil, errors.New("unknown revision")
			}
			return &domain.RunResult{}, nil
		}
		s, log := existing(t, desc, &stubInspector{valid: true}, respond)

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 4)
		assert.Equal(t, []string{"fetch", "origin"}, log.calls[1].Args)
	})

	t.Run("refless update resets to the remote head", func(t *testing.T) {
		s, log := existing(t, testDescriptor(url, "repo", "1.0"), &stubInspector{valid: true}, nil)

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 2)
		assert.Equal(t, []string{"fetch", "origin"}, log.calls[0].Args)
		assert.Equal(t, []string{"reset", "--hard", "origin/HEAD", "--"}, log.calls[1].Args)
	})

	t.Run("refreshes submodules after checkout", func(t *testing.T) {
		desc := testDescriptor(url, "repo", "1.0")
		desc.Meta.Branch = "main"
		desc.Meta.Submodules = true
		s, log := existing(t, desc, &stubInspector{valid: true}, nil)

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 6)
		assert.Equal(t, []string{"submodule", "foreach", "--recursive", "git submodule sync"}, log.calls[3].Args)
		assert.Equal(t, []string{"submodule", "update", "--init", "--recursive"}, log.calls[4].Args)
		assert.Equal(t, []string{"submodule", "--quiet", "foreach", "--recursive", "pwd"}, log.calls[5].Args)
	})
}

func TestGitSubmoduleGitDirRepair(t *testing.T) {
	ctx := context.Background()

	checkout := t.TempDir()
	sub := filepath.Join(checkout, "vendor", "dep")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	gitdir := filepath.Join(checkout, ".git", "modules", "vendor", "dep")

	absolute := filepath.Join(sub, ".git")
	require.NoError(t, os.WriteFile(absolute, []byte("gitdir: "+gitdir+"\n"), 0o644))

	respond := func(cmd domain.Command) (*domain.RunResult, error) {
		return &domain.RunResult{Stdout: sub + "\n"}, nil
	}
	s, _ := newGitUnderTest(t, testDescriptor("https://example.com/scm/repo.git", "repo", "1.0"), &stubInspector{}, respond)

	require.NoError(t, s.fixSubmoduleGitDirs(ctx))

	data, err := os.ReadFile(absolute)
	require.NoError(t, err)
	rel, err := filepath.Rel(sub, gitdir)
	require.NoError(t, err)
	assert.Equal(t, "gitdir: "+rel+"\n", string(data))
}

func TestGitVersionParse(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts the version number", func(t *testing.T) {
		s, _ := newGitUnderTest(t, testDescriptor("https://example.com/r.git", "r", "1.0"),
			&stubInspector{}, serveGitVersion("2.39.5 (Apple Git-154)"))

		v, err := s.gitVersion(ctx)

		require.NoError(t, err)
		assert.Equal(t, "2.39.5", v.String())
	})

	t.Run("rejects unrecognized output", func(t *testing.T) {
		respond := func(domain.Command) (*domain.RunResult, error) {
			return &domain.RunResult{Stdout: "flurble\n"}, nil
		}
		s, _ := newGitUnderTest(t, testDescriptor("https://example.com/r.git", "r", "1.0"),
			&stubInspector{}, respond)

		_, err := s.gitVersion(ctx)

		require.ErrorContains(t, err, "unrecognized git version")
	})
}

func TestGitInspection(t *testing.T) {
	ctx := context.Background()
	when := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	inspector := &stubInspector{head: "abc123abc123abc123abc123abc123abc123abc1", when: when}
	s, _ := newGitUnderTest(t, testDescriptor("https://example.com/r.git", "r", "1.0"), inspector, nil)

	rev, err := s.CurrentRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, inspector.head, rev)

	last, err := s.LastCommit(ctx)
	require.NoError(t, err)
	assert.Equal(t, inspector.head, last)

	got, err := s.ModTime(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(when))
}
