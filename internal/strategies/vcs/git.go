package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/strategies"
	"github.com/goferpkg/gofer/internal/utils"
)

var _ strategies.Strategy = (*GitStrategy)(nil)

// GitStrategy fetches git repositories through the git CLI, keeping local
// state inspection (validity, HEAD, timestamps) in-process via go-git.
// Clones are shallow by default; a revision ref needs history and forces a
// full clone, and an existing shallow clone is unshallowed on update.
type GitStrategy struct {
	Base
	ref domain.Ref
}

// NewGitStrategy creates the git download strategy.
func NewGitStrategy(desc *domain.Descriptor, deps *strategies.Dependencies) *GitStrategy {
	g := &GitStrategy{}
	g.Base = NewBase(desc, deps, g)
	g.ref = desc.Meta.ExtractRef(domain.RefTag, domain.RefBranch, domain.RefRevision)
	return g
}

func (g *GitStrategy) Name() string { return "git" }

// CacheTag separates sparse checkouts from full ones; they are not
// interchangeable on disk.
func (g *GitStrategy) CacheTag() string {
	if g.sparse() {
		return "git-sparse"
	}
	return "git"
}

func (g *GitStrategy) RepoValid(_ context.Context) bool {
	return g.Deps.Inspector.Valid(g.CachedLocation())
}

func (g *GitStrategy) CloneRepo(ctx context.Context) error {
	args := []string{"clone"}
	if g.shallowClone() {
		args = append(args, "--depth", "1")
	}
	switch g.ref.Type {
	case domain.RefBranch, domain.RefTag:
		args = append(args, "--branch", g.ref.Value)
	}
	if g.sparse() {
		args = append(args, "--no-checkout", "--filter=blob:none")
	}
	args = append(args, "-c", "advice.detachedHead=false", g.Desc.URL, g.CachedLocation())

	if _, err := g.git(ctx, "", args...); err != nil {
		return err
	}

	if g.sparse() {
		if err := g.configureSparseCheckout(ctx); err != nil {
			return err
		}
	}
	if err := g.checkout(ctx); err != nil {
		return err
	}
	if g.Desc.Meta.Submodules {
		return g.updateSubmodules(ctx)
	}
	return nil
}

func (g *GitStrategy) Update(ctx context.Context) error {
	if err := g.updateRepo(ctx); err != nil {
		return err
	}
	if err := g.checkout(ctx); err != nil {
		return err
	}
	if err := g.reset(ctx); err != nil {
		return err
	}
	if g.Desc.Meta.Submodules {
		return g.updateSubmodules(ctx)
	}
	return nil
}

// updateRepo fetches new history. Tag and revision refs are immutable, so
// when the checkout already has the ref there is nothing to fetch.
func (g *GitStrategy) updateRepo(ctx context.Context) error {
	if g.ref.Type != domain.RefBranch && g.hasRef(ctx) {
		return nil
	}

	if shallow, err := g.Deps.Inspector.IsShallow(g.CachedLocation()); err == nil && shallow {
		_, err := g.git(ctx, g.CachedLocation(), "fetch", "--unshallow")
		return err
	}
	_, err := g.git(ctx, g.CachedLocation(), "fetch", "origin")
	return err
}

func (g *GitStrategy) checkout(ctx context.Context) error {
	if g.ref.Value == "" {
		// No explicit ref: the clone already sits on the remote's
		// default branch. Sparse clones still need their first
		// checkout materialized.
		if !g.sparse() {
			return nil
		}
		_, err := g.git(ctx, g.CachedLocation(), "checkout", "-f")
		return err
	}

	g.Logger().Info().Str("ref", g.ref.Value).Msg("Checking out")
	_, err := g.git(ctx, g.CachedLocation(), "checkout", "-f", g.ref.Value, "--")
	return err
}

// reset hard-aligns the work tree after an update: branches move with their
// remote, tags and revisions stay pinned.
func (g *GitStrategy) reset(ctx context.Context) error {
	target := "origin/HEAD"
	switch g.ref.Type {
	case domain.RefBranch:
		target = "origin/" + g.ref.Value
	case domain.RefTag, domain.RefRevision:
		target = g.ref.Value
	}
	_, err := g.git(ctx, g.CachedLocation(), "reset", "--hard", target, "--")
	return err
}

func (g *GitStrategy) CurrentRevision(_ context.Context) (string, error) {
	return g.Deps.Inspector.HeadRevision(g.CachedLocation())
}

func (g *GitStrategy) LastCommit(_ context.Context) (string, error) {
	return g.Deps.Inspector.HeadRevision(g.CachedLocation())
}

func (g *GitStrategy) ModTime(_ context.Context) (time.Time, error) {
	return g.Deps.Inspector.CommitTime(g.CachedLocation())
}

// shallowClone reports whether the clone can cut history. A revision ref
// needs the full history to find its commit.
func (g *GitStrategy) shallowClone() bool {
	return g.ref.Type != domain.RefRevision
}

func (g *GitStrategy) sparse() bool {
	return len(g.Desc.Meta.OnlyPaths) > 0
}

// hasRef reports whether the checkout already contains the requested ref.
func (g *GitStrategy) hasRef(ctx context.Context) bool {
	if g.ref.Value == "" {
		return false
	}
	_, err := g.git(ctx, g.CachedLocation(), "rev-parse", "-q", "--verify", g.ref.Value+"^{commit}")
	return err == nil
}

// minSparseGit is the first release shipping the sparse-checkout command.
var minSparseGit = goversion.Must(goversion.NewVersion("2.25"))

func (g *GitStrategy) configureSparseCheckout(ctx context.Context) error {
	installed, err := g.gitVersion(ctx)
	if err != nil {
		return err
	}
	if installed.LessThan(minSparseGit) {
		return fmt.Errorf("sparse checkout of %s requires git >= %s, found %s",
			utils.RedactURL(g.Desc.URL), minSparseGit, installed)
	}

	args := append([]string{"sparse-checkout", "set", "--cone"}, g.Desc.Meta.OnlyPaths...)
	_, err = g.git(ctx, g.CachedLocation(), args...)
	return err
}

var gitVersionPattern = regexp.MustCompile(`\d+(?:\.\d+)+`)

func (g *GitStrategy) gitVersion(ctx context.Context) (*goversion.Version, error) {
	result, err := g.git(ctx, "", "version")
	if err != nil {
		return nil, err
	}
	raw := gitVersionPattern.FindString(result.Stdout)
	if raw == "" {
		return nil, fmt.Errorf("unrecognized git version output %q", strings.TrimSpace(result.Stdout))
	}
	return goversion.NewVersion(raw)
}

func (g *GitStrategy) updateSubmodules(ctx context.Context) error {
	for _, args := range [][]string{
		{"submodule", "foreach", "--recursive", "git submodule sync"},
		{"submodule", "update", "--init", "--recursive"},
	} {
		if _, err := g.git(ctx, g.CachedLocation(), args...); err != nil {
			return err
		}
	}
	return g.fixSubmoduleGitDirs(ctx)
}

var gitdirPattern = regexp.MustCompile(`(?m)^gitdir: (.+)$`)

// fixSubmoduleGitDirs rewrites absolute gitdir references in submodule .git
// files to relative ones. Git used to record absolute paths, which break as
// soon as the checkout is copied or renamed during staging.
func (g *GitStrategy) fixSubmoduleGitDirs(ctx context.Context) error {
	result, err := g.git(ctx, g.CachedLocation(), "submodule", "--quiet", "foreach", "--recursive", "pwd")
	if err != nil {
		return err
	}

	for _, dir := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		if dir == "" {
			continue
		}
		dotGit := filepath.Join(dir, ".git")
		info, err := os.Stat(dotGit)
		if err != nil || info.IsDir() {
			continue
		}

		data, err := os.ReadFile(dotGit)
		if err != nil {
			continue
		}
		match := gitdirPattern.FindSubmatch(data)
		if match == nil {
			continue
		}
		gitdir := strings.TrimSpace(string(match[1]))
		if !filepath.IsAbs(gitdir) {
			continue
		}

		rel, err := filepath.Rel(dir, gitdir)
		if err != nil {
			continue
		}
		if err := os.WriteFile(dotGit, []byte("gitdir: "+rel+"\n"), info.Mode().Perm()); err != nil {
			return fmt.Errorf("repairing submodule gitdir in %s: %w", dir, err)
		}
	}
	return nil
}

// git runs the git CLI. Network operations never prompt for credentials;
// a repository needing them fails instead of hanging a batch fetch.
func (g *GitStrategy) git(ctx context.Context, dir string, args ...string) (*domain.RunResult, error) {
	return g.Deps.Runner.Run(ctx, domain.Command{
		Name: "git",
		Args: args,
		Dir:  dir,
		Env:  []string{"GIT_TERMINAL_PROMPT=0"},
	})
}
