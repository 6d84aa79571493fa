package vcs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/strategies"
	"github.com/goferpkg/gofer/internal/utils"
)

var _ strategies.Strategy = (*SvnStrategy)(nil)

// SvnStrategy fetches Subversion repositories: plain checkouts, pinned
// single revisions, and multi-module checkouts where each external lands
// in its own subdirectory at its own pinned revision.
type SvnStrategy struct {
	Base
	url string
	ref domain.Ref
}

// NewSvnStrategy creates the svn download strategy.
func NewSvnStrategy(desc *domain.Descriptor, deps *strategies.Dependencies) *SvnStrategy {
	s := &SvnStrategy{}
	s.Base = NewBase(desc, deps, s)
	s.url = utils.RewriteScheme(desc.URL, "svn+http://", "http://")
	s.url = utils.RewriteScheme(s.url, "svn+https://", "https://")
	s.ref = desc.Meta.ExtractRef(domain.RefRevision, domain.RefRevisions)
	return s
}

func (s *SvnStrategy) Name() string { return "svn" }

// CacheTag keeps head checkouts apart from release checkouts; they move at
// different speeds.
func (s *SvnStrategy) CacheTag() string {
	if s.Desc.Version.IsHead() {
		return "svn-HEAD"
	}
	return "svn"
}

func (s *SvnStrategy) RepoValid(_ context.Context) bool {
	return utils.DirExists(filepath.Join(s.CachedLocation(), ".svn"))
}

func (s *SvnStrategy) CloneRepo(ctx context.Context) error {
	location := s.CachedLocation()

	switch s.ref.Type {
	case domain.RefRevision:
		return s.fetchRepo(ctx, location, s.url, s.ref.Value, false)
	case domain.RefRevisions:
		// The trunk revision may be empty; the checkout then follows
		// the repository head while externals stay pinned.
		if err := s.fetchRepo(ctx, location, s.url, s.ref.Revisions[domain.TrunkKey], true); err != nil {
			return err
		}
		return s.fetchExternals(ctx, func(name, url string) error {
			return s.fetchRepo(ctx, filepath.Join(location, name), url, s.ref.Revisions[name], true)
		})
	default:
		return s.fetchRepo(ctx, location, s.url, "", false)
	}
}

// Update reuses the clone path: svn checkout and update converge on the
// requested revision either way.
func (s *SvnStrategy) Update(ctx context.Context) error {
	return s.CloneRepo(ctx)
}

func (s *SvnStrategy) CurrentRevision(ctx context.Context) (string, error) {
	return s.showItem(ctx, "revision")
}

func (s *SvnStrategy) LastCommit(ctx context.Context) (string, error) {
	return s.showItem(ctx, "revision")
}

func (s *SvnStrategy) ModTime(ctx context.Context) (time.Time, error) {
	raw, err := s.showItem(ctx, "last-changed-date")
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing svn timestamp %q: %w", raw, err)
	}
	return t, nil
}

// fetchRepo converges target on the requested revision: update in place
// when a working copy exists, check out fresh otherwise.
func (s *SvnStrategy) fetchRepo(ctx context.Context, target, url, revision string, ignoreExternals bool) error {
	var args []string
	if s.Quiet() {
		args = append(args, "--quiet")
	}
	if revision != "" {
		s.Logger().Info().Str("revision", revision).Msg("Checking out")
		args = append(args, "-r", revision)
	}
	if ignoreExternals {
		args = append(args, "--ignore-externals")
	}
	if s.Desc.Meta.TrustCert {
		args = append(args, "--trust-server-cert", "--non-interactive")
	}

	if utils.DirExists(target) {
		cmd := domain.Command{Name: "svn", Args: append([]string{"update"}, args...), Dir: target}
		_, err := s.Deps.Runner.Run(ctx, cmd)
		return err
	}
	cmd := domain.Command{Name: "svn", Args: append([]string{"checkout", url, target}, args...)}
	_, err := s.Deps.Runner.Run(ctx, cmd)
	return err
}

// fetchExternals enumerates the repository's svn:externals definitions.
func (s *SvnStrategy) fetchExternals(ctx context.Context, fn func(name, url string) error) error {
	result, err := s.Deps.Runner.Run(ctx, domain.Command{
		Name: "svn",
		Args: []string{"propget", "svn:externals", s.url},
	})
	if err != nil {
		return err
	}

	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if err := fn(fields[0], fields[1]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SvnStrategy) showItem(ctx context.Context, item string) (string, error) {
	result, err := s.Deps.Runner.Run(ctx, domain.Command{
		Name: "svn",
		Args: []string{"info", "--show-item", item, s.CachedLocation()},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}
