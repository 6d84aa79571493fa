package vcs

import (
	"context"
	"regexp"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/github"
	"github.com/goferpkg/gofer/internal/strategies"
)

var _ strategies.Strategy = (*GithubStrategy)(nil)

// GithubStrategy is the git strategy with GitHub API shortcuts: the commits
// API answers whether the local head is stale before any git fetch runs,
// and the default branch comes from the remote's symbolic HEAD.
type GithubStrategy struct {
	*GitStrategy
	owner string
	repo  string

	branchResolved bool
	branchName     string
}

// NewGithubStrategy creates the GitHub-aware git download strategy.
func NewGithubStrategy(desc *domain.Descriptor, deps *strategies.Dependencies) *GithubStrategy {
	s := &GithubStrategy{GitStrategy: NewGitStrategy(desc, deps)}
	s.owner, s.repo, _ = github.SplitURL(desc.URL)
	s.backend = s
	return s
}

func (s *GithubStrategy) Name() string { return "github" }

// Update skips the git fetch when the commits API says the local head is
// already the newest commit on the tracked ref. Tag and revision refs are
// immutable and handled by the plain git path.
func (s *GithubStrategy) Update(ctx context.Context) error {
	if s.canConsultAPI() {
		local, err := s.Deps.Inspector.HeadRevision(s.CachedLocation())
		if err == nil {
			outdated, apiErr := s.Deps.GitHub.CommitOutdated(ctx, s.owner, s.repo, s.apiRef(ctx), local)
			switch {
			case apiErr != nil:
				s.Logger().Debug().Err(apiErr).Msg("Commit lookup failed, falling back to git fetch")
			case !outdated:
				s.Logger().Info().Str("cache", s.CachedLocation()).Msg("Local checkout is current")
				return nil
			}
		}
	}
	return s.GitStrategy.Update(ctx)
}

func (s *GithubStrategy) canConsultAPI() bool {
	if s.owner == "" || s.repo == "" || s.Deps.GitHub == nil {
		return false
	}
	return s.ref.Type == domain.RefNone || s.ref.Type == domain.RefBranch
}

func (s *GithubStrategy) apiRef(ctx context.Context) string {
	if s.ref.Value != "" {
		return s.ref.Value
	}
	if branch := s.defaultBranch(ctx); branch != "" {
		return branch
	}
	return "HEAD"
}

var symrefPattern = regexp.MustCompile(`(?m)^ref:\s+refs/heads/(\S+)\s+HEAD$`)

// defaultBranch resolves the remote's symbolic HEAD, once per instance.
// When ls-remote cannot answer, the repository API is consulted instead.
func (s *GithubStrategy) defaultBranch(ctx context.Context) string {
	if s.branchResolved {
		return s.branchName
	}
	s.branchResolved = true

	result, err := s.git(ctx, "", "ls-remote", "--symref", s.Desc.URL, "HEAD")
	if err != nil {
		s.Logger().Debug().Err(err).Msg("Resolving the default branch failed")
	} else if m := symrefPattern.FindStringSubmatch(result.Stdout); m != nil {
		s.branchName = m[1]
	}

	if s.branchName == "" && s.Deps.GitHub != nil && s.owner != "" && s.repo != "" {
		branch, apiErr := s.Deps.GitHub.DefaultBranch(ctx, s.owner, s.repo)
		if apiErr != nil {
			s.Logger().Debug().Err(apiErr).Msg("Branch lookup failed")
		} else {
			s.branchName = branch
		}
	}
	return s.branchName
}
