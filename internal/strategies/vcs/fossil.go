package vcs

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/strategies"
	"github.com/goferpkg/gofer/internal/utils"
)

var _ strategies.Strategy = (*FossilStrategy)(nil)

// FossilStrategy fetches Fossil repositories. Unlike the other systems the
// cache entry is the repository file itself, not a checkout directory, so
// every operation addresses it with -R.
type FossilStrategy struct {
	Base
	url string
}

// NewFossilStrategy creates the Fossil download strategy.
func NewFossilStrategy(desc *domain.Descriptor, deps *strategies.Dependencies) *FossilStrategy {
	f := &FossilStrategy{}
	f.Base = NewBase(desc, deps, f)
	f.url = utils.RewriteScheme(desc.URL, "fossil://", "")
	return f
}

func (f *FossilStrategy) Name() string { return "fossil" }

func (f *FossilStrategy) CacheTag() string { return "fossil" }

func (f *FossilStrategy) RepoValid(ctx context.Context) bool {
	_, err := f.fossil(ctx, "branch", "-R", f.CachedLocation())
	return err == nil
}

func (f *FossilStrategy) CloneRepo(ctx context.Context) error {
	_, err := f.fossil(ctx, "clone", f.url, f.CachedLocation())
	return err
}

func (f *FossilStrategy) Update(ctx context.Context) error {
	_, err := f.fossil(ctx, "pull", "-R", f.CachedLocation())
	return err
}

func (f *FossilStrategy) CurrentRevision(ctx context.Context) (string, error) {
	uuid, _, err := f.tip(ctx)
	return uuid, err
}

func (f *FossilStrategy) LastCommit(ctx context.Context) (string, error) {
	uuid, _, err := f.tip(ctx)
	return uuid, err
}

func (f *FossilStrategy) ModTime(ctx context.Context) (time.Time, error) {
	_, when, err := f.tip(ctx)
	return when, err
}

var fossilTipPattern = regexp.MustCompile(`(?m)^uuid:\s+([0-9a-f]+) (.+)$`)

// tip parses the "uuid: <hash> <timestamp>" line of fossil info output into
// the tip artifact hash and its commit time.
func (f *FossilStrategy) tip(ctx context.Context) (string, time.Time, error) {
	result, err := f.fossil(ctx, "info", "tip", "-R", f.CachedLocation())
	if err != nil {
		return "", time.Time{}, err
	}

	match := fossilTipPattern.FindStringSubmatch(result.Stdout)
	if match == nil {
		return "", time.Time{}, fmt.Errorf("no tip uuid in fossil info for %s", f.CachedLocation())
	}
	raw := strings.TrimSpace(match[2])
	t, err := time.Parse("2006-01-02 15:04:05 MST", raw)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parsing fossil timestamp %q: %w", raw, err)
	}
	return match[1], t, nil
}

func (f *FossilStrategy) fossil(ctx context.Context, args ...string) (*domain.RunResult, error) {
	return f.Deps.Runner.Run(ctx, domain.Command{Name: "fossil", Args: args})
}
