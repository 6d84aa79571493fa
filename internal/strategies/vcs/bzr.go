package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/strategies"
	"github.com/goferpkg/gofer/internal/utils"
)

var _ strategies.Strategy = (*BzrStrategy)(nil)

// BzrStrategy fetches Bazaar branches as lightweight (history-less)
// checkouts.
type BzrStrategy struct {
	Base
	url string
}

// NewBzrStrategy creates the Bazaar download strategy.
func NewBzrStrategy(desc *domain.Descriptor, deps *strategies.Dependencies) *BzrStrategy {
	b := &BzrStrategy{}
	b.Base = NewBase(desc, deps, b)
	b.url = utils.RewriteScheme(desc.URL, "bzr://", "")
	return b
}

func (b *BzrStrategy) Name() string { return "bzr" }

func (b *BzrStrategy) CacheTag() string { return "bzr" }

func (b *BzrStrategy) RepoValid(_ context.Context) bool {
	return utils.DirExists(filepath.Join(b.CachedLocation(), ".bzr"))
}

func (b *BzrStrategy) CloneRepo(ctx context.Context) error {
	_, err := b.bzr(ctx, "", "checkout", "--lightweight", b.url, b.CachedLocation())
	return err
}

func (b *BzrStrategy) Update(ctx context.Context) error {
	_, err := b.bzr(ctx, b.CachedLocation(), "update")
	return err
}

// CurrentRevision and LastCommit both report the checkout's revno; bzr has
// no richer stable identifier for a lightweight checkout.
func (b *BzrStrategy) CurrentRevision(ctx context.Context) (string, error) {
	return b.revno(ctx)
}

func (b *BzrStrategy) LastCommit(ctx context.Context) (string, error) {
	return b.revno(ctx)
}

var bzrTimestampPattern = regexp.MustCompile(`(?m)^timestamp: (.+)$`)

func (b *BzrStrategy) ModTime(ctx context.Context) (time.Time, error) {
	result, err := b.bzr(ctx, "", "log", "-l", "1", "--timezone=utc", b.CachedLocation())
	if err != nil {
		return time.Time{}, err
	}

	match := bzrTimestampPattern.FindStringSubmatch(result.Stdout)
	if match == nil {
		return time.Time{}, fmt.Errorf("no timestamp in bzr log for %s", b.CachedLocation())
	}
	raw := strings.TrimSpace(match[1])
	t, err := time.Parse("Mon 2006-01-02 15:04:05 -0700", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing bzr timestamp %q: %w", raw, err)
	}
	return t, nil
}

func (b *BzrStrategy) revno(ctx context.Context) (string, error) {
	result, err := b.bzr(ctx, "", "revno", b.CachedLocation())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// bzr runs the tool with its scratch state pointed at the system temp
// directory instead of polluting the user's home.
func (b *BzrStrategy) bzr(ctx context.Context, dir string, args ...string) (*domain.RunResult, error) {
	return b.Deps.Runner.Run(ctx, domain.Command{
		Name: "bzr",
		Args: args,
		Dir:  dir,
		Env:  []string{"BZR_HOME=" + os.TempDir()},
	})
}
