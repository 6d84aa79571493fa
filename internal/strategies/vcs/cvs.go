package vcs

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/strategies"
	"github.com/goferpkg/gofer/internal/utils"
)

var _ strategies.Strategy = (*CvsStrategy)(nil)

// CvsStrategy fetches CVS modules. The module name comes from explicit
// metadata, from a ":module" suffix on the root, or defaults to the
// resource name.
type CvsStrategy struct {
	Base
	root   string
	module string
}

var cvsModuleSuffix = regexp.MustCompile(`:[^/]+$`)

// NewCvsStrategy creates the CVS download strategy.
func NewCvsStrategy(desc *domain.Descriptor, deps *strategies.Dependencies) *CvsStrategy {
	c := &CvsStrategy{}
	c.Base = NewBase(desc, deps, c)

	c.root = utils.RewriteScheme(desc.URL, "cvs://", "")
	switch {
	case desc.Meta.Module != "":
		c.module = desc.Meta.Module
	case !cvsModuleSuffix.MatchString(c.root):
		c.module = c.ResourceName()
	default:
		idx := strings.LastIndex(c.root, ":")
		c.module = c.root[idx+1:]
		c.root = c.root[:idx]
	}
	return c
}

func (c *CvsStrategy) Name() string { return "cvs" }

func (c *CvsStrategy) CacheTag() string { return "cvs" }

func (c *CvsStrategy) RepoValid(_ context.Context) bool {
	return utils.DirExists(filepath.Join(c.CachedLocation(), "CVS"))
}

func (c *CvsStrategy) CloneRepo(ctx context.Context) error {
	// Login is only needed (and only possible) with pserver roots.
	if strings.Contains(c.root, "pserver") {
		if _, err := c.cvs(ctx, "", c.args("-d", c.root, "login")...); err != nil {
			return err
		}
	}

	location := c.CachedLocation()
	args := c.args("-d", c.root, "checkout", "-d", filepath.Base(location), c.module)
	_, err := c.cvs(ctx, filepath.Dir(location), args...)
	return err
}

func (c *CvsStrategy) Update(ctx context.Context) error {
	_, err := c.cvs(ctx, c.CachedLocation(), c.args("update")...)
	return err
}

// CurrentRevision is empty: CVS has no repository-wide revision, which also
// exempts it from the tag integrity check.
func (c *CvsStrategy) CurrentRevision(_ context.Context) (string, error) {
	return "", nil
}

// LastCommit falls back to the newest file timestamp, the only change
// marker CVS offers.
func (c *CvsStrategy) LastCommit(ctx context.Context) (string, error) {
	t, err := c.ModTime(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(t.Unix(), 10), nil
}

// ModTime scans the checkout's files, skipping the CVS bookkeeping
// directories whose timestamps reflect the clone, not the source.
func (c *CvsStrategy) ModTime(_ context.Context) (time.Time, error) {
	return utils.NewestMTime(c.CachedLocation(), "CVS")
}

func (c *CvsStrategy) args(args ...string) []string {
	if c.Quiet() {
		return append([]string{"-Q"}, args...)
	}
	return args
}

func (c *CvsStrategy) cvs(ctx context.Context, dir string, args ...string) (*domain.RunResult, error) {
	return c.Deps.Runner.Run(ctx, domain.Command{Name: "cvs", Args: args, Dir: dir})
}
