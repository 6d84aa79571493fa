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

var _ strategies.Strategy = (*HgStrategy)(nil)

// HgStrategy fetches Mercurial repositories.
type HgStrategy struct {
	Base
	url string
	ref domain.Ref
}

// NewHgStrategy creates the Mercurial download strategy.
func NewHgStrategy(desc *domain.Descriptor, deps *strategies.Dependencies) *HgStrategy {
	h := &HgStrategy{}
	h.Base = NewBase(desc, deps, h)
	h.url = utils.RewriteScheme(desc.URL, "hg://", "")
	h.ref = desc.Meta.ExtractRef(domain.RefTag, domain.RefBranch, domain.RefRevision)
	return h
}

func (h *HgStrategy) Name() string { return "hg" }

func (h *HgStrategy) CacheTag() string { return "hg" }

// RepoValid needs both the metadata directory and a working copy hg can
// still identify; a torn clone keeps the former but fails the latter.
func (h *HgStrategy) RepoValid(ctx context.Context) bool {
	location := h.CachedLocation()
	if !utils.DirExists(filepath.Join(location, ".hg")) {
		return false
	}
	_, err := h.hg(ctx, "identify", "-R", location)
	return err == nil
}

func (h *HgStrategy) CloneRepo(ctx context.Context) error {
	args := []string{"clone"}
	switch h.ref.Type {
	case domain.RefBranch:
		args = append(args, "--branch", h.ref.Value)
	case domain.RefTag, domain.RefRevision:
		args = append(args, "--rev", h.ref.Value)
	}
	args = append(args, h.url, h.CachedLocation())

	_, err := h.hg(ctx, args...)
	return err
}

func (h *HgStrategy) Update(ctx context.Context) error {
	location := h.CachedLocation()
	if _, err := h.hg(ctx, "--cwd", location, "pull"); err != nil {
		return err
	}

	args := []string{"--cwd", location, "update", "--clean"}
	if h.ref.Value != "" {
		h.Logger().Info().Str("ref", h.ref.Value).Msg("Checking out")
		args = append(args, "-r", h.ref.Value)
	}
	_, err := h.hg(ctx, args...)
	return err
}

func (h *HgStrategy) CurrentRevision(ctx context.Context) (string, error) {
	return h.parentNode(ctx)
}

func (h *HgStrategy) LastCommit(ctx context.Context) (string, error) {
	return h.parentNode(ctx)
}

func (h *HgStrategy) ModTime(ctx context.Context) (time.Time, error) {
	result, err := h.hg(ctx, "tip", "--template", "{date|rfc3339date}", "-R", h.CachedLocation())
	if err != nil {
		return time.Time{}, err
	}
	raw := strings.TrimSpace(result.Stdout)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing hg timestamp %q: %w", raw, err)
	}
	return t, nil
}

func (h *HgStrategy) parentNode(ctx context.Context) (string, error) {
	result, err := h.hg(ctx, "parent", "--template", "{node}", "-R", h.CachedLocation())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

func (h *HgStrategy) hg(ctx context.Context, args ...string) (*domain.RunResult, error) {
	return h.Deps.Runner.Run(ctx, domain.Command{Name: "hg", Args: args})
}
