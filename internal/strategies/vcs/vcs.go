// Package vcs implements the version-control download strategies: a shared
// clone-or-update lifecycle with per-system backends for git, svn, hg, bzr,
// cvs, and fossil. A repository cache entry lives at
// <cache root>/<name>--<cache tag> and is updated in place across fetches.
package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/strategies"
	"github.com/goferpkg/gofer/internal/utils"
)

// Backend supplies the system-specific operations the shared lifecycle
// drives. Each concrete strategy implements it against its own tool.
type Backend interface {
	// CacheTag disambiguates cache paths across systems and variants
	// (for example sparse checkouts and head svn checkouts).
	CacheTag() string
	// RepoValid reports whether the existing cache entry is a usable
	// repository. Invalid entries are cleared and cloned from scratch.
	RepoValid(ctx context.Context) bool
	// CloneRepo materializes a fresh checkout at the cache location.
	CloneRepo(ctx context.Context) error
	// Update brings an existing checkout to the requested ref.
	Update(ctx context.Context) error
	// CurrentRevision resolves the revision the checkout sits on, used
	// for the post-fetch tag integrity check. Systems that cannot
	// report one return an empty string.
	CurrentRevision(ctx context.Context) (string, error)
	// LastCommit identifies the newest fetched commit, recorded on
	// head-tracking versions.
	LastCommit(ctx context.Context) (string, error)
	// ModTime reports when the fetched source last changed according to
	// the repository's own history.
	ModTime(ctx context.Context) (time.Time, error)
}

// Base drives the lifecycle shared by every version-control strategy:
// existing valid checkout → update; existing invalid → clear and clone;
// missing → clone. Concrete strategies embed it and implement Backend.
//
// Unlike file downloads, repository caches are mutated in place with no
// download lock; callers must not fetch the same VCS target from two
// instances at once.
type Base struct {
	strategies.Base
	backend Backend
}

// NewBase binds a descriptor and the shared dependencies to a backend.
func NewBase(desc *domain.Descriptor, deps *strategies.Dependencies, backend Backend) Base {
	return Base{Base: strategies.NewBase(desc, deps), backend: backend}
}

// CachedLocation returns the repository cache path. Pure given the cache
// root; the path may not exist yet.
func (b *Base) CachedLocation() string {
	name := utils.SanitizeBasename(b.ResourceName())
	return filepath.Join(b.Deps.Config.CacheDir, name+"--"+b.backend.CacheTag())
}

// Fetch clones or updates the cached repository, records the resolved
// commit on head versions, and verifies pinned tags afterwards.
func (b *Base) Fetch(ctx context.Context) error {
	location := b.CachedLocation()

	switch {
	case !utils.PathExists(location):
		b.Logger().Info().Str("url", utils.RedactURL(b.Desc.URL)).Str("dest", location).Msg("Cloning")
		if err := b.backend.CloneRepo(ctx); err != nil {
			return err
		}
	case !b.backend.RepoValid(ctx):
		b.Logger().Warn().Str("cache", location).Msg("Cache is invalid, cloning again")
		if err := b.ClearCache(); err != nil {
			return err
		}
		if err := b.backend.CloneRepo(ctx); err != nil {
			return err
		}
	default:
		b.Logger().Info().Str("cache", location).Msg("Updating")
		if err := b.backend.Update(ctx); err != nil {
			return err
		}
	}

	if b.Desc.Version.IsHead() {
		commit, err := b.backend.LastCommit(ctx)
		if err != nil {
			b.Logger().Debug().Err(err).Msg("Resolving the fetched commit failed")
		} else {
			b.Desc.Version.UpdateCommit(commit)
		}
	}

	return b.verifyTag(ctx)
}

// verifyTag is a post-fetch integrity check, not a precondition: a tag ref
// pinned to an expected revision must have resolved to exactly that
// revision. Systems that cannot report a revision skip the check.
func (b *Base) verifyTag(ctx context.Context) error {
	if b.Desc.Meta.Tag == "" || b.Desc.Meta.Revision == "" {
		return nil
	}

	current, err := b.backend.CurrentRevision(ctx)
	if err != nil || current == "" {
		b.Logger().Debug().Err(err).Msg("Current revision unavailable, skipping tag check")
		return nil
	}
	if current != b.Desc.Meta.Revision {
		return domain.NewTagMismatchError(b.Desc.Meta.Tag, b.Desc.Meta.Revision, current)
	}
	return nil
}

// Stage copies the cached checkout into dest and yields the working
// directory.
func (b *Base) Stage(ctx context.Context, dest string, ready func(workdir string) error) error {
	location := b.CachedLocation()
	if !utils.PathExists(location) {
		return fmt.Errorf("%s: %w", utils.RedactURL(b.Desc.URL), domain.ErrNoCache)
	}

	b.Logger().Info().Str("cache", location).Str("dest", dest).Msg("Staging checkout")
	result, err := b.Deps.Unpacker.Stage(ctx, location, dest)
	if err != nil {
		return err
	}
	if result.Entries == 0 {
		return domain.NewEmptyArchiveError(location)
	}
	if ready == nil {
		return nil
	}
	return ready(result.WorkDir)
}

// ClearCache removes the cached repository.
func (b *Base) ClearCache() error {
	return os.RemoveAll(b.CachedLocation())
}

// SourceModifiedTime asks the repository's own history; the staged tree's
// file times reflect the clone, not the source.
func (b *Base) SourceModifiedTime(ctx context.Context, _ string) (time.Time, error) {
	return b.backend.ModTime(ctx)
}
