package strategies

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/utils"
)

var _ Strategy = (*NoUnzipStrategy)(nil)

// NoUnzipStrategy downloads like the plain curl strategy but stages the
// artifact verbatim, for archives that must survive intact (installer
// bundles, jars, disk images).
type NoUnzipStrategy struct {
	*CurlStrategy
}

// NewNoUnzipStrategy creates the extraction-free download strategy.
func NewNoUnzipStrategy(desc *domain.Descriptor, deps *Dependencies) *NoUnzipStrategy {
	return &NoUnzipStrategy{CurlStrategy: NewCurlStrategy(desc, deps)}
}

func (n *NoUnzipStrategy) Name() string { return "nounzip" }

// Stage copies the cached artifact into dest without unpacking it.
func (n *NoUnzipStrategy) Stage(ctx context.Context, dest string, ready func(workdir string) error) error {
	location := n.CachedLocation()
	if !utils.FileExists(location) {
		return fmt.Errorf("%s: %w", utils.RedactURL(n.Desc.URL), domain.ErrNoCache)
	}

	name := utils.StripCachePrefix(filepath.Base(location))
	target := filepath.Join(dest, name)
	if err := utils.EnsureDir(target); err != nil {
		return err
	}
	if err := utils.CopyFile(location, target); err != nil {
		return fmt.Errorf("staging %s: %w", name, err)
	}

	n.Logger().Debug().Str("file", name).Str("dest", dest).Msg("Staged without extraction")
	if ready == nil {
		return nil
	}
	return ready(dest)
}
