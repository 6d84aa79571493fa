// Package archive materializes cached artifacts into working directories.
// Archives are recognized by extension and magic bytes and extracted,
// compressed single files are expanded, directories and plain files are
// copied as they are.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mholt/archives"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/utils"
)

// Stager implements domain.Unpacker on top of the archives format registry.
type Stager struct {
	logger *utils.Logger
}

// NewStager creates a staging engine.
func NewStager(logger *utils.Logger) *Stager {
	if logger == nil {
		logger = utils.NewDefaultLogger()
	}
	return &Stager{logger: logger.WithComponent("archive")}
}

// Stage populates dest from source and reports what landed there. The
// returned WorkDir is dest itself, or its single top-level directory when
// the artifact carried everything inside one (the common tarball layout).
func (s *Stager) Stage(ctx context.Context, source, dest string) (*domain.StageResult, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("staging %s: %w", source, err)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	s.logger.Debug().Str("source", source).Str("dest", dest).Msg("Staging artifact")

	if info.IsDir() {
		if err := utils.CopyTree(source, dest); err != nil {
			return nil, fmt.Errorf("copying %s: %w", source, err)
		}
		return s.result(dest)
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", source, err)
	}
	defer file.Close()

	// Cached files carry a content-address prefix; identification and any
	// verbatim copy go by the artifact's own name.
	base := utils.StripCachePrefix(filepath.Base(source))

	format, input, err := archives.Identify(ctx, base, file)
	switch {
	case errors.Is(err, archives.NoMatch):
		// Not an archive, keep the file under its own name.
		if err := utils.CopyFile(source, filepath.Join(dest, base)); err != nil {
			return nil, fmt.Errorf("copying %s: %w", source, err)
		}
		return s.result(dest)
	case err != nil:
		return nil, fmt.Errorf("identifying %s: %w", source, err)
	}

	switch f := format.(type) {
	case archives.Extractor:
		if err := s.extract(ctx, f, input, dest); err != nil {
			return nil, err
		}
	case archives.Decompressor:
		if err := s.expand(f, input, base, dest); err != nil {
			return nil, err
		}
	default:
		if err := utils.CopyFile(source, filepath.Join(dest, base)); err != nil {
			return nil, fmt.Errorf("copying %s: %w", source, err)
		}
	}
	return s.result(dest)
}

func (s *Stager) extract(ctx context.Context, format archives.Extractor, input io.Reader, dest string) error {
	handler := func(ctx context.Context, entry archives.FileInfo) error {
		return writeEntry(entry, dest)
	}
	if err := format.Extract(ctx, input, handler); err != nil {
		return fmt.Errorf("extracting archive: %w", err)
	}
	return nil
}

// expand writes a compressed single file decompressed under its stem name,
// so pkg.txt.gz stages as pkg.txt.
func (s *Stager) expand(format archives.Decompressor, input io.Reader, base, dest string) error {
	reader, err := format.OpenReader(input)
	if err != nil {
		return fmt.Errorf("decompressing %s: %w", base, err)
	}
	defer reader.Close()

	name := base[:len(base)-len(filepath.Ext(base))]
	if name == "" {
		name = base
	}

	out, err := os.OpenFile(filepath.Join(dest, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return out.Close()
}

// writeEntry places one archive member under dest, refusing names that
// would escape it.
func writeEntry(entry archives.FileInfo, dest string) error {
	name := filepath.Clean(filepath.FromSlash(entry.NameInArchive))
	if name == "." || name == "" {
		return nil
	}
	if !filepath.IsLocal(name) {
		return fmt.Errorf("archive entry %q escapes the staging directory", entry.NameInArchive)
	}
	target := filepath.Join(dest, name)

	switch {
	case entry.IsDir():
		return os.MkdirAll(target, 0755)
	case entry.LinkTarget != "":
		if err := utils.EnsureDir(target); err != nil {
			return err
		}
		if _, err := os.Lstat(target); err == nil {
			if err := os.Remove(target); err != nil {
				return err
			}
		}
		return os.Symlink(entry.LinkTarget, target)
	default:
		return writeRegular(entry, target)
	}
}

func writeRegular(entry archives.FileInfo, target string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening archive entry %s: %w", entry.NameInArchive, err)
	}
	defer src.Close()

	if err := utils.EnsureDir(target); err != nil {
		return err
	}
	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !entry.ModTime().IsZero() {
		if err := os.Chtimes(target, entry.ModTime(), entry.ModTime()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stager) result(dest string) (*domain.StageResult, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return nil, fmt.Errorf("reading staging directory: %w", err)
	}

	result := &domain.StageResult{Entries: len(entries), WorkDir: dest}
	if len(entries) == 1 && entries[0].IsDir() {
		result.WorkDir = filepath.Join(dest, entries[0].Name())
	}

	s.logger.Debug().Int("entries", result.Entries).Str("workdir", result.WorkDir).Msg("Staged")
	return result, nil
}
