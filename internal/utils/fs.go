package utils

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// MaxFilenameLength is the maximum length for a filename
const MaxFilenameLength = 200

var cachePrefixPattern = regexp.MustCompile(`^[0-9a-f]{64}--`)

// StripCachePrefix removes the content-address prefix from a cached file
// name, recovering the artifact's own basename.
func StripCachePrefix(name string) string {
	return cachePrefixPattern.ReplaceAllString(name, "")
}

// Windows reserved names
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeBasename reduces a server-supplied filename to a safe single path
// component: anything before the last separator (either flavor) is dropped,
// control characters are removed, and dot-only names are rejected.
func SanitizeBasename(name string) string {
	// Final component only, regardless of separator convention
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.TrimSpace(b.String())

	if name == "." || name == ".." {
		return ""
	}

	// Check for Windows reserved names
	upper := strings.ToUpper(name)
	baseUpper := strings.TrimSuffix(upper, filepath.Ext(upper))
	if windowsReserved[baseUpper] {
		name = "_" + name
	}

	// Limit length, keeping the extension
	if len(name) > MaxFilenameLength {
		ext := filepath.Ext(name)
		name = name[:MaxFilenameLength-len(ext)] + ext
	}

	return name
}

// ExtName returns the extension of a downloaded artifact, keeping compound
// archive suffixes together (pkg-1.0.tar.gz → .tar.gz).
func ExtName(basename string) string {
	ext := filepath.Ext(basename)
	if ext == "" {
		return ""
	}
	switch ext {
	case ".gz", ".bz2", ".xz", ".zst", ".lz", ".lzma", ".Z":
		rest := strings.TrimSuffix(basename, ext)
		if inner := filepath.Ext(rest); inner == ".tar" {
			return inner + ext
		}
	}
	return ext
}

// EnsureDir ensures the parent directory of a path exists
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DirExists reports whether path names an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// PathExists reports whether path exists at all (file, dir, or symlink target).
func PathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// ReplaceSymlink points link at target, replacing whatever was there. The
// symlink is best-effort sugar for humans browsing the cache; refreshing it
// must not fail a fetch, so callers may ignore the error.
func ReplaceSymlink(target, link string) error {
	if err := EnsureDir(link); err != nil {
		return err
	}
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return err
		}
	}
	return os.Symlink(target, link)
}

// CopyFile copies a regular file preserving mode and modification time.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("copy %s: not a regular file", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := EnsureDir(dst); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// CopyTree copies a directory recursively, preserving symlinks, file modes,
// and modification times.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		default:
			return CopyFile(path, target)
		}
	})
}

// NewestMTime returns the most recent modification time among regular files
// under root, skipping directories whose base name appears in exclude (VCS
// bookkeeping like CVS or .svn).
func NewestMTime(root string, exclude ...string) (time.Time, error) {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	var newest time.Time
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skip[d.Name()] && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return newest, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}
