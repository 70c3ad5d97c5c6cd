package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// CopyStats summarizes one CopyTree call.
type CopyStats struct {
	Copied  int   // files written
	Skipped int   // files already present with the same size
	Bytes   int64 // bytes written
}

// CopyTree copies the regular files below src into dst, creating directories as needed.
// A file that already exists at the destination with the same size is left alone,
// so re-running an interrupted copy only transfers what is missing.
func CopyTree(fs afero.Fs, src, dst string) (CopyStats, error) {
	var stats CopyStats

	info, err := fs.Stat(src)
	if err != nil {
		return stats, fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("source %s is not a directory", src)
	}
	if err := fs.MkdirAll(dst, 0o755); err != nil {
		return stats, fmt.Errorf("failed to create destination directory: %w", err)
	}

	err = afero.Walk(fs, src, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case fi.IsDir():
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			return nil
		case !fi.Mode().IsRegular():
			return nil
		}

		if existing, err := fs.Stat(target); err == nil && existing.Mode().IsRegular() && existing.Size() == fi.Size() {
			stats.Skipped++
			return nil
		}

		n, err := copyFile(fs, path, target, fi.Mode().Perm())
		if err != nil {
			return err
		}
		stats.Copied++
		stats.Bytes += n
		return nil
	})
	return stats, err
}

func copyFile(fs afero.Fs, src, dst string, mode os.FileMode) (int64, error) {
	in, err := fs.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create parent directory: %w", err)
	}

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination: %w", err)
	}
	defer func() { _ = out.Close() }()

	n, err := io.Copy(out, in)
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		return n, fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	return n, nil
}

// Prune removes every non-directory entry below root whose slash-separated
// relative path keep rejects. Directories are left in place. It returns the
// number of entries removed.
func Prune(fs afero.Fs, root string, keep func(rel string) bool) (int, error) {
	var stale []string
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !keep(filepath.ToSlash(rel)) {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list %s: %w", root, err)
	}

	for i, path := range stale {
		if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return i, fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return len(stale), nil
}
