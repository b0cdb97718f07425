// Package fsutil holds the small filesystem helpers shared by the pipeline
// producers: content digests, idempotent directory creation and
// content-addressed writes.
package fsutil

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
)

// Hash returns the lowercase hex md5 digest of s. The digest is stable across
// runs and platforms and is used for cache-busting and dedup, not security.
func Hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashBytes is Hash for byte slices.
func HashBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// EnsureDir makes sure every directory in dirs exists, creating missing ones
// with their parents. Existing directories are left alone. Any stat error
// other than "does not exist" is surfaced.
func EnsureDir(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return siteerrors.NewIOError(siteerrors.ErrCodeMkdir, "path exists and is not a directory", nil).WithPath(dir)
			}
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return siteerrors.NewIOError(siteerrors.ErrCodeMkdir, "failed to stat directory", err).WithPath(dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return siteerrors.NewIOError(siteerrors.ErrCodeMkdir, "failed to create directory", err).WithPath(dir)
		}
	}
	return nil
}

// WriteFileIfChanged writes data to path unless the file already holds the
// same content. It reports whether a write happened. The parent directory is
// created when missing.
func WriteFileIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && HashBytes(existing) == HashBytes(data) {
		return false, nil
	}

	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return false, err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, siteerrors.NewIOError(siteerrors.ErrCodeWriteFile, "failed to write file", err).WithPath(path)
	}
	return true, nil
}
