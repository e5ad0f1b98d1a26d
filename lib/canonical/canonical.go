package canonical

import (
	"errors"
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"io/fs"
	"os"
	"path/filepath"
)

var plog = logger.GetLogger("canonical")

// ErrInvalidPath is returned for empty or otherwise unusable paths.
var ErrInvalidPath = errors.New("invalid path")

// Normalize returns the absolute, lexically normalized form of path.
// Symbolic links are kept as they are.
func Normalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, path, err)
	}

	return filepath.Clean(abs), nil
}

// Equivalent reports whether a and b denote the same file (same device and inode).
// Both files have to exist. On an OS error the paths are reported as not equivalent
// and the error is returned so the caller can decide how loud to be about it.
func Equivalent(a, b string) (bool, error) {
	if a == b {
		// still needs to exist to be a valid identity
		if _, err := os.Stat(a); err != nil {
			return false, err
		}
		return true, nil
	}

	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, err
	}

	return os.SameFile(infoA, infoB), nil
}

// EnsureExists creates an empty file at path if nothing exists there yet.
// The returned bool is true if the file was created by this call.
// Parent directories are not created.
func EnsureExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return false, fmt.Errorf("%w: %s is a directory", ErrInvalidPath, path)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	// O_EXCL: somebody else may create the file between Stat and OpenFile, that's fine
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if err := f.Close(); err != nil {
		return true, err
	}

	plog.Debugf("created non-existing lock file %s", path)
	return true, nil
}
