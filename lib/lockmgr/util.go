package lockmgr

import (
	"crypto/rand"
	"net/url"
	"path/filepath"
)

const (
	ownerIDLength = 32 // bytes, 256 bit
	lockSuffix    = ".lock"
)

// generateOwnerID creates a new unique owner ID
func generateOwnerID() ([]byte, error) {
	randomBytes := make([]byte, ownerIDLength)
	_, err := rand.Read(randomBytes)
	return randomBytes, err
}

// LockPath returns the lock file used for key inside dir.
// Keys are path escaped, so every key maps to exactly one file directly in dir.
func LockPath(dir, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	return filepath.Join(dir, url.PathEscape(key)+lockSuffix), nil
}
