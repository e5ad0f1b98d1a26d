package lockmgr

import "errors"

// ErrInvalidKey is returned for keys that cannot be mapped to a lock file
var ErrInvalidKey = errors.New("invalid lock key")

// ILockManager defines the interface for a named lock provider.
type ILockManager interface {
	// AcquireLock acquires the lock for the given key, waiting at most wait seconds.
	// Return a boolean indicating whether the lock was acquired, an owner ID, and an error if any.
	// A lock held by someone else after the wait is not an error: (false, nil, nil).
	AcquireLock(key string, wait uint64) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases the lock for the given key.
	// Return a boolean indicating whether the lock was released, and an error if any.
	// The method will also return true if the lock did not exist.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)

	// Close releases every lock still held and stops the manager.
	Close() error
}
