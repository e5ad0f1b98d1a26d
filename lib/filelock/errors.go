package filelock

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/tlock/lib/canonical"
)

// --------------------------------------------------------------------------
// Recoverable errors
// --------------------------------------------------------------------------

var (
	// ErrInvalidPath is returned by Bind for empty or unusable paths.
	ErrInvalidPath = canonical.ErrInvalidPath
	// ErrContention is matched (errors.Is) by every *ContentionError.
	ErrContention = errors.New("lock file is locked by another process")
	// ErrIO wraps failures to create, open, read or unlock the lock file.
	ErrIO = errors.New("lock file i/o error")
)

// --------------------------------------------------------------------------
// Lifetime errors (the caller broke the Handle > Access > Token ordering)
// --------------------------------------------------------------------------

var (
	// ErrHandleClosed is returned when a closed Handle is used.
	ErrHandleClosed = errors.New("handle is closed")
	// ErrAccessClosed is returned when a closed Access is used or closed again.
	ErrAccessClosed = errors.New("access is closed")
	// ErrStaleAccess is returned when an Access refers to a record that was already
	// erased from its registry.
	ErrStaleAccess = errors.New("access outlived its lock record")
	// ErrLiveAccess is returned by Handle.Close while Access instances created
	// from the handle are still open.
	ErrLiveAccess = errors.New("handle still has open accesses")
)

// ContentionError is returned when the OS level lock is held by another process.
// PID is the process id found in the lock file, or 0 if it could not be determined.
type ContentionError struct {
	Path string
	PID  int
}

func (e *ContentionError) Error() string {
	if e.PID == 0 {
		return fmt.Sprintf("%s: %s", ErrContention, e.Path)
	}
	return fmt.Sprintf("%s: %s (held by pid %d)", ErrContention, e.Path, e.PID)
}

// Is makes errors.Is(err, ErrContention) work.
func (e *ContentionError) Is(target error) bool {
	return target == ErrContention
}
