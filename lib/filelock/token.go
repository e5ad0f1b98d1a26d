package filelock

import (
	"fmt"
	"sync/atomic"
)

// OwnerID identifies a requester of the ownership token (usually a task).
type OwnerID uint64

// NoOwner is never handed out by NewOwnerID and marks an unowned token.
const NoOwner OwnerID = 0

var lastOwnerID atomic.Uint64

// NewOwnerID returns a process wide unique OwnerID.
func NewOwnerID() OwnerID {
	return OwnerID(lastOwnerID.Add(1))
}

// Token is one reference to the in-process ownership of a lock record.
// It is only handed out by Access.TryAcquire, which guarantees that the process
// holds the OS level lock before ownership is arbitrated. The token keeps its own
// Access, so the OS lock stays held until the token is released.
type Token struct {
	access   *Access
	owner    OwnerID
	released atomic.Bool
}

// Owner returns the owner this token was granted to.
func (t *Token) Owner() OwnerID {
	return t.owner
}

// Path returns the canonical path of the locked file.
func (t *Token) Path() string {
	return t.access.rec.path
}

// Release drops this token reference. When the last reference of the owner is
// released the record becomes unowned and all waiting tasks are woken up.
// Releasing a token twice panics.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Token) Release() error {
	if !t.released.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("filelock: %s: token of %d released twice", t.access.rec.path, t.owner))
	}

	rec := t.access.rec
	rec.mu.Lock()

	if rec.tokenRefs <= 0 || rec.owner != t.owner {
		rec.mu.Unlock()
		panic(fmt.Sprintf("filelock: %s: token of %d released but owner is %d (ref'd %d)", rec.path, t.owner, rec.owner, rec.tokenRefs))
	}

	rec.tokenRefs--
	var wakes []func()
	if rec.tokenRefs == 0 {
		rec.owner = NoOwner
		wakes = rec.waiters.drain()
		plog.Debugf("%s: token released by %d, waking %d waiters", rec.path, t.owner, len(wakes))
	}

	t.access.closed.Store(true)
	err := t.access.closeLocked()
	rec.mu.Unlock()

	for _, wake := range wakes {
		wake()
	}
	return err
}
