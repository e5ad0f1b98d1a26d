package filelock

import (
	"fmt"
	"sync/atomic"
)

// Access is a reference counted accessor of a lock record. While at least one
// Access of a record is open, this process holds the OS level lock of its file.
//
// Accesses are cheap to Clone once the first one exists. Every Access must be
// closed exactly once, before the Handle it was created from.
type Access struct {
	handle *Handle
	rec    *record
	closed atomic.Bool
}

// checkLocked verifies that the access may still be used. a.rec.mu must be held.
func (a *Access) checkLocked() error {
	if a.closed.Load() {
		return ErrAccessClosed
	}
	if a.rec.erased {
		return ErrStaleAccess
	}
	return nil
}

// Clone returns another Access to the same record. It never touches the OS lock.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (a *Access) Clone() (*Access, error) {
	a.rec.mu.Lock()
	defer a.rec.mu.Unlock()

	if err := a.checkLocked(); err != nil {
		return nil, err
	}
	return a.cloneLocked(), nil
}

// cloneLocked increments the counts for a new Access. a.rec.mu must be held and
// the access checked.
func (a *Access) cloneLocked() *Access {
	a.rec.accesses++
	a.handle.derived++
	return &Access{handle: a.handle, rec: a.rec}
}

// Close releases the access. Closing the last open Access of a record releases
// the OS level lock. Closing twice returns ErrAccessClosed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (a *Access) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return ErrAccessClosed
	}

	a.rec.mu.Lock()
	defer a.rec.mu.Unlock()
	return a.closeLocked()
}

// closeLocked drops the counts of an already marked-closed Access. a.rec.mu must be held.
func (a *Access) closeLocked() error {
	if a.handle.derived <= 0 {
		panic(fmt.Sprintf("filelock: %s: handle access count underflow", a.rec.path))
	}
	a.handle.derived--
	return a.rec.dropAccessLocked()
}

// Path returns the canonical path of the record.
func (a *Access) Path() string {
	return a.rec.path
}

// --------------------------------------------------------------------------
// Ownership token
// --------------------------------------------------------------------------

// TryAcquire tries to get the in-process ownership token for owner without blocking.
// It succeeds if the token is unowned or already owned by owner (the token is then
// shared and reference counted). It returns (nil, false) if another owner holds it,
// or if the access is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (a *Access) TryAcquire(owner OwnerID) (*Token, bool) {
	return a.tryAcquire(owner, nil)
}

// TryAcquireOrWait is TryAcquire, but on failure wake is registered (atomically with
// the failed attempt) and called once the token is released. wake is called
// without any lock held and must not block.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (a *Access) TryAcquireOrWait(owner OwnerID, wake func()) (*Token, bool) {
	return a.tryAcquire(owner, wake)
}

func (a *Access) tryAcquire(owner OwnerID, wake func()) (*Token, bool) {
	if owner == NoOwner {
		panic("filelock: TryAcquire with NoOwner")
	}

	a.rec.mu.Lock()
	defer a.rec.mu.Unlock()

	if err := a.checkLocked(); err != nil {
		plog.Errorf("%s: TryAcquire by %d: %v", a.rec.path, owner, err)
		return nil, false
	}

	rec := a.rec
	switch {
	case rec.tokenRefs == 0:
		rec.owner = owner
	case rec.owner == owner:
		// re-acquisition by the owner shares the token
	default:
		rec.reg.metrics.tokenContended.Inc()
		if wake != nil {
			rec.waiters.add(owner, wake)
		}
		plog.Debugf("%s: token owned by %d, %d has to wait", rec.path, rec.owner, owner)
		return nil, false
	}

	rec.tokenRefs++
	rec.waiters.remove(owner)
	rec.reg.metrics.tokenAcquired.Inc()
	plog.Debugf("%s: token owned by %d (ref'd %d)", rec.path, owner, rec.tokenRefs)

	return &Token{access: a.cloneLocked(), owner: owner}, true
}

// CancelWait removes the wake registration of owner. It reports whether one existed.
func (a *Access) CancelWait(owner OwnerID) bool {
	a.rec.mu.Lock()
	defer a.rec.mu.Unlock()
	return a.rec.waiters.remove(owner)
}

// IsOwner reports whether owner currently holds the ownership token.
func (a *Access) IsOwner(owner OwnerID) bool {
	a.rec.mu.Lock()
	defer a.rec.mu.Unlock()
	return owner != NoOwner && a.rec.tokenRefs > 0 && a.rec.owner == owner
}

func (a *Access) String() string {
	if a.closed.Load() {
		return "Access:{closed}"
	}
	return "Access:" + a.handle.Info().String()
}
