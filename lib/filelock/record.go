package filelock

import (
	"fmt"
	"github.com/gofrs/flock"
	"os"
	"sync"
)

// record is the one-per-inode state shared by all handles of a registry that
// resolve to the same file.
//
// Invariant (under mu): accesses > 0 <=> the native lock is held <=> marker != nil.
// tokenRefs > 0 implies accesses > 0 because every Token owns an Access.
type record struct {
	path string    // canonical path of the first Bind, immutable
	reg  *Registry // owning registry

	// guarded by reg.mu
	handles int

	mu       sync.Mutex
	native   *flock.Flock
	marker   *os.File // open while the native lock is held, carries the holder pid
	accesses int
	erased   bool

	// ownership token
	owner     OwnerID
	tokenRefs int
	waiters   *waitQueue
}

func newRecord(reg *Registry, path string) *record {
	return &record{
		path:    path,
		reg:     reg,
		native:  flock.New(path),
		waiters: newWaitQueue(),
	}
}

// --------------------------------------------------------------------------
// Native lock lifecycle (all methods require r.mu to be held)
// --------------------------------------------------------------------------

// addAccessLocked increments the access count and takes the native lock on 0->1.
// On failure the count is rolled back, so a failed attempt leaves no trace.
func (r *record) addAccessLocked() error {
	if r.erased {
		return ErrStaleAccess
	}

	r.accesses++
	if r.accesses > 1 {
		return nil
	}

	if err := r.lockLocked(); err != nil {
		r.accesses = 0
		return err
	}
	return nil
}

// dropAccessLocked decrements the access count and releases the native lock on 1->0.
func (r *record) dropAccessLocked() error {
	if r.accesses <= 0 {
		panic(fmt.Sprintf("filelock: access count underflow for %s", r.path))
	}

	r.accesses--
	if r.accesses > 0 {
		return nil
	}

	if r.tokenRefs != 0 {
		panic(fmt.Sprintf("filelock: %s: last access closed while the token is owned", r.path))
	}
	return r.unlockLocked()
}

// lockLocked takes the native lock without blocking and opens the marker.
func (r *record) lockLocked() error {
	ok, err := r.native.TryLock()
	if err != nil {
		return fmt.Errorf("%w: lock %s: %v", ErrIO, r.path, err)
	}
	if !ok {
		r.reg.metrics.osLockContended.Inc()
		return &ContentionError{Path: r.path, PID: peekPID(r.path)}
	}

	// the marker stays open for as long as we hold the lock
	f, err := os.OpenFile(r.path, os.O_RDWR, 0)
	if err != nil {
		r.abortLockLocked()
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	stored, found, err := readPID(f)
	if err != nil {
		_ = f.Close()
		r.abortLockLocked()
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	if !found || stored != r.reg.pid {
		// best-effort, the lock itself is already ours
		if err := persistPID(f, r.reg.pid); err != nil {
			plog.Warningf("%s: failed to persist pid %d: %v", r.path, r.reg.pid, err)
		}
	}

	r.marker = f
	r.reg.metrics.osLockAcquired.Inc()
	plog.Debugf("%s: locked by pid %d", r.path, r.reg.pid)
	return nil
}

// abortLockLocked undoes a successful TryLock after a marker failure.
func (r *record) abortLockLocked() {
	if err := r.native.Unlock(); err != nil {
		plog.Errorf("%s: failed to unlock after marker failure: %v", r.path, err)
	}
}

// unlockLocked closes the marker and releases the native lock.
func (r *record) unlockLocked() error {
	var markerErr error
	if r.marker != nil {
		markerErr = r.marker.Close()
		r.marker = nil
	}

	if err := r.native.Unlock(); err != nil {
		return fmt.Errorf("%w: unlock %s: %v", ErrIO, r.path, err)
	}
	r.reg.metrics.osLockReleased.Inc()
	plog.Debugf("%s: unlocked", r.path)

	if markerErr != nil {
		plog.Warningf("%s: failed to close marker: %v", r.path, markerErr)
	}
	return nil
}

// info returns a snapshot of the record. r.mu must be held.
func (r *record) infoLocked() RecordInfo {
	return RecordInfo{
		Path:      r.path,
		Handles:   r.handles,
		Accesses:  r.accesses,
		Locked:    r.marker != nil,
		Owner:     r.owner,
		TokenRefs: r.tokenRefs,
		Waiters:   r.waiters.Len(),
	}
}

// RecordInfo is a point-in-time snapshot of a lock record.
type RecordInfo struct {
	Path      string  // canonical path
	Handles   int     // open handles
	Accesses  int     // open accesses (including the ones held by tokens)
	Locked    bool    // whether this process holds the native lock
	Owner     OwnerID // current token owner, 0 if unowned
	TokenRefs int     // token reference count
	Waiters   int     // tasks waiting for the token
}

func (i RecordInfo) String() string {
	if i.Accesses == 0 {
		return fmt.Sprintf("{%s (unlocked), handles=%d}", i.Path, i.Handles)
	}
	if i.TokenRefs == 0 {
		return fmt.Sprintf("{%s (ref'd %d), handles=%d, unowned}", i.Path, i.Accesses, i.Handles)
	}
	return fmt.Sprintf("{%s (ref'd %d), handles=%d, owned by %d (ref'd %d), waiters=%d}",
		i.Path, i.Accesses, i.Handles, i.Owner, i.TokenRefs, i.Waiters)
}
