// Package lockmgr implements named locks on top of lock files. Every key maps to
// one file in a lock directory; acquiring a key takes the OS level lock of that
// file (so other processes are excluded) and the in-process ownership token
// (so other callers of this process are excluded).
//
// Core Functionality:
//   - Lock acquisition with ownership verification via random owner IDs
//   - Optional waiting: the OS lock is polled, the in-process token is awaited by a
//     tasklock.LockTask that is woken up as soon as the token is released
//   - Safe release operations that verify ownership
//
// Implementation Approach:
//
//	- Lock Acquisition: The key is mapped to <dir>/<escaped key>.lock and bound
//	  in the filelock.Registry. Without waiting the token is tried exactly once.
//	  With waiting, filelock.AcquireWithRetry takes the OS lock and a LockTask
//	  takes the token, both within the same deadline.
//
//	- Safe Release: ReleaseLock compares the owner ID of the lease with the one
//	  of the caller before anything is released. Releasing an unknown key
//	  succeeds.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Leases are kept in a concurrent map,
//	the lock semantics are provided by the filelock package.
//
// Usage Example:
//
//	lm, err := lockmgr.NewLockManager(filelock.Default(), "/var/lock/myapp", 100*time.Millisecond)
//	if err != nil {
//	    // Handle error
//	}
//	defer lm.Close()
//
//	acquired, ownerID, err := lm.AcquireLock("resource:123", 30)
//	if err != nil {
//	    // Handle error
//	}
//
//	if acquired {
//	    // Use the resource safely
//	    // ...
//
//	    released, err := lm.ReleaseLock("resource:123", ownerID)
//	}
//
// Unlike a lock in a key value store, a lock file does not expire: a crashed
// process releases its locks because the operating system drops them.
package lockmgr
