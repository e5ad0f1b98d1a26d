// Package filelock implements a layered lock: an OS level advisory file lock,
// valid across processes of one machine, combined with an in-process ownership
// token, valid across tasks of one process.
//
// Core Types:
//
//   - Registry: deduplicates lock files by filesystem identity (device and inode,
//     not path string). Symlinked or otherwise equivalent paths share one record;
//     its canonical path is the normalized path of the first Bind.
//   - Handle: long lived reference to a record, created by Registry.Bind.
//   - Access: short lived, reference counted accessor created from a Handle. The
//     first open Access of a record takes the OS lock (non-blocking) and writes
//     the process id to the lock file; the last one to close releases it.
//   - Token: in-process ownership, only obtainable through an Access. One owner
//     at a time; the owner may acquire it again (reference counted).
//
// Lifetime Rules:
//
//	Token  <  Access  <  Handle
//
//	A Token holds an Access of its own, so the OS lock stays held until the token
//	is released even if the Access it came from was closed. Every Access (token
//	ones included) must be closed before its Handle. Breaking the order is
//	reported as ErrLiveAccess (Handle.Close) or fails fast with a panic when
//	reference counts would become inconsistent.
//
// Contention:
//
//	Nothing in this package blocks. If another process holds the OS lock,
//	Handle.Access returns a *ContentionError (errors.Is(err, ErrContention))
//	carrying the pid found in the lock file. AcquireWithRetry is the opt-in
//	polling policy on top of that. If another owner holds the token,
//	Access.TryAcquire returns false; TryAcquireOrWait additionally registers a
//	wake callback, which is how the tasklock package suspends tasks.
//
// Usage Example:
//
//	reg := filelock.Default()
//
//	h, err := reg.Bind("/var/lib/app/db.lock")
//	if err != nil {
//	    // invalid path or the file could not be created
//	}
//	defer h.Close()
//
//	a, err := h.Access()
//	if errors.Is(err, filelock.ErrContention) {
//	    // some other process holds the lock
//	}
//	defer a.Close()
//
//	if tok, ok := a.TryAcquire(filelock.NewOwnerID()); ok {
//	    // exclusive within this process and across processes
//	    tok.Release()
//	}
package filelock
