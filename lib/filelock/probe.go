package filelock

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/tlock/lib/canonical"
	"github.com/gofrs/flock"
	"io/fs"
	"os"
	"time"
)

// Status describes a lock file as seen from outside any registry.
type Status struct {
	Path   string // canonical path
	Exists bool   // whether the lock file exists
	Locked bool   // whether some open file description holds the lock
	PID    int    // pid stored in the lock file, 0 if none
}

// Probe checks whether the lock file at path is currently locked. It briefly
// takes the lock itself if it is free. A lock held by a registry of this very
// process is reported as locked as well.
func Probe(path string) (Status, error) {
	p, err := canonical.Normalize(path)
	if err != nil {
		return Status{}, err
	}
	st := Status{Path: p}

	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return st, fmt.Errorf("%w: %v", ErrIO, err)
	}
	st.Exists = true
	st.PID = peekPID(p)

	fl := flock.New(p)
	ok, err := fl.TryLock()
	if err != nil {
		return st, fmt.Errorf("%w: lock %s: %v", ErrIO, p, err)
	}
	if !ok {
		st.Locked = true
		return st, nil
	}
	if err := fl.Unlock(); err != nil {
		return st, fmt.Errorf("%w: unlock %s: %v", ErrIO, p, err)
	}
	return st, nil
}

// AcquireWithRetry is the opt-in retry policy for the OS level lock: it calls
// h.Access every interval until it succeeds, fails with anything but
// ErrContention, or ctx is done. In the last case the returned error matches
// both ErrContention and ctx.Err().
func AcquireWithRetry(ctx context.Context, h *Handle, interval time.Duration) (*Access, error) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		a, err := h.Access()
		if err == nil || !errors.Is(err, ErrContention) {
			return a, err
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return nil, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
