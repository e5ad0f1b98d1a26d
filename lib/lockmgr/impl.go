package lockmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/tlock/lib/filelock"
	"github.com/ValentinKolb/tlock/lib/task"
	"github.com/ValentinKolb/tlock/lib/tasklock"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"os"
	"time"
)

var plog = logger.GetLogger("lockmgr")

// lease is one acquired named lock
type lease struct {
	ownerID []byte
	handle  *filelock.Handle
	token   *filelock.Token    // set for locks taken without waiting
	lock    *tasklock.LockTask // set for locks taken by a LockTask
}

func (l *lease) release() error {
	var err error
	if l.lock != nil {
		err = l.lock.Unlock()
	} else {
		err = l.token.Release()
	}
	return errors.Join(err, l.handle.Close())
}

type lockMgrImpl struct {
	registry      *filelock.Registry
	engine        *task.Engine
	dir           string
	retryInterval time.Duration
	leases        *xsync.MapOf[string, *lease]
}

// NewLockManager creates a lock manager that keeps its lock files in dir, which is
// created if needed. retryInterval is the polling interval while another process
// holds a lock file.
func NewLockManager(registry *filelock.Registry, dir string, retryInterval time.Duration) (ILockManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", filelock.ErrIO, err)
	}
	if retryInterval <= 0 {
		retryInterval = 100 * time.Millisecond
	}
	return &lockMgrImpl{
		registry:      registry,
		engine:        task.NewEngine("lockmgr"),
		dir:           dir,
		retryInterval: retryInterval,
		leases:        xsync.NewMapOf[string, *lease](),
	}, nil
}

func (lm *lockMgrImpl) AcquireLock(key string, wait uint64) (bool, []byte, error) {
	path, err := LockPath(lm.dir, key)
	if err != nil {
		return false, nil, err
	}

	// Generate owner ID (256 bit random value)
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	h, err := lm.registry.Bind(path)
	if err != nil {
		return false, nil, err
	}

	l, err := lm.acquire(h, time.Duration(wait)*time.Second)
	if err != nil || l == nil {
		if cerr := h.Close(); cerr != nil {
			plog.Errorf("%s: close handle: %v", path, cerr)
		}
		if errors.Is(err, filelock.ErrContention) {
			plog.Debugf("%s: held by another process", path)
			return false, nil, nil
		}
		return false, nil, err
	}

	l.ownerID = ownerID
	lm.leases.Store(key, l)
	plog.Debugf("%s: acquired", path)
	return true, ownerID, nil
}

// acquire takes the OS lock and the ownership token of h. It returns a nil lease
// without error if another owner of this process holds the lock after wait.
func (lm *lockMgrImpl) acquire(h *filelock.Handle, wait time.Duration) (*lease, error) {
	if wait == 0 {
		access, err := h.Access()
		if err != nil {
			return nil, err
		}
		defer access.Close()

		tok, ok := access.TryAcquire(filelock.NewOwnerID())
		if !ok {
			return nil, nil
		}
		return &lease{handle: h, token: tok}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	access, err := filelock.AcquireWithRetry(ctx, h, lm.retryInterval)
	if err != nil {
		return nil, err
	}
	lt, err := tasklock.New(lm.engine, access)
	_ = access.Close() // the task holds its own access
	if err != nil {
		return nil, err
	}
	if err := lt.Start(); err != nil {
		return nil, err
	}

	err = lt.Wait(ctx)
	if err == nil {
		return &lease{handle: h, lock: lt}, nil
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	if !lt.Abort() && lt.State() == tasklock.Done {
		// got it right at the deadline
		return &lease{handle: h, lock: lt}, nil
	}
	// the abort hook must have released the access before the handle is closed
	_ = lt.Wait(context.Background())
	return nil, nil
}

func (lm *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	var (
		found    bool
		released *lease
	)

	// Remove the lease only if it is owned by the caller
	lm.leases.Compute(key, func(old *lease, loaded bool) (*lease, bool) {
		if !loaded {
			return nil, true
		}
		found = true
		if !bytes.Equal(old.ownerID, ownerID) {
			return old, false
		}
		released = old
		return nil, true
	})

	if !found {
		return true, nil
	}
	if released == nil {
		return false, nil
	}

	err := released.release()
	return err == nil, err
}

func (lm *lockMgrImpl) Close() error {
	var errs []error
	lm.leases.Range(func(key string, l *lease) bool {
		lm.leases.Delete(key)
		if err := l.release(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return true
	})
	lm.engine.Close()
	return errors.Join(errs...)
}
