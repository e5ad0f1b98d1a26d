package tasklock

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/tlock/lib/filelock"
	"github.com/ValentinKolb/tlock/lib/task"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
)

var plog = logger.GetLogger("tasklock")

const (
	// Attempting is the initial state, the task tries to get the token
	Attempting task.State = iota
	// Done is the terminal state, the task owns the token
	Done
)

// LockTask acquires the ownership token of one lock record on an engine.
type LockTask struct {
	engine *task.Engine
	task   *task.Task
	owner  filelock.OwnerID
	access *filelock.Access // owned by the LockTask, keeps the OS lock held

	mu     sync.Mutex
	token  *filelock.Token
	closed bool // access was closed
}

// New creates a LockTask for the record of access. The task takes its own clone
// of access, so the caller may close access at any time. It fails if access is
// already closed or stale.
func New(engine *task.Engine, access *filelock.Access) (*LockTask, error) {
	clone, err := access.Clone()
	if err != nil {
		return nil, err
	}
	return newLockTask(engine, clone), nil
}

// NewFromHandle creates a LockTask with a fresh Access of h. If another process
// holds the lock file the error matches filelock.ErrContention and no task is created.
func NewFromHandle(engine *task.Engine, h *filelock.Handle) (*LockTask, error) {
	a, err := h.Access()
	if err != nil {
		return nil, err
	}
	return newLockTask(engine, a), nil
}

func newLockTask(engine *task.Engine, access *filelock.Access) *LockTask {
	l := &LockTask{
		engine: engine,
		owner:  filelock.NewOwnerID(),
		access: access,
	}
	l.task = engine.NewTask(l, Attempting)
	return l
}

// Start schedules the task. If the engine is closed the task releases its access.
func (l *LockTask) Start() error {
	err := l.engine.Run(l.task)
	if errors.Is(err, task.ErrEngineClosed) {
		l.closeAccess()
	}
	return err
}

// Multiplex is part of task.Machine
func (l *LockTask) Multiplex(t *task.Task, s task.State) {
	switch s {
	case Attempting:
		tok, ok := l.access.TryAcquireOrWait(l.owner, t.Resume)
		if !ok {
			// resumed once the current owner releases the token
			t.Suspend()
			return
		}

		l.mu.Lock()
		l.token = tok
		l.mu.Unlock()

		plog.Debugf("%s: token owned by task %d", tok.Path(), t.ID())
		t.SetState(Done)
		t.Finish()
	case Done:
		t.Finish()
	default:
		panic(fmt.Sprintf("tasklock: unknown state %d", s))
	}
}

// StateName is part of task.Machine
func (l *LockTask) StateName(s task.State) string {
	switch s {
	case Attempting:
		return "Attempting"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AbortHook is part of task.Machine. It withdraws the wait registration and
// releases everything the task holds.
func (l *LockTask) AbortHook() {
	l.access.CancelWait(l.owner)

	l.mu.Lock()
	tok := l.token
	l.token = nil
	l.mu.Unlock()

	if tok != nil {
		// aborted in the very step that acquired the token
		if err := tok.Release(); err != nil {
			plog.Warningf("%s: release on abort: %v", l.access.Path(), err)
		}
	}
	if err := l.closeAccess(); err != nil {
		plog.Warningf("%s: close on abort: %v", l.access.Path(), err)
	}
}

// Unlock releases the token and the access of a task in state Done.
// Calling it in any other state, or twice, panics.
func (l *LockTask) Unlock() error {
	if s := l.task.State(); s != Done {
		panic(fmt.Sprintf("tasklock: Unlock of %s in state %s", l.access.Path(), l.StateName(s)))
	}

	l.mu.Lock()
	tok := l.token
	l.token = nil
	l.mu.Unlock()

	if tok == nil || !l.access.IsOwner(l.owner) {
		panic(fmt.Sprintf("tasklock: Unlock of %s by %d without owning it", l.access.Path(), l.owner))
	}

	err := tok.Release()
	if cerr := l.closeAccess(); err == nil {
		err = cerr
	}
	return err
}

func (l *LockTask) closeAccess() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.access.Close()
}

// Abort aborts the task unless it is already Done or aborted
func (l *LockTask) Abort() bool {
	return l.task.Abort()
}

// Wait blocks until the task owns the token (nil), was aborted
// (task.ErrTaskAborted) or ctx is done.
func (l *LockTask) Wait(ctx context.Context) error {
	return l.task.Wait(ctx)
}

// State returns Attempting or Done
func (l *LockTask) State() task.State {
	return l.task.State()
}

// Owner returns the owner id the task acquires the token with
func (l *LockTask) Owner() filelock.OwnerID {
	return l.owner
}

// Path returns the canonical path of the lock file
func (l *LockTask) Path() string {
	return l.access.Path()
}

// ID returns the id of the underlying task
func (l *LockTask) ID() uint64 {
	return l.task.ID()
}

func (l *LockTask) String() string {
	return fmt.Sprintf("LockTask{%s, owner: %d, %s}", l.access.Path(), l.owner, l.task)
}
