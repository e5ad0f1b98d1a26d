package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEngineClosed is returned when a task is run on a closed engine
	ErrEngineClosed = errors.New("engine closed")
	// ErrTaskStarted is returned when a task is run a second time
	ErrTaskStarted = errors.New("task already started")
	// ErrTaskAborted is returned by Task.Wait for aborted tasks
	ErrTaskAborted = errors.New("task aborted")
)

// State is a machine defined step of a task
type State int

// Machine is the behaviour of a task.
type Machine interface {
	// Multiplex runs one non-blocking step for state s on the engine's worker goroutine
	Multiplex(t *Task, s State)
	// StateName returns a human readable name of s (for logging)
	StateName(s State) string
	// AbortHook is called once when the task is aborted, outside any task lock
	AbortHook()
}

type status int

const (
	statusIdle status = iota
	statusQueued
	statusRunning
	statusSuspended
	statusFinished
	statusAborted
)

func (s status) String() string {
	switch s {
	case statusIdle:
		return "idle"
	case statusQueued:
		return "queued"
	case statusRunning:
		return "running"
	case statusSuspended:
		return "suspended"
	case statusFinished:
		return "finished"
	case statusAborted:
		return "aborted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// intent is what the running step asked for
type intent int

const (
	intentYield intent = iota
	intentSuspend
	intentFinish
)

// Task is one scheduled Machine.
type Task struct {
	id      uint64
	engine  *Engine
	machine Machine
	done    chan struct{}

	mu        sync.Mutex
	state     State
	status    status
	intent    intent
	signalled bool // Resume arrived while running
	aborting  bool // Abort arrived while running
}

// ID returns the engine unique id of the task
func (t *Task) ID() uint64 {
	return t.id
}

// State returns the current machine state
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState sets the state passed to the next Multiplex call
func (t *Task) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// Suspend ends the current step without queueing the task again.
// Only valid from within Multiplex.
func (t *Task) Suspend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.intent = intentSuspend
}

// Finish ends the task after the current step.
// Only valid from within Multiplex.
func (t *Task) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.intent = intentFinish
}

// Resume wakes a suspended task. A resume of a running task is latched and takes
// effect when the step ends. Resuming a queued, finished or aborted task does nothing.
//
// Thread-safety: This method is thread-safe and can be called from any goroutine.
func (t *Task) Resume() {
	t.mu.Lock()
	switch t.status {
	case statusSuspended:
		t.status = statusQueued
		t.mu.Unlock()
		t.engine.enqueue(t)
		return
	case statusRunning:
		t.signalled = true
	}
	t.mu.Unlock()
}

// Abort aborts the task. If a step is running the abort takes effect when the step
// ends, otherwise immediately. It returns false if the task already finished or was aborted.
//
// Thread-safety: This method is thread-safe and can be called from any goroutine.
func (t *Task) Abort() bool {
	t.mu.Lock()
	switch t.status {
	case statusFinished, statusAborted:
		t.mu.Unlock()
		return false
	case statusRunning:
		t.aborting = true
		t.mu.Unlock()
		return true
	}
	t.status = statusAborted
	t.mu.Unlock()

	t.abortFinal()
	return true
}

// abortFinal runs the abort hook and completes an aborted task. The status must
// already be statusAborted.
func (t *Task) abortFinal() {
	plog.Debugf("%s: %s aborted", t.engine.name, t)
	t.machine.AbortHook()
	t.engine.forget(t)
	close(t.done)
}

// Done is closed once the task finished or was aborted
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Aborted reports whether the task was aborted
func (t *Task) Aborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == statusAborted
}

// Wait blocks until the task is done or ctx is cancelled. It returns ErrTaskAborted
// for aborted tasks.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		if t.Aborted() {
			return ErrTaskAborted
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// step runs one Multiplex call. It is only called by the engine worker.
func (t *Task) step() {
	t.mu.Lock()
	if t.status != statusQueued {
		// aborted while waiting in the queue
		t.mu.Unlock()
		return
	}
	t.status = statusRunning
	t.intent = intentYield
	t.signalled = false
	s := t.state
	t.mu.Unlock()

	t.machine.Multiplex(t, s)

	t.mu.Lock()
	if t.aborting {
		t.status = statusAborted
		t.mu.Unlock()
		t.abortFinal()
		return
	}

	switch t.intent {
	case intentFinish:
		t.status = statusFinished
		t.mu.Unlock()
		plog.Debugf("%s: %s finished", t.engine.name, t)
		t.engine.forget(t)
		close(t.done)
		return
	case intentSuspend:
		if !t.signalled {
			t.status = statusSuspended
			t.mu.Unlock()
			return
		}
	}

	t.status = statusQueued
	t.mu.Unlock()
	t.engine.enqueue(t)
}

func (t *Task) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("Task#%d[%s,%s]", t.id, t.machine.StateName(t.state), t.status)
}
