package task

import (
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sync/atomic"
)

var plog = logger.GetLogger("task")

// Engine runs tasks on a single worker goroutine.
type Engine struct {
	name   string
	queue  *runQueue
	tasks  *xsync.MapOf[uint64, *Task] // started, not yet done
	lastID atomic.Uint64
	closed atomic.Bool
}

// NewEngine creates an engine and starts its worker goroutine.
// The name is only used for logging.
func NewEngine(name string) *Engine {
	e := &Engine{
		name:  name,
		tasks: xsync.NewMapOf[uint64, *Task](),
	}
	e.queue = newRunQueue(func(t *Task) {
		t.step()
	})
	return e
}

// NewTask creates a task for m starting in state initial. The task does nothing
// until it is passed to Run.
func (e *Engine) NewTask(m Machine, initial State) *Task {
	return &Task{
		id:      e.lastID.Add(1),
		engine:  e,
		machine: m,
		state:   initial,
		done:    make(chan struct{}),
	}
}

// Run schedules t for its first step.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Engine) Run(t *Task) error {
	if t.engine != e {
		panic("task: task run on a foreign engine")
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}

	t.mu.Lock()
	if t.status != statusIdle {
		t.mu.Unlock()
		return ErrTaskStarted
	}
	t.status = statusQueued
	t.mu.Unlock()

	e.tasks.Store(t.id, t)
	plog.Debugf("%s: run %s", e.name, t)
	e.enqueue(t)
	return nil
}

// Abort aborts the live task with the given id. It reports whether such a task existed.
func (e *Engine) Abort(id uint64) bool {
	t, ok := e.tasks.Load(id)
	if !ok {
		return false
	}
	return t.Abort()
}

// Len returns the number of started tasks that are neither finished nor aborted
func (e *Engine) Len() int {
	return e.tasks.Size()
}

// Close aborts all live tasks and stops the worker once it has drained the queue.
// It must not be called from within Multiplex.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}

	var live []*Task
	e.tasks.Range(func(_ uint64, t *Task) bool {
		live = append(live, t)
		return true
	})
	for _, t := range live {
		t.Abort()
	}
	if len(live) > 0 {
		plog.Infof("%s: closed, aborted %d tasks", e.name, len(live))
	}

	e.queue.close()
}

// enqueue pushes a queued task, a task that cannot be queued anymore is aborted
func (e *Engine) enqueue(t *Task) {
	if e.queue.push(t) {
		return
	}

	t.mu.Lock()
	if t.status != statusQueued {
		t.mu.Unlock()
		return
	}
	t.status = statusAborted
	t.mu.Unlock()
	t.abortFinal()
}

func (e *Engine) forget(t *Task) {
	e.tasks.Delete(t.id)
}
