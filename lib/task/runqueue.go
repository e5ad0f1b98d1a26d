package task

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// runNode is a single element of the run queue
type runNode struct {
	task *Task
	next atomic.Pointer[runNode]
}

// runQueue is a lock-free multi-producer single-consumer queue of runnable tasks.
// Any goroutine may push (resumes come from whoever releases a lock), while one
// consumer goroutine pops the tasks and hands them to run, one at a time.
//
// Under concurrent pushes the order is decided by which producer completes its
// CAS first, not by which started first.
type runQueue struct {
	head     atomic.Pointer[runNode]
	tail     atomic.Pointer[runNode]
	run      func(*Task)
	consumer sync.WaitGroup
	closed   atomic.Bool

	// the consumer sleeps on cond while the queue is empty
	mu   sync.Mutex
	cond *sync.Cond
}

// newRunQueue creates the queue and starts its consumer goroutine
func newRunQueue(run func(*Task)) *runQueue {
	sentinel := &runNode{}

	q := &runQueue{run: run}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// push appends t to the queue. It returns false if the queue is closed, also when
// the queue was closed while t was being appended.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *runQueue) push(t *Task) bool {
	if t == nil || q.closed.Load() {
		return false
	}

	newNode := &runNode{task: t}
	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// may fail if another producer already moved the tail, that's fine
				q.tail.CompareAndSwap(tailNode, newNode)

				// signal under mu, otherwise the consumer may miss it between its
				// emptiness check and cond.Wait
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()

				// close may have drained the queue before the append, the caller
				// has to deal with the task itself then (it may still be run)
				return !q.closed.Load()
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume runs queued tasks until the queue is closed and empty
func (q *runQueue) consume() {
	defer q.consumer.Done()

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			t := next.task
			q.head.Store(next)
			next.task = nil // help gc

			q.run(t)
		}

		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// close stops accepting tasks and waits until the consumer has run everything
// that was queued before. It must not be called from the consumer goroutine.
func (q *runQueue) close() {
	q.mu.Lock()
	q.closed.Store(true)
	q.cond.Signal()
	q.mu.Unlock()

	q.consumer.Wait()

	// a producer that passed the closed check just before close may have appended
	// after the consumer left, the caller takes over as the only consumer
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			return
		}
		t := next.task
		q.head.Store(next)
		next.task = nil
		q.run(t)
	}
}

// len returns an approximate count of queued tasks.
// This is O(n) and should only be used for debugging.
func (q *runQueue) len() int {
	count := 0
	current := q.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}
	return count
}
