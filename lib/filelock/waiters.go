package filelock

import (
	"container/heap"
	"strconv"
)

// waiter is a task that failed to get the ownership token and wants to be
// woken up once the token is released.
type waiter struct {
	owner OwnerID // key, one registration per owner
	seq   uint64  // arrival order, used as heap priority
	wake  func()
	index int // index in the heap, maintained by container/heap
}

func (w *waiter) String() string {
	return "{Owner: " + strconv.FormatUint(uint64(w.owner), 10) + ", Seq: " + strconv.FormatUint(w.seq, 10) + "}"
}

// waitQueue is a min-heap of waiters ordered by arrival with O(1) lookup by owner.
// A waiter that registers again keeps its original place in line.
//
// Thread-safety: not thread-safe, guarded by the record mutex.
type waitQueue struct {
	items   []*waiter
	byOwner map[OwnerID]*waiter
	nextSeq uint64
}

func newWaitQueue() *waitQueue {
	return &waitQueue{
		items:   make([]*waiter, 0),
		byOwner: make(map[OwnerID]*waiter),
	}
}

// Len is part of heap.Interface
func (q *waitQueue) Len() int { return len(q.items) }

// Less is part of heap.Interface (oldest registration first)
func (q *waitQueue) Less(i, j int) bool {
	return q.items[i].seq < q.items[j].seq
}

// Swap is part of heap.Interface
func (q *waitQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

// Push is part of heap.Interface, use add instead
func (q *waitQueue) Push(x interface{}) {
	w := x.(*waiter)
	w.index = len(q.items)
	q.items = append(q.items, w)
	q.byOwner[w.owner] = w
}

// Pop is part of heap.Interface, use drain instead
func (q *waitQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	w := old[n-1]
	old[n-1] = nil // avoid memory leak
	w.index = -1
	q.items = old[:n-1]
	delete(q.byOwner, w.owner)
	return w
}

// add registers wake for owner. An existing registration only gets its callback replaced.
func (q *waitQueue) add(owner OwnerID, wake func()) {
	if w, exists := q.byOwner[owner]; exists {
		w.wake = wake
		return
	}

	q.nextSeq++
	heap.Push(q, &waiter{
		owner: owner,
		seq:   q.nextSeq,
		wake:  wake,
	})
}

// remove drops the registration of owner, if any.
func (q *waitQueue) remove(owner OwnerID) bool {
	w, exists := q.byOwner[owner]
	if !exists {
		return false
	}
	heap.Remove(q, w.index)
	return true
}

// drain empties the queue and returns the callbacks in arrival order.
// The callbacks must be called after the record mutex was released.
func (q *waitQueue) drain() []func() {
	if len(q.items) == 0 {
		return nil
	}
	wakes := make([]func(), 0, len(q.items))
	for q.Len() > 0 {
		w := heap.Pop(q).(*waiter)
		wakes = append(wakes, w.wake)
	}
	return wakes
}
