package task

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestRunQueueBasic tests that pushed tasks are run in order by a single producer
func TestRunQueueBasic(t *testing.T) {
	var (
		mu  sync.Mutex
		got []uint64
	)
	q := newRunQueue(func(tk *Task) {
		mu.Lock()
		got = append(got, tk.id)
		mu.Unlock()
	})

	for i := uint64(1); i <= 10; i++ {
		if !q.push(&Task{id: i}) {
			t.Fatalf("Failed to push task %d", i)
		}
	}
	q.close()

	if len(got) != 10 {
		t.Fatalf("Expected 10 runs, got %d", len(got))
	}
	for i, id := range got {
		if id != uint64(i+1) {
			t.Errorf("Run %d: expected task %d, got %d", i, i+1, id)
		}
	}
}

// TestRunQueueConcurrentProducers verifies nothing is lost with many producers
func TestRunQueueConcurrentProducers(t *testing.T) {
	const (
		numProducers     = 10
		itemsPerProducer = 1000
	)

	var count atomic.Int64
	q := newRunQueue(func(*Task) {
		count.Add(1)
	})

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				q.push(&Task{})
				if i%100 == 0 {
					// let the consumer go to sleep now and then
					time.Sleep(time.Microsecond)
				}
			}
		}()
	}
	wg.Wait()
	q.close()

	if got := count.Load(); got != numProducers*itemsPerProducer {
		t.Errorf("Expected %d runs, got %d", numProducers*itemsPerProducer, got)
	}
}

// TestRunQueueClosed tests that a closed queue rejects pushes
func TestRunQueueClosed(t *testing.T) {
	q := newRunQueue(func(*Task) {})
	q.close()

	if q.push(&Task{}) {
		t.Error("Push on a closed queue should fail")
	}
	if q.push(nil) {
		t.Error("Push of nil should fail")
	}
	if q.len() != 0 {
		t.Errorf("Closed queue should be empty, has %d", q.len())
	}
}

// TestRunQueueWakeup tests that a sleeping consumer wakes up for a single push
func TestRunQueueWakeup(t *testing.T) {
	ran := make(chan struct{}, 1)
	q := newRunQueue(func(*Task) { ran <- struct{}{} })
	defer q.close()

	for i := 0; i < 50; i++ {
		time.Sleep(time.Millisecond) // consumer is waiting on the cond now
		q.push(&Task{})
		select {
		case <-ran:
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for run %d", i)
		}
	}
}
