package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	stateCount State = iota
	stateWait
	stateEnd
)

// testMachine is a configurable Machine used by the tests
type testMachine struct {
	steps   atomic.Int32
	aborts  atomic.Int32
	onStep  func(t *Task, s State)
	onAbort func()
}

func (m *testMachine) Multiplex(t *Task, s State) {
	m.steps.Add(1)
	if m.onStep != nil {
		m.onStep(t, s)
	}
}

func (m *testMachine) StateName(s State) string {
	switch s {
	case stateCount:
		return "Count"
	case stateWait:
		return "Wait"
	case stateEnd:
		return "End"
	}
	return "Unknown"
}

func (m *testMachine) AbortHook() {
	m.aborts.Add(1)
	if m.onAbort != nil {
		m.onAbort()
	}
}

func waitDone(t *testing.T, tk *Task) {
	t.Helper()
	select {
	case <-tk.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", tk)
	}
}

func TestYieldUntilFinish(t *testing.T) {
	e := NewEngine("test")
	defer e.Close()

	const n = 10
	counter := 0
	m := &testMachine{}
	m.onStep = func(tk *Task, s State) {
		counter++
		if counter == n {
			tk.SetState(stateEnd)
			tk.Finish()
		}
	}

	tk := e.NewTask(m, stateCount)
	if err := e.Run(tk); err != nil {
		t.Fatal(err)
	}
	if err := tk.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned %v", err)
	}

	if got := m.steps.Load(); got != n {
		t.Errorf("expected %d steps, got %d", n, got)
	}
	if tk.State() != stateEnd || tk.Aborted() {
		t.Errorf("unexpected final task %s", tk)
	}
	if e.Len() != 0 {
		t.Errorf("finished task must leave the engine, %d left", e.Len())
	}
}

func TestRunErrors(t *testing.T) {
	e := NewEngine("test")

	m := &testMachine{onStep: func(tk *Task, _ State) { tk.Finish() }}
	tk := e.NewTask(m, stateCount)
	if err := e.Run(tk); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(tk); !errors.Is(err, ErrTaskStarted) {
		t.Errorf("expected ErrTaskStarted, got %v", err)
	}
	waitDone(t, tk)

	e.Close()
	if err := e.Run(e.NewTask(m, stateCount)); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
	e.Close() // second close is a no-op
}

func TestSuspendResume(t *testing.T) {
	e := NewEngine("test")
	defer e.Close()

	m := &testMachine{}
	m.onStep = func(tk *Task, s State) {
		switch s {
		case stateCount:
			tk.SetState(stateWait)
			tk.Suspend()
		case stateWait:
			tk.Finish()
		}
	}

	tk := e.NewTask(m, stateCount)
	if err := e.Run(tk); err != nil {
		t.Fatal(err)
	}

	// give the worker time to run the first step
	deadline := time.Now().Add(2 * time.Second)
	for m.steps.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	select {
	case <-tk.Done():
		t.Fatal("suspended task must not finish on its own")
	default:
	}
	if got := m.steps.Load(); got != 1 {
		t.Fatalf("suspended task must not be stepped again, got %d steps", got)
	}

	go tk.Resume()
	waitDone(t, tk)

	if got := m.steps.Load(); got != 2 {
		t.Errorf("expected 2 steps, got %d", got)
	}
}

func TestResumeWhileRunningIsLatched(t *testing.T) {
	e := NewEngine("test")
	defer e.Close()

	m := &testMachine{}
	m.onStep = func(tk *Task, s State) {
		switch s {
		case stateCount:
			// the wakeup races in before the step decides to sleep
			tk.SetState(stateWait)
			tk.Resume()
			tk.Suspend()
		case stateWait:
			tk.Finish()
		}
	}

	tk := e.NewTask(m, stateCount)
	if err := e.Run(tk); err != nil {
		t.Fatal(err)
	}
	waitDone(t, tk)

	if got := m.steps.Load(); got != 2 {
		t.Errorf("latched resume must rerun the task, got %d steps", got)
	}
}

func TestResumeStress(t *testing.T) {
	e := NewEngine("test")
	defer e.Close()

	const rounds = 200
	var (
		ready   = make(chan struct{}, 1)
		reached atomic.Int32
	)

	m := &testMachine{}
	m.onStep = func(tk *Task, s State) {
		if reached.Add(1) >= rounds {
			tk.Finish()
			return
		}
		tk.Suspend()
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	tk := e.NewTask(m, stateCount)
	if err := e.Run(tk); err != nil {
		t.Fatal(err)
	}

	// resume from another goroutine racing with the end of every step
	go func() {
		for {
			select {
			case <-tk.Done():
				return
			case <-ready:
				tk.Resume()
			}
		}
	}()

	waitDone(t, tk)
	if tk.Aborted() {
		t.Error("task must finish, not abort")
	}
}

func TestAbortSuspended(t *testing.T) {
	e := NewEngine("test")
	defer e.Close()

	suspended := make(chan struct{})
	m := &testMachine{}
	m.onStep = func(tk *Task, _ State) {
		tk.Suspend()
		close(suspended)
	}

	tk := e.NewTask(m, stateCount)
	if err := e.Run(tk); err != nil {
		t.Fatal(err)
	}
	<-suspended

	// the step may still be running, the abort is latched then
	if !e.Abort(tk.ID()) {
		t.Fatal("Abort should find the live task")
	}
	waitDone(t, tk)

	if !tk.Aborted() {
		t.Error("task should be aborted")
	}
	if err := tk.Wait(context.Background()); !errors.Is(err, ErrTaskAborted) {
		t.Errorf("expected ErrTaskAborted, got %v", err)
	}
	if got := m.aborts.Load(); got != 1 {
		t.Errorf("abort hook must run exactly once, got %d", got)
	}
	if tk.Abort() {
		t.Error("second Abort should report false")
	}
	if e.Abort(tk.ID()) {
		t.Error("engine must forget aborted tasks")
	}
	tk.Resume() // no effect on an aborted task
	if got := m.steps.Load(); got != 1 {
		t.Errorf("aborted task must not run again, got %d steps", got)
	}
}

func TestAbortFromWithinStep(t *testing.T) {
	e := NewEngine("test")
	defer e.Close()

	m := &testMachine{}
	m.onStep = func(tk *Task, _ State) {
		tk.Abort()
		tk.Finish() // abort wins
	}

	tk := e.NewTask(m, stateCount)
	if err := e.Run(tk); err != nil {
		t.Fatal(err)
	}
	waitDone(t, tk)

	if !tk.Aborted() || m.aborts.Load() != 1 {
		t.Errorf("expected an aborted task with one hook call, got %s and %d", tk, m.aborts.Load())
	}
}

func TestCloseAbortsLiveTasks(t *testing.T) {
	e := NewEngine("test")

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	tasks := make([]*Task, n)
	for i := range tasks {
		var once sync.Once
		m := &testMachine{}
		m.onStep = func(tk *Task, _ State) {
			tk.Suspend()
			once.Do(wg.Done)
		}
		tasks[i] = e.NewTask(m, stateCount)
		if err := e.Run(tasks[i]); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if e.Len() != n {
		t.Fatalf("expected %d live tasks, got %d", n, e.Len())
	}

	e.Close()
	for _, tk := range tasks {
		waitDone(t, tk)
		if !tk.Aborted() {
			t.Errorf("%s should be aborted by Close", tk)
		}
	}
	if e.Len() != 0 {
		t.Errorf("expected no live tasks, got %d", e.Len())
	}
}

func TestWaitContext(t *testing.T) {
	e := NewEngine("test")
	defer e.Close()

	m := &testMachine{onStep: func(tk *Task, _ State) { tk.Suspend() }}
	tk := e.NewTask(m, stateCount)
	if err := e.Run(tk); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tk.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestRunRacingClose(t *testing.T) {
	for round := 0; round < 200; round++ {
		e := NewEngine("race")

		const n = 4
		tasks := make([]*Task, n)
		var wg sync.WaitGroup
		wg.Add(n)
		for i := range tasks {
			tasks[i] = e.NewTask(&testMachine{onStep: func(tk *Task, _ State) { tk.Finish() }}, stateCount)
			go func(tk *Task) {
				defer wg.Done()
				_ = e.Run(tk)
			}(tasks[i])
		}
		e.Close()
		wg.Wait()

		// every started task ends up finished or aborted, none stays queued
		for _, tk := range tasks {
			tk.mu.Lock()
			st := tk.status
			tk.mu.Unlock()
			if st == statusIdle {
				continue // Run returned ErrEngineClosed
			}
			waitDone(t, tk)
		}
		if e.Len() != 0 {
			t.Fatalf("round %d: %d tasks left behind", round, e.Len())
		}
	}
}
