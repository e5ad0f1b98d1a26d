package lockmgr

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/tlock/lib/filelock"
)

func newManager(t *testing.T) (ILockManager, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "locks")
	lm, err := NewLockManager(filelock.NewRegistry(), dir, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewLockManager failed: %v", err)
	}
	t.Cleanup(func() {
		if err := lm.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return lm, dir
}

func TestLockPath(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"simple", "simple.lock"},
		{"a/b", "a%2Fb.lock"},
		{"..", "...lock"},
		{"with space", "with%20space.lock"},
	}
	for _, tt := range tests {
		got, err := LockPath("/locks", tt.key)
		if err != nil {
			t.Errorf("LockPath(%q) failed: %v", tt.key, err)
			continue
		}
		if got != filepath.Join("/locks", tt.want) {
			t.Errorf("LockPath(%q) = %s, want %s", tt.key, got, tt.want)
		}
	}

	if _, err := LockPath("/locks", ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestAcquireRelease(t *testing.T) {
	lm, dir := newManager(t)

	ok, owner, err := lm.AcquireLock("resource", 0)
	if err != nil || !ok {
		t.Fatalf("AcquireLock failed: %v %v", ok, err)
	}
	if len(owner) != ownerIDLength {
		t.Errorf("expected a %d byte owner id, got %d", ownerIDLength, len(owner))
	}

	path, _ := LockPath(dir, "resource")
	if st, err := filelock.Probe(path); err != nil || !st.Locked {
		t.Errorf("lock file should be locked, got %+v %v", st, err)
	}

	// the same key is exclusive within the process too
	ok, other, err := lm.AcquireLock("resource", 0)
	if err != nil || ok || other != nil {
		t.Errorf("second acquire must fail without error, got %v %v %v", ok, other, err)
	}

	// different keys are independent
	ok, owner2, err := lm.AcquireLock("other", 0)
	if err != nil || !ok {
		t.Fatalf("AcquireLock of another key failed: %v %v", ok, err)
	}

	if ok, err := lm.ReleaseLock("resource", owner2); ok || err != nil {
		t.Errorf("release with the wrong owner must fail, got %v %v", ok, err)
	}
	if ok, err := lm.ReleaseLock("resource", owner); !ok || err != nil {
		t.Errorf("release failed: %v %v", ok, err)
	}
	if st, _ := filelock.Probe(path); st.Locked {
		t.Error("lock file should be free after release")
	}
	if ok, err := lm.ReleaseLock("resource", owner); !ok || err != nil {
		t.Errorf("release of an unknown key must succeed, got %v %v", ok, err)
	}
	if ok, err := lm.ReleaseLock("other", owner2); !ok || err != nil {
		t.Errorf("release failed: %v %v", ok, err)
	}
}

func TestAcquireInvalidKey(t *testing.T) {
	lm, _ := newManager(t)
	if _, _, err := lm.AcquireLock("", 0); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	lm, _ := newManager(t)

	ok, owner, err := lm.AcquireLock("shared", 0)
	if err != nil || !ok {
		t.Fatalf("AcquireLock failed: %v %v", ok, err)
	}

	type result struct {
		ok    bool
		owner []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		ok, owner, err := lm.AcquireLock("shared", 5)
		done <- result{ok, owner, err}
	}()

	time.Sleep(30 * time.Millisecond)
	select {
	case r := <-done:
		t.Fatalf("waiting acquire returned while the lock was held: %+v", r)
	default:
	}

	if ok, err := lm.ReleaseLock("shared", owner); !ok || err != nil {
		t.Fatalf("release failed: %v %v", ok, err)
	}

	select {
	case r := <-done:
		if r.err != nil || !r.ok {
			t.Fatalf("waiting acquire failed: %+v", r)
		}
		if ok, err := lm.ReleaseLock("shared", r.owner); !ok || err != nil {
			t.Errorf("release failed: %v %v", ok, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for the second acquire")
	}
}

func TestAcquireWaitTimeout(t *testing.T) {
	lm, _ := newManager(t)

	if ok, _, err := lm.AcquireLock("busy", 0); err != nil || !ok {
		t.Fatalf("AcquireLock failed: %v %v", ok, err)
	}

	start := time.Now()
	ok, owner, err := lm.AcquireLock("busy", 1)
	if err != nil || ok || owner != nil {
		t.Errorf("expected (false, nil, nil) after the wait, got %v %v %v", ok, owner, err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("acquire gave up after %v, before the wait budget", elapsed)
	}
}

func TestAcquireForeignProcess(t *testing.T) {
	lm, dir := newManager(t)

	path, _ := LockPath(dir, "foreign")
	other := filelock.NewRegistry(filelock.WithPID(4711))
	h, err := other.Bind(path)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	held, err := h.Access()
	if err != nil {
		t.Fatal(err)
	}

	ok, owner, err := lm.AcquireLock("foreign", 0)
	if err != nil || ok || owner != nil {
		t.Errorf("expected (false, nil, nil) on contention, got %v %v %v", ok, owner, err)
	}

	// the OS lock is polled while waiting
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = held.Close()
	}()
	ok, owner, err = lm.AcquireLock("foreign", 5)
	if err != nil || !ok {
		t.Fatalf("waiting acquire failed: %v %v", ok, err)
	}
	if st, _ := filelock.Probe(path); st.PID == 4711 {
		t.Error("the pid marker should name the new holder")
	}
	_, _ = lm.ReleaseLock("foreign", owner)
}

func TestCloseReleasesLeases(t *testing.T) {
	dir := t.TempDir()
	lm, err := NewLockManager(filelock.NewRegistry(), dir, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"a", "b", "c"} {
		if ok, _, err := lm.AcquireLock(key, 0); err != nil || !ok {
			t.Fatalf("AcquireLock(%s) failed: %v %v", key, ok, err)
		}
	}
	if err := lm.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, key := range []string{"a", "b", "c"} {
		path, _ := LockPath(dir, key)
		if st, _ := filelock.Probe(path); st.Locked {
			t.Errorf("%s should be unlocked after Close", key)
		}
	}
}
