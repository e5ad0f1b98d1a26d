package filelock

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/tlock/lib/canonical"
	"github.com/lni/dragonboat/v4/logger"
	"os"
	"sync"
)

var plog = logger.GetLogger("filelock")

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry deduplicates lock files by filesystem identity. There is at most one
// record per inode in a registry, no matter how many (equivalent) paths were bound.
//
// A process should use a single registry (see Default). Two registries binding
// the same file behave like two processes: the second one sees ErrContention.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	records []*record
	pid     int
	metrics *registryMetrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithPID overrides the process id written to lock files (default: os.Getpid()).
func WithPID(pid int) Option {
	return func(r *Registry) {
		r.pid = pid
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records: make([]*record, 0),
		pid:     os.Getpid(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.metrics = newRegistryMetrics(r)
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process wide registry, creating it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Bind returns a new Handle for the lock file at path. The file is created if
// it does not exist. If an equivalent path (same inode) was bound before and is
// still referenced, the handle shares that record and its canonical path.
//
// Bind never touches the OS level lock, that happens in Handle.Access.
func (r *Registry) Bind(path string) (*Handle, error) {
	p, err := canonical.Normalize(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// the file has to exist for identity and for the native lock
	if _, err := canonical.EnsureExists(p); err != nil {
		if errors.Is(err, ErrInvalidPath) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	rec := r.findLocked(p)
	if rec == nil {
		rec = newRecord(r, p)
		r.records = append(r.records, rec)
		plog.Debugf("%s: new lock record", p)
	}
	rec.handles++

	return &Handle{reg: r, rec: rec}, nil
}

// findLocked scans for a record equivalent to p. r.mu must be held.
func (r *Registry) findLocked(p string) *record {
	for _, rec := range r.records {
		same, err := canonical.Equivalent(rec.path, p)
		if err != nil {
			plog.Warningf("%s: equivalence check against %s failed: %v", p, rec.path, err)
			continue
		}
		if same {
			return rec
		}
	}
	return nil
}

// releaseHandleLocked drops one handle reference and erases the record once the
// last handle is gone. r.mu and rec.mu must be held.
func (r *Registry) releaseHandleLocked(rec *record) {
	rec.handles--
	if rec.handles > 0 {
		return
	}

	// the handle checks guarantee this, a violation means corrupted counts
	if rec.accesses != 0 || rec.tokenRefs != 0 {
		panic(fmt.Sprintf("filelock: erasing %s with %d accesses and %d token refs", rec.path, rec.accesses, rec.tokenRefs))
	}

	for i, other := range r.records {
		if other == rec {
			last := len(r.records) - 1
			r.records[i] = r.records[last]
			r.records[last] = nil
			r.records = r.records[:last]
			break
		}
	}
	rec.erased = true
	plog.Debugf("%s: lock record erased", rec.path)
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns a snapshot of all live records.
func (r *Registry) Records() []RecordInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]RecordInfo, 0, len(r.records))
	for _, rec := range r.records {
		rec.mu.Lock()
		infos = append(infos, rec.infoLocked())
		rec.mu.Unlock()
	}
	return infos
}

// PID returns the process id this registry writes to lock files.
func (r *Registry) PID() int {
	return r.pid
}
