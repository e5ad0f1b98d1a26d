package filelock

// Handle is a long lived reference to a lock record. It keeps the record in the
// registry and is the only way to create an Access.
//
// A Handle must outlive every Access created from it: Close fails with
// ErrLiveAccess while any of them is still open.
type Handle struct {
	reg *Registry
	rec *record

	// guarded by rec.mu
	closed  bool
	derived int // open accesses created from this handle (clones included)
}

// Path returns the canonical path of the underlying record. For handles that were
// bound through an equivalent path this is the path of the first Bind.
func (h *Handle) Path() string {
	return h.rec.path
}

// Access creates a new Access. The first open Access of a record takes the
// OS level lock (without blocking); if another process holds it, the returned
// error is a *ContentionError and nothing changed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *Handle) Access() (*Access, error) {
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()

	if h.closed {
		return nil, ErrHandleClosed
	}
	if err := h.rec.addAccessLocked(); err != nil {
		return nil, err
	}
	h.derived++

	return &Access{handle: h, rec: h.rec}, nil
}

// Close releases the handle. The record is erased from the registry when the
// last handle referencing it is closed.
func (h *Handle) Close() error {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if h.derived > 0 {
		plog.Errorf("%s: handle closed with %d open accesses", h.rec.path, h.derived)
		return ErrLiveAccess
	}

	h.closed = true
	h.reg.releaseHandleLocked(h.rec)
	return nil
}

// Info returns a snapshot of the underlying record.
func (h *Handle) Info() RecordInfo {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	return h.rec.infoLocked()
}

func (h *Handle) String() string {
	return "Handle:" + h.Info().String()
}
