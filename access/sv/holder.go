package sv

import "sync"

// Holder is a table's single current SuperVersion, swapped atomically by a
// compactor and read by every query plan that opens the table. The
// compaction policy itself (size-tiered vs leveled, trigger thresholds) is
// out of scope here (§9) — Holder only provides the atomic swap.
type Holder struct {
	mu  sync.RWMutex
	cur *SuperVersion
}

// NewHolder wraps an initial super-version, taking ownership of its
// caller-held reference.
func NewHolder(initial *SuperVersion) *Holder {
	return &Holder{cur: initial}
}

// Get returns the current super-version with a fresh reference held for
// the duration of one query plan; the caller must Release it when done.
func (h *Holder) Get() *SuperVersion {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur.Acquire()
}

// Swap atomically installs next as current, releasing the holder's own
// reference to the outgoing super-version. Readers already holding a
// reference to the old version keep it valid until they Release it.
func (h *Holder) Swap(next *SuperVersion) {
	h.mu.Lock()
	old := h.cur
	h.cur = next
	h.mu.Unlock()
	old.Release()
}
