package wal

import (
	"sync"

	"github.com/kuibadb/kuiba/ids"
)

// progressTracker is a reorder-tolerant interval tracker (§4.5): completions
// may arrive out of order (two writers racing to finish overlapping writes),
// but the externally visible watermark only advances across a contiguous
// run starting at the current watermark.
type progressTracker struct {
	mu        sync.Mutex
	cond      *sync.Cond
	watermark ids.Lsn
	pending   map[ids.Lsn]ids.Lsn // start -> end, for completions received out of order
}

func newProgressTracker(start ids.Lsn) *progressTracker {
	t := &progressTracker{watermark: start, pending: make(map[ids.Lsn]ids.Lsn)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Done records that [start, end) is durable/written, advancing the
// watermark through any contiguous run it completes.
func (t *progressTracker) Done(start, end ids.Lsn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if start > t.watermark {
		if cur, ok := t.pending[start]; !ok || end > cur {
			t.pending[start] = end
		}
		return
	}
	if end <= t.watermark {
		return
	}
	t.watermark = end
	for advanced := true; advanced; {
		advanced = false
		for s, e := range t.pending {
			if s <= t.watermark {
				delete(t.pending, s)
				if e > t.watermark {
					t.watermark = e
				}
				advanced = true
			}
		}
	}
	t.cond.Broadcast()
}

// Get returns the current contiguous watermark.
func (t *progressTracker) Get() ids.Lsn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watermark
}

// WaitAtLeast blocks until the watermark reaches lsn.
func (t *progressTracker) WaitAtLeast(lsn ids.Lsn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.watermark < lsn {
		t.cond.Wait()
	}
}
