package clog

import (
	"github.com/kuibadb/kuiba/ids"
)

// L1Cache is a worker-owned cache of terminal xid statuses, sized by the
// clog_l1_cache_size GUC. It is not safe for concurrent use: each worker
// holds its own instance, mirroring storage/fd's per-worker Cache.
type L1Cache struct {
	cap     int
	order   []ids.Xid
	entries map[ids.Xid]XidStatus
}

// NewL1Cache creates an L1 cache holding up to capacity terminal statuses.
func NewL1Cache(capacity int) *L1Cache {
	return &L1Cache{
		cap:     capacity,
		order:   make([]ids.Xid, 0, capacity),
		entries: make(map[ids.Xid]XidStatus, capacity),
	}
}

// Get reports a cached status for xid, if present.
func (c *L1Cache) Get(xid ids.Xid) (XidStatus, bool) {
	st, ok := c.entries[xid]
	return st, ok
}

// Put records a terminal status, evicting the oldest entry if at capacity.
func (c *L1Cache) Put(xid ids.Xid, status XidStatus) {
	if _, exists := c.entries[xid]; exists {
		c.entries[xid] = status
		return
	}
	if c.cap > 0 && len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[xid] = status
	c.order = append(c.order, xid)
}

// Resize changes capacity at runtime, evicting oldest entries on shrink.
func (c *L1Cache) Resize(capacity int) {
	c.cap = capacity
	for c.cap > 0 && len(c.order) > c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len reports the number of cached entries.
func (c *L1Cache) Len() int { return len(c.entries) }
