// Package fd implements the thread-local bounded file-descriptor cache
// (§4.1): a per-worker mapping from absolute path to an open *os.File,
// evicted on bound. Not shared across goroutines/threads by design — each
// worker owns its own Cache.
package fd

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/kuibadb/kuiba/errs"
	"github.com/kuibadb/kuiba/logger"
)

// entry is one cached, still-open file.
type entry struct {
	path string
	file *os.File
}

// Cache is a bounded, path-keyed cache of open files. It is NOT safe for
// concurrent use from multiple goroutines: one Cache per worker thread.
type Cache struct {
	mu       sync.Mutex // not locked by any method; entries/order rely on single-worker ownership
	cap      int
	entries  map[string]*entry
	order    []string // insertion order, oldest first; crude FIFO eviction
	openFlag int
	perm     os.FileMode
}

// New creates a cache bounded to capacity entries. openFlag/perm are passed
// to os.OpenFile for every miss (e.g. os.O_RDWR|os.O_CREATE, 0644).
func New(capacity int, openFlag int, perm os.FileMode) *Cache {
	return &Cache{
		cap:      capacity,
		entries:  make(map[string]*entry, capacity),
		order:    make([]string, 0, capacity),
		openFlag: openFlag,
		perm:     perm,
	}
}

// Resize changes the capacity at runtime; a shrink evicts oldest entries
// immediately. Only the owning worker calls this.
func (c *Cache) Resize(capacity int) {
	c.cap = capacity
	for len(c.order) > c.cap {
		c.evictOldest()
	}
}

// UseFile opens path if absent (recording it live in the cache), invokes f
// with the open file, and retains the entry afterward for reuse.
func (c *Cache) UseFile(path string, f func(*os.File) error) error {
	e, ok := c.entries[path]
	if !ok {
		file, err := os.OpenFile(path, c.openFlag, c.perm)
		if err != nil {
			return errors.Wrapf(errs.ErrFileOpen, "fd: open %s: %v", path, err)
		}
		e = &entry{path: path, file: file}
		c.insert(e)
	}
	return f(e.file)
}

func (c *Cache) insert(e *entry) {
	if len(c.order) >= c.cap && c.cap > 0 {
		c.evictOldest()
	}
	c.entries[e.path] = e
	c.order = append(c.order, e.path)
}

func (c *Cache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	if e, ok := c.entries[oldest]; ok {
		if err := e.file.Close(); err != nil {
			logger.Warnf("fd: close %s on eviction: %v", oldest, err)
		}
		delete(c.entries, oldest)
	}
}

// CloseAll closes every cached file; the Cache is empty and reusable after.
func (c *Cache) CloseAll() {
	for _, e := range c.entries {
		if err := e.file.Close(); err != nil {
			logger.Warnf("fd: close %s: %v", e.path, err)
		}
	}
	c.entries = make(map[string]*entry, c.cap)
	c.order = c.order[:0]
}

// Len reports the number of currently cached, open files.
func (c *Cache) Len() int { return len(c.order) }
