package xact

import (
	"math"
	"sync"

	"github.com/kuibadb/kuiba/errs"
	"github.com/kuibadb/kuiba/ids"
)

// GlobalState is the process-wide transaction bookkeeping singleton:
// running xids, the xmins multiset held by live snapshots, and the
// checkpoint-delay refcount (§4.11).
type GlobalState struct {
	mu            sync.RWMutex
	running       map[ids.Xid]struct{}
	lastCompleted ids.Xid
	nextXid       ids.Xid
	ceiling       ids.Xid

	xminsMu sync.Mutex
	xmins   map[ids.Xid]int

	ckptDelayMu  sync.Mutex
	ckptDelayNum int
}

// NewGlobalState seeds the running-xid state with the xid to hand out next
// (e.g. the recovered nextxid, or ids.BootstrapXid on a fresh initdb).
// stopLimit is subtracted from the wraparound ceiling, matching the
// spec's "u64::MAX - 333 - stop_limit" formula.
func NewGlobalState(nextXid ids.Xid, stopLimit uint64) *GlobalState {
	ceiling := ids.Xid(math.MaxUint64 - 333 - stopLimit)
	return &GlobalState{
		running: make(map[ids.Xid]struct{}),
		nextXid: nextXid,
		ceiling: ceiling,
		xmins:   make(map[ids.Xid]int),
	}
}

// StartXid allocates and returns the next xid, recording it as running.
func (g *GlobalState) StartXid() (ids.Xid, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nextXid > g.ceiling {
		return ids.InvalidXid, errs.Wrap(errs.CodeXidWraparound, errs.ErrXidWraparound, "xact: next xid past wraparound ceiling")
	}
	xid := g.nextXid
	g.nextXid++
	g.running[xid] = struct{}{}
	return xid, nil
}

// EndXid retires xid from the running set and, if xmin is non-zero,
// removes one instance of it from the xmins multiset (§4.11 end_xid).
func (g *GlobalState) EndXid(xid ids.Xid, xmin ids.Xid) {
	g.mu.Lock()
	delete(g.running, xid)
	if xid > g.lastCompleted {
		g.lastCompleted = xid
	}
	g.mu.Unlock()

	if xmin != ids.InvalidXid {
		g.xminsMu.Lock()
		if c := g.xmins[xmin]; c <= 1 {
			delete(g.xmins, xmin)
		} else {
			g.xmins[xmin] = c - 1
		}
		g.xminsMu.Unlock()
	}
}

// GetSnap takes a new snapshot of the running-xid set and registers its
// xmin in the xmins multiset so GlobalXmin can account for it.
func (g *GlobalState) GetSnap() *Snapshot {
	g.mu.RLock()
	xmax := g.lastCompleted
	xmin := xmax + 1
	found := false
	for xid := range g.running {
		if !found || xid < xmin {
			xmin = xid
			found = true
		}
	}
	xidSet := make(map[ids.Xid]struct{}, len(g.running))
	for xid := range g.running {
		if xid != xmin {
			xidSet[xid] = struct{}{}
		}
	}
	g.mu.RUnlock()

	// A second, distinct lock for the xmins multiset rather than a true
	// read-to-write lock upgrade: sync.RWMutex has no upgrade primitive,
	// so this is the closest equivalent to the spec's "briefly escalates."
	g.xminsMu.Lock()
	g.xmins[xmin]++
	g.xminsMu.Unlock()

	return &Snapshot{Xmin: xmin, Xmax: xmax, XidSet: xidSet}
}

// GlobalXmin returns the oldest xid any live session might still need to
// see, gating vacuum / column compaction (§4.11).
func (g *GlobalState) GlobalXmin() ids.Xid {
	g.mu.RLock()
	minRunning := g.lastCompleted + 1
	for xid := range g.running {
		if xid < minRunning {
			minRunning = xid
		}
	}
	lastCompletedPlus1 := g.lastCompleted + 1
	g.mu.RUnlock()

	g.xminsMu.Lock()
	minXmin := lastCompletedPlus1
	for xid := range g.xmins {
		if xid < minXmin {
			minXmin = xid
		}
	}
	g.xminsMu.Unlock()

	result := minRunning
	if minXmin < result {
		result = minXmin
	}
	if lastCompletedPlus1 < result {
		result = lastCompletedPlus1
	}
	return result
}

// StartDelayCkpt increments the checkpoint-delay refcount, used across a
// commit's critical section so a concurrent checkpoint cannot observe a
// torn WAL/CLOG update.
func (g *GlobalState) StartDelayCkpt() {
	g.ckptDelayMu.Lock()
	g.ckptDelayNum++
	g.ckptDelayMu.Unlock()
}

// StopDelayCkpt drops one checkpoint-delay reference.
func (g *GlobalState) StopDelayCkpt() {
	g.ckptDelayMu.Lock()
	g.ckptDelayNum--
	g.ckptDelayMu.Unlock()
}

// CheckpointDelayed reports whether any session is mid-commit-critical-
// section; a checkpointer should wait for this to reach zero.
func (g *GlobalState) CheckpointDelayed() bool {
	g.ckptDelayMu.Lock()
	defer g.ckptDelayMu.Unlock()
	return g.ckptDelayNum > 0
}
