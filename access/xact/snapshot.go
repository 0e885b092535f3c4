// Package xact implements the transaction manager (§4.11): global running-
// xid/xmin bookkeeping, snapshot construction, the per-session transaction
// context state machine, and the commit/abort sequences that tie WAL,
// CLOG, and the lock manager together.
package xact

import "github.com/kuibadb/kuiba/ids"

// Snapshot is a reader's view of which xids are still in flight, taken
// once at transaction start (Read Committed: one snapshot per transaction
// suffices for this core).
type Snapshot struct {
	Xmin   ids.Xid
	Xmax   ids.Xid
	XidSet map[ids.Xid]struct{}
}

// IsRunning reports whether xid should be treated as not-yet-visible from
// this snapshot's point of view (§4.11: "true for xid ≥ xmax[,] if xid
// equals the lower-bound xmin or xid is in the xidset"). Every other xid
// below xmax is stable: either committed-and-visible or aborted.
func (s *Snapshot) IsRunning(xid ids.Xid) bool {
	if xid >= s.Xmax {
		return true
	}
	if xid == s.Xmin {
		return true
	}
	_, running := s.XidSet[xid]
	return running
}
