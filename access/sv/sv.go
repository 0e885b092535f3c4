// Package sv implements the per-table super-version (§4.10): a
// reference-counted snapshot of a table's L0/L1/L2 file lists, swapped
// atomically on compaction.
package sv

import (
	uberatomic "go.uber.org/atomic"

	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/ids"
)

// L0Entry is one mutable-append file in the L0 tier.
type L0Entry struct {
	FileID ids.FileId
	InUse  bool
	Len    int64
}

// ImmutableFile is one reference-counted L1/L2 file. Its refcount is
// shared across every super-version that includes it; it reaches zero
// only once no live super-version (and therefore no in-flight query plan)
// still references it.
type ImmutableFile struct {
	FileID  ids.FileId
	Len     int64
	db      ids.Oid
	table   ids.Oid
	pending *pendingops.Queue
	refs    uberatomic.Int64
}

// NewImmutableFile wraps an L1/L2 file with a zero refcount; it is ref'd by
// every SuperVersion constructed to include it.
func NewImmutableFile(db, table ids.Oid, fileID ids.FileId, length int64, pending *pendingops.Queue) *ImmutableFile {
	return &ImmutableFile{FileID: fileID, Len: length, db: db, table: table, pending: pending}
}

func (f *ImmutableFile) ref() { f.refs.Inc() }

// unref drops one reference; at zero it enqueues the file's unlink on the
// pending-ops queue rather than removing it synchronously (§4.10
// "destruction ... enqueues an unlink on the pending-ops queue").
func (f *ImmutableFile) unref() {
	if f.refs.Dec() == 0 {
		f.pending.EnqueueUnlink(f.db, f.table, f.FileID)
	}
}

// SuperVersion is an immutable, reference-counted view of a table's file
// set at one point in time.
type SuperVersion struct {
	L0 []L0Entry
	L1 []*ImmutableFile
	L2 []*ImmutableFile

	refs uberatomic.Int64
}

// New builds a SuperVersion holding one reference (the caller's), ref'ing
// every L1/L2 file it includes.
func New(l0 []L0Entry, l1, l2 []*ImmutableFile) *SuperVersion {
	sv := &SuperVersion{L0: l0, L1: l1, L2: l2}
	sv.refs.Store(1)
	for _, f := range l1 {
		f.ref()
	}
	for _, f := range l2 {
		f.ref()
	}
	return sv
}

// Acquire takes an additional reference, returning sv for convenience at
// the call site.
func (sv *SuperVersion) Acquire() *SuperVersion {
	sv.refs.Inc()
	return sv
}

// Release drops a reference; at zero, every contained L1/L2 file is
// unref'd, which may enqueue unlinks.
func (sv *SuperVersion) Release() {
	if sv.refs.Dec() == 0 {
		for _, f := range sv.L1 {
			f.unref()
		}
		for _, f := range sv.L2 {
			f.unref()
		}
	}
}

// RefCount reports the current reference count, for tests and diagnostics.
func (sv *SuperVersion) RefCount() int64 { return sv.refs.Load() }
