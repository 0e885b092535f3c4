// Package ids defines the core's identifier types (§3): Oid, Xid, FileId,
// Lsn and TimeLineID. They are distinct types, not aliases, so that mixing
// an Oid and an Xid in an expression is a compile error.
package ids

// Oid is a 32-bit nonzero catalog identifier, never reused.
type Oid uint32

// InvalidOid is the zero value; no real object ever carries it.
const InvalidOid Oid = 0

// Xid is a 64-bit nonzero monotonic transaction identifier.
type Xid uint64

// InvalidXid is the zero value; no real transaction ever carries it.
const InvalidXid Xid = 0

// BootstrapXid is the first transaction id handed out after initdb.
const BootstrapXid Xid = 2

// FileId identifies a data file within a table.
type FileId uint32

// Lsn is a 64-bit nonzero monotonically increasing byte offset into the
// logical WAL stream.
type Lsn uint64

// InvalidLsn is the zero value; no real record ever starts there.
const InvalidLsn Lsn = 0

// TimeLineID is a 32-bit nonzero counter incremented across recovery
// restarts.
type TimeLineID uint32

// BootstrapTimeLineID is the timeline initdb writes into the control file.
const BootstrapTimeLineID TimeLineID = 1
