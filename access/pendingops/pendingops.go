// Package pendingops implements the checkpoint / pending file operations
// queue (§4.6): a thread-safe FIFO of deferred fsync/unlink requests,
// drained by a checkpointer once it has proven durability of the metadata
// that referred to them. The checkpointer itself is outside this core's
// scope (§9); this package only owns the queue.
package pendingops

import (
	"sync"

	"github.com/kuibadb/kuiba/ids"
)

// OpKind distinguishes a deferred fsync from a deferred unlink.
type OpKind int

const (
	Fsync OpKind = iota
	Unlink
)

// Op is one deferred operation. Fsync carries Path; Unlink carries the
// table file identity it should remove.
type Op struct {
	Kind    OpKind
	Path    string
	DB      ids.Oid
	Table   ids.Oid
	FileID  ids.FileId
}

// Queue is a thread-safe FIFO; Enqueue never blocks on I/O.
type Queue struct {
	mu   sync.Mutex
	ops  []Op
}

func NewQueue() *Queue { return &Queue{} }

// EnqueueFsync records a path needing an fsync before the next checkpoint
// completes.
func (q *Queue) EnqueueFsync(path string) {
	q.mu.Lock()
	q.ops = append(q.ops, Op{Kind: Fsync, Path: path})
	q.mu.Unlock()
}

// EnqueueUnlink records a table file to be removed once superseded.
func (q *Queue) EnqueueUnlink(db, table ids.Oid, fileID ids.FileId) {
	q.mu.Lock()
	q.ops = append(q.ops, Op{Kind: Unlink, DB: db, Table: table, FileID: fileID})
	q.mu.Unlock()
}

// Drain removes and returns every currently queued op, in FIFO order. The
// checkpointer calls this once it can guarantee the ops are safe to apply.
func (q *Queue) Drain() []Op {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.ops
	q.ops = nil
	return ops
}

// Len reports the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
