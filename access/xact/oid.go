package xact

import (
	"encoding/binary"
	"sync"

	"github.com/kuibadb/kuiba/access/wal"
	"github.com/kuibadb/kuiba/ids"
)

// OidGenerator is the process-global OID counter (§4.11 new_oid).
type OidGenerator struct {
	mu   sync.Mutex
	next ids.Oid
	walw *wal.WAL
}

// NewOidGenerator seeds the counter with the next OID to hand out (e.g.
// the recovered nextoid, or the initdb bootstrap value).
func NewOidGenerator(nextOid ids.Oid, walw *wal.WAL) *OidGenerator {
	return &OidGenerator{next: nextOid, walw: walw}
}

// NewOid atomically increments the counter, logs a NextOid xlog record
// carrying the new value, and returns the prior value. Wrapping past
// ids.Oid's max back to zero is fatal and unrecoverable (§4.11).
func (g *OidGenerator) NewOid() (ids.Oid, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prior := g.next
	next := prior + 1
	if next == ids.InvalidOid {
		panic("xact: oid counter wrapped to zero")
	}

	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, uint32(next))
	if _, err := g.walw.InsertRecord(wal.RmgrXlog, wal.InfoNextOid, ids.InvalidXid, body); err != nil {
		return ids.InvalidOid, err
	}

	g.next = next
	return prior, nil
}
