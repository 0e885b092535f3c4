package ckpt

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/access/wal"
	"github.com/kuibadb/kuiba/errs"
	"github.com/kuibadb/kuiba/ids"
)

// Driver runs a synchronous checkpoint (§9 Open Question decision, see
// DESIGN.md): drain the pending-ops queue, fsync every pending path, put
// unlink ops back on the queue, log a Ckpt xlog record, then overwrite the
// control file. No background goroutine
// is involved; a caller invokes Do directly whenever it decides a
// checkpoint is due.
type Driver struct {
	dataDir string
	walw    *wal.WAL
	pending *pendingops.Queue
}

// NewDriver builds a checkpoint driver over the given data directory, WAL
// writer, and pending-ops queue.
func NewDriver(dataDir string, walw *wal.WAL, pending *pendingops.Queue) *Driver {
	return &Driver{dataDir: dataDir, walw: walw, pending: pending}
}

// Do applies every pending fsync, re-enqueues every pending unlink (Do
// does not unlink files itself), logs a Ckpt record carrying redo (the LSN
// recovery should replay from next time), and overwrites the control file
// in place. redo is the caller's chosen "safe to
// replay from" LSN - typically the oldest LSN any not-yet-durable buffer
// still depends on.
func (d *Driver) Do(redo ids.Lsn, curtli, prevtli ids.TimeLineID, nextXid ids.Xid, nextOid ids.Oid, nowNanos uint64) (ids.Lsn, error) {
	for _, op := range d.pending.Drain() {
		switch op.Kind {
		case pendingops.Fsync:
			if err := fsyncPath(op.Path); err != nil {
				return ids.InvalidLsn, err
			}
		case pendingops.Unlink:
			// The file's own path is owned by the caller's table layout;
			// Driver only knows how to fsync plain paths, so unlinks go
			// back on the queue for the caller's next Drain.
			d.pending.EnqueueUnlink(op.DB, op.Table, op.FileID)
		}
	}

	ckpt := Ckpt{
		Redo:      redo,
		Curtli:    curtli,
		Prevtli:   prevtli,
		NextXid:   nextXid,
		NextOid:   nextOid,
		TimeNanos: nowNanos,
	}
	body := ckpt.encodeBody()
	lsn, err := d.walw.InsertRecord(wal.RmgrXlog, wal.InfoCkpt, ids.InvalidXid, body)
	if err != nil {
		return ids.InvalidLsn, err
	}
	endLsn := lsn + ids.Lsn(wal.HeaderLen+len(body))
	if err := d.walw.Fsync(endLsn); err != nil {
		return ids.InvalidLsn, err
	}

	cf := &ControlFile{
		CtlVer:    ControlVersion,
		CatVer:    CatalogVersion,
		TimeNanos: nowNanos,
		CkptLsn:   lsn,
		CkptCpy:   ckpt,
	}
	if err := Write(d.dataDir, cf); err != nil {
		return ids.InvalidLsn, err
	}
	return lsn, nil
}

func fsyncPath(path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return errs.Wrap(errs.CodeIOFailure, err, "ckpt: opening path for deferred fsync")
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return errs.Wrap(errs.CodeIOFailure, err, "ckpt: fsyncing deferred path")
	}
	return nil
}

// encodeBody serializes a Ckpt on its own, matching the layout used inside
// the control file's packed Ckpt struct, for use as an xlog record body.
func (c *Ckpt) encodeBody() []byte {
	buf := make([]byte, ckptLen)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(c.Redo))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(c.Curtli))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(c.Prevtli))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(c.NextXid))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(c.NextOid))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:off+8], c.TimeNanos)
	return buf
}

// DecodeCkptBody parses a Ckpt xlog record body, the inverse of encodeBody.
func DecodeCkptBody(body []byte) (Ckpt, error) {
	if len(body) != ckptLen {
		return Ckpt{}, errs.Wrap(errs.CodeShortIO, errs.ErrShortRead, "ckpt: xlog Ckpt body has wrong length")
	}
	off := 0
	c := Ckpt{}
	c.Redo = ids.Lsn(binary.LittleEndian.Uint64(body[off : off+8]))
	off += 8
	c.Curtli = ids.TimeLineID(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4
	c.Prevtli = ids.TimeLineID(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4
	c.NextXid = ids.Xid(binary.LittleEndian.Uint64(body[off : off+8]))
	off += 8
	c.NextOid = ids.Oid(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4
	c.TimeNanos = binary.LittleEndian.Uint64(body[off : off+8])
	return c, nil
}
