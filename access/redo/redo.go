// Package redo implements crash recovery (§4.12): replaying the WAL from
// the control file's checkpoint redo LSN, re-establishing CLOG state and
// the nextxid/nextoid counters, then handing back a freshly re-initialized
// WAL ready for normal operation.
package redo

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/kuibadb/kuiba/access/ckpt"
	"github.com/kuibadb/kuiba/access/clog"
	"github.com/kuibadb/kuiba/access/wal"
	"github.com/kuibadb/kuiba/errs"
	"github.com/kuibadb/kuiba/ids"
)

// State is the process state rebuilt by replay: the next xid/oid to hand
// out, advanced past every xid/oid actually observed in the WAL.
type State struct {
	NextXid ids.Xid
	NextOid ids.Oid
}

// Result is everything the caller needs to resume normal operation after
// recovery: the rebuilt counters and the tli/lsn recovery stopped at.
type Result struct {
	State    State
	EndTli   ids.TimeLineID
	EndLsn   ids.Lsn
	ReadLsn  ids.Lsn
	LastCkpt ckpt.Ckpt
}

// Run replays the WAL starting at cf.CkptCpy.Redo, re-applying every
// Xact::Commit/Abort record's outcome to CLOG and tracking the highest
// xid/oid seen. It requires the replay to reach at least cf's own
// checkpoint LSN (§4.12 step 4: "we lost records we were supposed to
// have" is a hard recovery failure, not a warning).
func Run(dataDir string, cf *ckpt.ControlFile, clogS *clog.CLOG, l1 *clog.L1Cache) (*Result, error) {
	reader, err := wal.NewReader(dataDir, cf.CkptCpy.Redo)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	state := State{NextXid: cf.CkptCpy.NextXid, NextOid: cf.CkptCpy.NextOid}
	lastCkpt := cf.CkptCpy
	endTli := cf.CkptCpy.Curtli
	var readLsn ids.Lsn
	var endLsn ids.Lsn

	for {
		hdr, body, startLsn, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			// Any other read failure (short record, crc mismatch) means
			// the tail of the log is torn; replay stops at the last
			// successfully verified record, matching §4.12's "on read
			// failure, stop."
			break
		}
		readLsn = startLsn
		endLsn = startLsn + ids.Lsn(hdr.TotLen)

		if hdr.Xid != ids.InvalidXid && hdr.Xid >= state.NextXid {
			state.NextXid = hdr.Xid + 1
		}

		switch hdr.RmgrID {
		case wal.RmgrXlog:
			switch hdr.Info {
			case wal.InfoNextOid:
				if len(body) >= 4 {
					state.NextOid = ids.Oid(binary.LittleEndian.Uint32(body))
				}
			case wal.InfoCkpt:
				c, err := ckpt.DecodeCkptBody(body)
				if err == nil {
					lastCkpt = c
				}
			}
		case wal.RmgrXact:
			switch hdr.Info {
			case wal.InfoCommit:
				if err := clogS.SetXidStatus(hdr.Xid, clog.StatusCommitted); err != nil {
					return nil, err
				}
				l1.Put(hdr.Xid, clog.StatusCommitted)
			case wal.InfoAbort:
				if err := clogS.SetXidStatus(hdr.Xid, clog.StatusAborted); err != nil {
					return nil, err
				}
				l1.Put(hdr.Xid, clog.StatusAborted)
			}
		}
	}

	if endLsn == 0 {
		endLsn = cf.CkptCpy.Redo
		readLsn = cf.CkptCpy.Redo
	}
	if endLsn < cf.CkptLsn {
		return nil, errs.New(errs.CodeInternalError, "redo: replay stopped before the checkpoint it was supposed to reach")
	}

	if err := recycleFilesBefore(dataDir, readLsn); err != nil {
		return nil, err
	}

	return &Result{
		State:    state,
		EndTli:   endTli,
		EndLsn:   endLsn,
		ReadLsn:  readLsn,
		LastCkpt: lastCkpt,
	}, nil
}

// ReopenWAL re-initializes the WAL subsystem from a recovery result,
// starting a fresh segment at EndLsn (§4.12 step 6).
func ReopenWAL(dataDir string, res *Result, walBuffMaxSize, walFileMaxSize uint64) (*wal.WAL, error) {
	return wal.Open(dataDir, res.EndTli, res.EndLsn, walBuffMaxSize, walFileMaxSize)
}

// recycleFilesBefore removes WAL segments that end at or before readLsn
// (the next segment starts at or before it): every record they held has already been replayed, so nothing
// will ever read them again (§4.12 step 5).
func recycleFilesBefore(dataDir string, readLsn ids.Lsn) error {
	files, err := wal.ListFiles(dataDir)
	if err != nil {
		return err
	}
	for i, f := range files {
		isLast := i == len(files)-1
		if isLast || files[i+1].StartLsn > readLsn {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			return errs.Wrap(errs.CodeIOFailure, err, "redo: recycling consumed wal segment")
		}
	}
	return nil
}
