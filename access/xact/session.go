package xact

import (
	"encoding/binary"
	"time"

	"github.com/kuibadb/kuiba/access/clog"
	"github.com/kuibadb/kuiba/access/lmgr"
	"github.com/kuibadb/kuiba/access/wal"
	"github.com/kuibadb/kuiba/errs"
	"github.com/kuibadb/kuiba/ids"
)

// State is one position in the per-session transaction context state
// machine (§4.11).
type State int

const (
	Default State = iota
	Started
	Begin
	Inprogress
	End
	Abort
	AbortEnd
	AbortPending
)

// Session is one connection's transaction context: its current state, its
// lazily assigned xid, its snapshot, and the LSN of the last WAL record it
// inserted (last_rec_end).
type Session struct {
	global *GlobalState
	walw   *wal.WAL
	clogS  *clog.CLOG
	l1     *clog.L1Cache
	locks  *lmgr.SessionState

	state      State
	xid        ids.Xid
	snap       *Snapshot
	startTs    time.Time
	lastRecEnd ids.Lsn
	dead       bool
}

// NewSession creates a session bound to the process-global singletons. It
// starts in Default, with no xid or snapshot assigned.
func NewSession(global *GlobalState, walw *wal.WAL, clogS *clog.CLOG, l1 *clog.L1Cache, locks *lmgr.SessionState) *Session {
	return &Session{global: global, walw: walw, clogS: clogS, l1: l1, locks: locks, state: Default}
}

// State reports the session's current transaction context state.
func (s *Session) State() State { return s.state }

// Xid reports the session's currently assigned xid, or ids.InvalidXid if
// none has been assigned yet (§4.11: "assigned on demand").
func (s *Session) Xid() ids.Xid { return s.xid }

// Snapshot reports the session's active snapshot, or nil if none is held.
func (s *Session) Snapshot() *Snapshot { return s.snap }

// LastRecEnd reports the LSN just past the last WAL record this session
// inserted.
func (s *Session) LastRecEnd() ids.Lsn { return s.lastRecEnd }

func (s *Session) fail(err error) error {
	s.dead = true
	return err
}

// AssignXid lazily allocates this session's xid on first use (§4.11
// "Xids are assigned on demand by assign_xid, not at start_tran").
func (s *Session) AssignXid() (ids.Xid, error) {
	if s.xid != ids.InvalidXid {
		return s.xid, nil
	}
	xid, err := s.global.StartXid()
	if err != nil {
		return ids.InvalidXid, err
	}
	s.xid = xid
	return xid, nil
}

func (s *Session) beginTransaction() {
	s.startTs = time.Now()
	s.snap = s.global.GetSnap()
}

func (s *Session) snapXmin() ids.Xid {
	if s.snap == nil {
		return ids.InvalidXid
	}
	return s.snap.Xmin
}

// commitTran is the commit-critical-section sequence (§4.11 commit_tran):
// delay checkpoints across it, log+fsync the commit record before marking
// CLOG committed (the commit-durability order, §5), then stop delaying.
func (s *Session) commitTran() error {
	s.global.StartDelayCkpt()
	if s.xid != ids.InvalidXid {
		body := make([]byte, 8)
		binary.LittleEndian.PutUint64(body, uint64(time.Now().UnixNano()))

		lsn, err := s.walw.InsertRecord(wal.RmgrXact, wal.InfoCommit, s.xid, body)
		if err != nil {
			s.global.StopDelayCkpt()
			return err
		}
		endLsn := lsn + ids.Lsn(wal.HeaderLen+len(body))
		s.lastRecEnd = endLsn

		if err := s.walw.Fsync(endLsn); err != nil {
			s.global.StopDelayCkpt()
			return err
		}
		if err := s.clogS.SetXidStatus(s.xid, clog.StatusCommitted); err != nil {
			s.global.StopDelayCkpt()
			return err
		}
	}
	s.global.StopDelayCkpt()
	s.endXidAndRelease()
	return nil
}

// abortTran logs and persists the abort, but does not yet release the
// xid/locks (§4.11: the state table calls this "abort_tran", distinct from
// "abort_tran + cleanup").
func (s *Session) abortTran() error {
	if s.xid == ids.InvalidXid {
		return nil
	}
	if status, err := s.clogS.XidStatus(s.l1, s.xid); err == nil && status == clog.StatusCommitted {
		panic("xact: aborting an xid already marked committed in CLOG")
	}

	body := make([]byte, 8)
	binary.LittleEndian.PutUint64(body, uint64(time.Now().UnixNano()))
	if _, err := s.walw.InsertRecord(wal.RmgrXact, wal.InfoAbort, s.xid, body); err != nil {
		return err
	}
	if err := s.clogS.SetXidStatus(s.xid, clog.StatusAborted); err != nil {
		return err
	}
	s.lastRecEnd = ids.InvalidLsn
	return nil
}

// cleanupTran releases the xid and every lock this session holds, and
// resets its transaction context to a clean slate.
func (s *Session) cleanupTran() {
	s.endXidAndRelease()
}

func (s *Session) endXidAndRelease() {
	if s.xid != ids.InvalidXid {
		s.global.EndXid(s.xid, s.snapXmin())
	}
	s.locks.ReleaseAll()
	s.xid = ids.InvalidXid
	s.snap = nil
}

// StartTranCmd handles the start_cmd event (§4.11 state table).
func (s *Session) StartTranCmd() error {
	if s.dead {
		return errs.ErrIllegalStateTransition
	}
	if s.state == Default {
		s.beginTransaction()
		s.state = Started
	}
	return nil
}

// CommitTranCmd handles the commit_cmd event.
func (s *Session) CommitTranCmd() error {
	if s.dead {
		return errs.ErrIllegalStateTransition
	}
	switch s.state {
	case Default:
		return s.fail(errs.ErrIllegalStateTransition)
	case Started, End:
		if err := s.commitTran(); err != nil {
			return s.fail(err)
		}
		s.state = Default
	case Begin:
		s.state = Inprogress
	case Inprogress, Abort:
		// nop
	case AbortEnd:
		s.cleanupTran()
		s.state = Default
	case AbortPending:
		if err := s.abortTran(); err != nil {
			return s.fail(err)
		}
		s.cleanupTran()
		s.state = Default
	}
	return nil
}

// AbortCur handles the abort_cur event.
func (s *Session) AbortCur() error {
	if s.dead {
		return errs.ErrIllegalStateTransition
	}
	switch s.state {
	case Default:
		// nop: tranctx already Default
	case Started, Begin, End:
		if err := s.abortTran(); err != nil {
			return s.fail(err)
		}
		s.cleanupTran()
		s.state = Default
	case Inprogress:
		if err := s.abortTran(); err != nil {
			return s.fail(err)
		}
		s.state = Abort
	case Abort:
		// nop
	case AbortEnd:
		s.cleanupTran()
		s.state = Default
	case AbortPending:
		if err := s.abortTran(); err != nil {
			return s.fail(err)
		}
		s.cleanupTran()
		s.state = Default
	}
	return nil
}

// BeginTranBlock handles an explicit BEGIN, legal only from Started.
func (s *Session) BeginTranBlock() error {
	if s.dead {
		return errs.ErrIllegalStateTransition
	}
	if s.state != Started {
		return s.fail(errs.ErrIllegalStateTransition)
	}
	s.state = Begin
	return nil
}

// EndTranBlock handles an explicit COMMIT/END of a transaction block.
func (s *Session) EndTranBlock() error {
	if s.dead {
		return errs.ErrIllegalStateTransition
	}
	switch s.state {
	case Inprogress:
		s.state = End
	case Abort:
		s.state = AbortEnd
	case Started:
		// nop
	default:
		return s.fail(errs.ErrIllegalStateTransition)
	}
	return nil
}

// UserAbortTranBlock handles an explicit ROLLBACK request.
func (s *Session) UserAbortTranBlock() error {
	if s.dead {
		return errs.ErrIllegalStateTransition
	}
	switch s.state {
	case Inprogress, Started:
		s.state = AbortPending
	case Abort:
		s.state = AbortEnd
	default:
		return s.fail(errs.ErrIllegalStateTransition)
	}
	return nil
}

// Dead reports whether an illegal transition has marked this session
// unusable; the caller must terminate the session.
func (s *Session) Dead() bool { return s.dead }
