package csmvcc

import (
	"github.com/kuibadb/kuiba/access/clog"
	"github.com/kuibadb/kuiba/access/xact"
	"github.com/kuibadb/kuiba/ids"
)

// xidCommitted resolves row's xmin/xmax terminal status, preferring the
// page's own hint bits over a CLOG lookup (§4.4: hint bits exist so a
// settled row never pays for a CLOG lookup twice). A lookup that resolves
// to a terminal status is stamped back into the page's hint bits.
func xidCommitted(p *Page, row int, isXmin bool, xid ids.Xid, clogS *clog.CLOG, l1 *clog.L1Cache) (clog.XidStatus, error) {
	hintBits := p.XminHintBits
	setHintBits := p.SetXminHintBits
	if !isXmin {
		hintBits = p.XmaxHintBits
		setHintBits = p.SetXmaxHintBits
	}

	switch hintBits(row) {
	case HintCommitted:
		return clog.StatusCommitted, nil
	case HintAborted:
		return clog.StatusAborted, nil
	}

	status, err := clogS.XidStatus(l1, xid)
	if err != nil {
		return 0, err
	}
	switch status {
	case clog.StatusCommitted:
		setHintBits(row, HintCommitted)
	case clog.StatusAborted:
		setHintBits(row, HintAborted)
	}
	return status, nil
}

// RowVisible implements the §4.8 visibility predicate for one row of a
// loaded MVCC page: xmin must be committed and not running in snap, and
// xmax must be either absent, aborted, still running in snap, or above
// snap's high-water mark. Callers hold at least a read lock on the page
// for the duration of the call.
func RowVisible(p *Page, row int, clogS *clog.CLOG, l1 *clog.L1Cache, snap *xact.Snapshot) (bool, error) {
	xmin := p.Xmin(row)
	if xmin == ids.InvalidXid {
		return false, nil
	}

	xminStatus, err := xidCommitted(p, row, true, xmin, clogS, l1)
	if err != nil {
		return false, err
	}
	if xminStatus != clog.StatusCommitted {
		return false, nil
	}
	if snap.IsRunning(xmin) {
		return false, nil
	}

	xmax := p.Xmax(row)
	if xmax == ids.InvalidXid {
		return true, nil
	}
	if snap.IsRunning(xmax) {
		return true, nil
	}
	if xmax > snap.Xmax {
		return true, nil
	}

	xmaxStatus, err := xidCommitted(p, row, false, xmax, clogS, l1)
	if err != nil {
		return false, err
	}
	return xmaxStatus != clog.StatusCommitted, nil
}
