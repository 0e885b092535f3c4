package xact_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuibadb/kuiba/access/clog"
	"github.com/kuibadb/kuiba/access/lmgr"
	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/access/wal"
	"github.com/kuibadb/kuiba/access/xact"
	"github.com/kuibadb/kuiba/ids"
	"github.com/kuibadb/kuiba/storage/fd"
)

type fixture struct {
	walw *wal.WAL
	clog *clog.CLOG
	l1   *clog.L1Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir, err := os.MkdirTemp("", "kb-xact-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	walw, err := wal.Open(dir, 1, 0, 1<<20, 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { walw.Close() })

	fds := fd.New(8, os.O_RDWR|os.O_CREATE, 0644)
	t.Cleanup(fds.CloseAll)
	pending := pendingops.NewQueue()
	clogS, err := clog.Open(dir, 8, fds, pending)
	require.NoError(t, err)

	return &fixture{walw: walw, clog: clogS, l1: clog.NewL1Cache(8)}
}

func (f *fixture) newSession(global *xact.GlobalState) *xact.Session {
	return xact.NewSession(global, f.walw, f.clog, f.l1, lmgr.NewSessionState(lmgr.NewGlobalState()))
}

func TestSnapshotIsRunningSemantics(t *testing.T) {
	g := xact.NewGlobalState(ids.BootstrapXid, 1000)

	xid2, err := g.StartXid() // 2
	require.NoError(t, err)
	_, err = g.StartXid() // 3
	require.NoError(t, err)
	_, err = g.StartXid() // 4, stays running throughout this test
	require.NoError(t, err)

	g.EndXid(xid2, ids.InvalidXid)
	xid3 := xid2 + 1
	g.EndXid(xid3, ids.InvalidXid) // last_completed now 3; only xid4 still running

	snap := g.GetSnap()
	require.True(t, snap.IsRunning(snap.Xmin), "the snapshot's own xmin must read as running")
	require.False(t, snap.IsRunning(xid2), "a committed xid strictly below xmax, not in xidset, must read as not running")

	// xid4 keeps running; start two more, then complete the newest one out
	// of order, so a later snapshot's xmax moves past xid4 and its sibling
	// while both are still genuinely running. This exercises the xidset
	// membership branch on its own, independent of the xid>=xmax clause.
	xid5, err := g.StartXid()
	require.NoError(t, err)
	xid6, err := g.StartXid()
	require.NoError(t, err)
	g.EndXid(xid6, ids.InvalidXid)

	snap2 := g.GetSnap()
	require.Less(t, xid5, snap2.Xmax)
	require.NotEqual(t, xid5, snap2.Xmin)
	require.True(t, snap2.IsRunning(xid5), "a running xid below xmax, present in xidset, must read as running")
}

func TestCommitFlowLogsFsyncsAndMarksClogCommitted(t *testing.T) {
	f := newFixture(t)
	g := xact.NewGlobalState(ids.BootstrapXid, 1000)
	s := f.newSession(g)

	require.NoError(t, s.StartTranCmd())
	xid, err := s.AssignXid()
	require.NoError(t, err)

	require.NoError(t, s.CommitTranCmd())
	require.Equal(t, xact.Default, s.State())
	require.Equal(t, ids.InvalidXid, s.Xid())

	status, err := f.clog.XidStatus(f.l1, xid)
	require.NoError(t, err)
	require.Equal(t, clog.StatusCommitted, status)
}

func TestAbortFlowMarksClogAbortedWithoutReleasingUntilCleanup(t *testing.T) {
	f := newFixture(t)
	g := xact.NewGlobalState(ids.BootstrapXid, 1000)
	s := f.newSession(g)

	require.NoError(t, s.StartTranCmd())
	xid, err := s.AssignXid()
	require.NoError(t, err)

	require.NoError(t, s.EndTranBlock()) // no-op from Started
	require.NoError(t, s.BeginTranBlock())
	require.NoError(t, s.CommitTranCmd()) // Begin -> Inprogress, no commit yet
	require.Equal(t, xact.Inprogress, s.State())

	require.NoError(t, s.AbortCur()) // Inprogress -> Abort (abort_tran only)
	require.Equal(t, xact.Abort, s.State())
	status, err := f.clog.XidStatus(f.l1, xid)
	require.NoError(t, err)
	require.Equal(t, clog.StatusAborted, status)

	require.NoError(t, s.EndTranBlock()) // Abort -> AbortEnd
	require.Equal(t, xact.AbortEnd, s.State())
	require.NoError(t, s.CommitTranCmd()) // AbortEnd -> Default via cleanup_tran
	require.Equal(t, xact.Default, s.State())
	require.Equal(t, ids.InvalidXid, s.Xid())
}

func TestCommitFromDefaultIsFatal(t *testing.T) {
	f := newFixture(t)
	g := xact.NewGlobalState(ids.BootstrapXid, 1000)
	s := f.newSession(g)

	err := s.CommitTranCmd()
	require.Error(t, err)
	require.True(t, s.Dead())
}

func TestOidGeneratorIncrementsAndReturnsPriorValue(t *testing.T) {
	f := newFixture(t)
	gen := xact.NewOidGenerator(65536, f.walw)

	first, err := gen.NewOid()
	require.NoError(t, err)
	require.Equal(t, ids.Oid(65536), first)

	second, err := gen.NewOid()
	require.NoError(t, err)
	require.Equal(t, ids.Oid(65537), second)
}

func TestXidWraparoundFailsPastCeiling(t *testing.T) {
	g := xact.NewGlobalState(ids.Xid(^uint64(0)-400), 1000)
	_, err := g.StartXid()
	require.Error(t, err)
}
