package redo_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuibadb/kuiba/access/ckpt"
	"github.com/kuibadb/kuiba/access/clog"
	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/access/redo"
	"github.com/kuibadb/kuiba/access/wal"
	"github.com/kuibadb/kuiba/ids"
	"github.com/kuibadb/kuiba/storage/fd"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "kb-redo-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func newClog(t *testing.T, dir string) (*clog.CLOG, *clog.L1Cache) {
	t.Helper()
	fds := fd.New(8, os.O_RDWR|os.O_CREATE, 0644)
	t.Cleanup(fds.CloseAll)
	clogS, err := clog.Open(dir, 8, fds, pendingops.NewQueue())
	require.NoError(t, err)
	return clogS, clog.NewL1Cache(8)
}

func TestBootstrapThenRecoverRestoresScenarioS1Counters(t *testing.T) {
	dir := tempDir(t)
	cf := ckpt.Bootstrap(1)

	walw, err := wal.Open(dir, cf.CkptCpy.Curtli, cf.CkptCpy.Redo, 1<<20, 1<<20)
	require.NoError(t, err)
	require.NoError(t, walw.Close())
	require.NoError(t, ckpt.Write(dir, cf))

	clogS, l1 := newClog(t, dir)
	res, err := redo.Run(dir, cf, clogS, l1)
	require.NoError(t, err)
	require.Equal(t, ids.Xid(2), res.State.NextXid)
	require.Equal(t, ids.Oid(65536), res.State.NextOid)
	require.Equal(t, cf.CkptCpy.Redo, res.EndLsn)
}

func TestRecoveryReplaysCommitAndAbortIntoClog(t *testing.T) {
	dir := tempDir(t)
	cf := ckpt.Bootstrap(1)

	walw, err := wal.Open(dir, cf.CkptCpy.Curtli, cf.CkptCpy.Redo, 1<<20, 1<<20)
	require.NoError(t, err)

	committedXid := ids.Xid(5)
	abortedXid := ids.Xid(6)
	_, err = walw.InsertRecord(wal.RmgrXact, wal.InfoCommit, committedXid, []byte{0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	lastLsn, err := walw.InsertRecord(wal.RmgrXact, wal.InfoAbort, abortedXid, []byte{0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, walw.Fsync(lastLsn+1))
	require.NoError(t, walw.Close())
	require.NoError(t, ckpt.Write(dir, cf))

	clogS, l1 := newClog(t, dir)
	res, err := redo.Run(dir, cf, clogS, l1)
	require.NoError(t, err)
	require.Equal(t, ids.Xid(7), res.State.NextXid)

	status, err := clogS.XidStatus(l1, committedXid)
	require.NoError(t, err)
	require.Equal(t, clog.StatusCommitted, status)

	status, err = clogS.XidStatus(l1, abortedXid)
	require.NoError(t, err)
	require.Equal(t, clog.StatusAborted, status)
}

func TestRecoveryTracksNextOidFromXlogRecord(t *testing.T) {
	dir := tempDir(t)
	cf := ckpt.Bootstrap(1)

	walw, err := wal.Open(dir, cf.CkptCpy.Curtli, cf.CkptCpy.Redo, 1<<20, 1<<20)
	require.NoError(t, err)
	body := []byte{0, 0, 1, 0} // little-endian uint32(65536)
	lastLsn, err := walw.InsertRecord(wal.RmgrXlog, wal.InfoNextOid, ids.InvalidXid, body)
	require.NoError(t, err)
	require.NoError(t, walw.Fsync(lastLsn+1))
	require.NoError(t, walw.Close())
	require.NoError(t, ckpt.Write(dir, cf))

	clogS, l1 := newClog(t, dir)
	res, err := redo.Run(dir, cf, clogS, l1)
	require.NoError(t, err)
	require.Equal(t, ids.Oid(65536), res.State.NextOid)
}

func TestReopenWALStartsAtRecoveredEndLsn(t *testing.T) {
	dir := tempDir(t)
	cf := ckpt.Bootstrap(1)

	walw, err := wal.Open(dir, cf.CkptCpy.Curtli, cf.CkptCpy.Redo, 1<<20, 1<<20)
	require.NoError(t, err)
	require.NoError(t, walw.Close())
	require.NoError(t, ckpt.Write(dir, cf))

	clogS, l1 := newClog(t, dir)
	res, err := redo.Run(dir, cf, clogS, l1)
	require.NoError(t, err)

	reopened, err := redo.ReopenWAL(dir, res, 1<<20, 1<<20)
	require.NoError(t, err)
	defer reopened.Close()

	lsn, err := reopened.InsertRecord(wal.RmgrXact, wal.InfoCommit, 9, []byte{0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.GreaterOrEqual(t, lsn, res.EndLsn)
}
