package ckpt_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuibadb/kuiba/access/ckpt"
	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/access/wal"
	"github.com/kuibadb/kuiba/ids"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "kb-ckpt-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestBootstrapMatchesScenarioS1(t *testing.T) {
	cf := ckpt.Bootstrap(1)
	require.Equal(t, uint32(ckpt.ControlVersion), cf.CtlVer)
	require.Equal(t, uint32(ckpt.CatalogVersion), cf.CatVer)
	require.Equal(t, ids.Lsn(ckpt.CatalogVersion), cf.CkptLsn)
	require.Equal(t, ids.Lsn(ckpt.CatalogVersion), cf.CkptCpy.Redo)
	require.Equal(t, ids.Xid(2), cf.CkptCpy.NextXid)
	require.Equal(t, ids.Oid(65536), cf.CkptCpy.NextOid)
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := tempDir(t)
	cf := ckpt.Bootstrap(42)
	require.NoError(t, ckpt.Write(dir, cf))

	got, err := ckpt.Read(dir)
	require.NoError(t, err)
	require.Equal(t, cf.CtlVer, got.CtlVer)
	require.Equal(t, cf.CkptCpy, got.CkptCpy)
}

func TestReadRejectsCorruptedCrc(t *testing.T) {
	dir := tempDir(t)
	require.NoError(t, ckpt.Write(dir, ckpt.Bootstrap(1)))

	f, err := os.OpenFile(ckpt.Path(dir), os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = ckpt.Read(dir)
	require.Error(t, err)
}

func TestDriverDoLogsCkptAndAdvancesControlFile(t *testing.T) {
	dir := tempDir(t)
	walw, err := wal.Open(dir, ids.BootstrapTimeLineID, ids.Lsn(ckpt.CatalogVersion), 1<<20, 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { walw.Close() })

	pending := pendingops.NewQueue()
	drv := ckpt.NewDriver(dir, walw, pending)

	lsn, err := drv.Do(0, ids.BootstrapTimeLineID, ids.BootstrapTimeLineID, 10, 70000, 99)
	require.NoError(t, err)
	require.NotEqual(t, ids.InvalidLsn, lsn)

	got, err := ckpt.Read(dir)
	require.NoError(t, err)
	require.Equal(t, lsn, got.CkptLsn)
	require.Equal(t, ids.Xid(10), got.CkptCpy.NextXid)
	require.Equal(t, ids.Oid(70000), got.CkptCpy.NextOid)
}

func TestDriverDoFlushesPendingFsyncs(t *testing.T) {
	dir := tempDir(t)
	walw, err := wal.Open(dir, ids.BootstrapTimeLineID, 0, 1<<20, 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { walw.Close() })

	somefile := dir + "/touched"
	require.NoError(t, os.WriteFile(somefile, []byte("x"), 0644))

	pending := pendingops.NewQueue()
	pending.EnqueueFsync(somefile)
	require.Equal(t, 1, pending.Len())

	drv := ckpt.NewDriver(dir, walw, pending)
	_, err = drv.Do(0, ids.BootstrapTimeLineID, ids.BootstrapTimeLineID, 2, 65536, 1)
	require.NoError(t, err)
	require.Equal(t, 0, pending.Len())
}
