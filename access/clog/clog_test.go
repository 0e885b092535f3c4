package clog_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuibadb/kuiba/access/clog"
	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/storage/fd"
)

func newTestCLOG(t *testing.T) *clog.CLOG {
	t.Helper()
	dir, err := os.MkdirTemp("", "kb-clog-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	fds := fd.New(8, os.O_RDWR|os.O_CREATE, 0644)
	t.Cleanup(fds.CloseAll)
	pending := pendingops.NewQueue()

	c, err := clog.Open(dir, 16, fds, pending)
	require.NoError(t, err)
	return c
}

func TestSetAndGetStatus(t *testing.T) {
	c := newTestCLOG(t)

	require.NoError(t, c.SetXidStatus(1, clog.StatusCommitted))
	st, err := c.XidStatus(nil, 1)
	require.NoError(t, err)
	require.Equal(t, clog.StatusCommitted, st)
}

func TestUnsetXidIsInProgress(t *testing.T) {
	c := newTestCLOG(t)

	st, err := c.XidStatus(nil, 42)
	require.NoError(t, err)
	require.Equal(t, clog.StatusInProgress, st)
}

// TestPageCrossing exercises xid=1 and xid=131072 landing on different
// SLRU pages without disturbing each other's status.
func TestPageCrossing(t *testing.T) {
	c := newTestCLOG(t)

	require.NoError(t, c.SetXidStatus(1, clog.StatusCommitted))
	require.NoError(t, c.SetXidStatus(131072, clog.StatusAborted))

	st1, err := c.XidStatus(nil, 1)
	require.NoError(t, err)
	require.Equal(t, clog.StatusCommitted, st1)

	st2, err := c.XidStatus(nil, 131072)
	require.NoError(t, err)
	require.Equal(t, clog.StatusAborted, st2)
}

func TestL1CacheServesTerminalStatusWithoutReread(t *testing.T) {
	c := newTestCLOG(t)
	l1 := clog.NewL1Cache(4)

	require.NoError(t, c.SetXidStatus(7, clog.StatusAborted))
	st, err := c.XidStatus(l1, 7)
	require.NoError(t, err)
	require.Equal(t, clog.StatusAborted, st)

	cached, ok := l1.Get(7)
	require.True(t, ok)
	require.Equal(t, clog.StatusAborted, cached)
}

func TestL1CacheDoesNotCacheInProgress(t *testing.T) {
	c := newTestCLOG(t)
	l1 := clog.NewL1Cache(4)

	_, err := c.XidStatus(l1, 99)
	require.NoError(t, err)
	_, ok := l1.Get(99)
	require.False(t, ok)
}

func TestL1CacheEvictsOldestOnCapacity(t *testing.T) {
	l1 := clog.NewL1Cache(2)
	l1.Put(1, clog.StatusCommitted)
	l1.Put(2, clog.StatusCommitted)
	l1.Put(3, clog.StatusAborted)

	require.Equal(t, 2, l1.Len())
	_, ok := l1.Get(1)
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = l1.Get(3)
	require.True(t, ok)
}

func TestFlush(t *testing.T) {
	c := newTestCLOG(t)
	require.NoError(t, c.SetXidStatus(5, clog.StatusCommitted))
	require.NoError(t, c.Flush())
}
