package csmvcc_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuibadb/kuiba/access/clog"
	"github.com/kuibadb/kuiba/access/csmvcc"
	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/access/xact"
	"github.com/kuibadb/kuiba/ids"
	"github.com/kuibadb/kuiba/storage/fd"
)

func newVisibilityFixtures(t *testing.T) (*csmvcc.Store, *clog.CLOG, *clog.L1Cache) {
	t.Helper()
	dir, err := os.MkdirTemp("", "kb-csmvcc-vis-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	fds := fd.New(8, os.O_RDWR|os.O_CREATE, 0644)
	t.Cleanup(fds.CloseAll)
	pending := pendingops.NewQueue()
	pathFor := func(ids.FileId) string { return filepath.Join(dir, "rel.mvcc") }
	store := csmvcc.Open(1000, 8, pathFor, fds, pending)

	clogS, err := clog.Open(dir, 8, fds, pending)
	require.NoError(t, err)
	return store, clogS, clog.NewL1Cache(8)
}

// TestThousandRowBlockVisibilityFollowsClogOutcome covers writing a 1000-row
// block under xid=10 and checking every row's visibility under a snapshot
// taken at xid=11 (nothing running), once for each terminal CLOG outcome.
func TestThousandRowBlockVisibilityFollowsClogOutcome(t *testing.T) {
	const blkRows = 1000
	const writerXid = ids.Xid(10)
	key := csmvcc.PageKey{File: 1, Block: 0}

	snap := &xact.Snapshot{Xmin: 11, Xmax: 11, XidSet: map[ids.Xid]struct{}{}}

	t.Run("committed", func(t *testing.T) {
		store, clogS, l1 := newVisibilityFixtures(t)
		require.NoError(t, store.WritableLoad(key, func(p *csmvcc.Page) {
			for row := 0; row < blkRows; row++ {
				p.SetXmin(row, writerXid)
			}
		}))
		require.NoError(t, clogS.SetXidStatus(writerXid, clog.StatusCommitted))

		visible := 0
		require.NoError(t, store.ReadonlyLoad(key, func(p *csmvcc.Page) {
			for row := 0; row < blkRows; row++ {
				ok, err := csmvcc.RowVisible(p, row, clogS, l1, snap)
				require.NoError(t, err)
				if ok {
					visible++
				}
			}
		}))
		require.Equal(t, blkRows, visible)
	})

	t.Run("aborted", func(t *testing.T) {
		store, clogS, l1 := newVisibilityFixtures(t)
		require.NoError(t, store.WritableLoad(key, func(p *csmvcc.Page) {
			for row := 0; row < blkRows; row++ {
				p.SetXmin(row, writerXid)
			}
		}))
		require.NoError(t, clogS.SetXidStatus(writerXid, clog.StatusAborted))

		visible := 0
		require.NoError(t, store.ReadonlyLoad(key, func(p *csmvcc.Page) {
			for row := 0; row < blkRows; row++ {
				ok, err := csmvcc.RowVisible(p, row, clogS, l1, snap)
				require.NoError(t, err)
				if ok {
					visible++
				}
			}
		}))
		require.Equal(t, 0, visible)
	})
}

func TestRowVisibleHidesRowDeletedByCommittedXmax(t *testing.T) {
	store, clogS, l1 := newVisibilityFixtures(t)
	key := csmvcc.PageKey{File: 1, Block: 0}

	require.NoError(t, store.WritableLoad(key, func(p *csmvcc.Page) {
		p.SetXmin(0, 10)
		p.SetXmax(0, 11)
	}))
	require.NoError(t, clogS.SetXidStatus(10, clog.StatusCommitted))
	require.NoError(t, clogS.SetXidStatus(11, clog.StatusCommitted))

	snap := &xact.Snapshot{Xmin: 12, Xmax: 12, XidSet: map[ids.Xid]struct{}{}}
	err := store.ReadonlyLoad(key, func(p *csmvcc.Page) {
		ok, verr := csmvcc.RowVisible(p, 0, clogS, l1, snap)
		require.NoError(t, verr)
		require.False(t, ok)
	})
	require.NoError(t, err)
}
