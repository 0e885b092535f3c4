package cs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuibadb/kuiba/access/cs"
	"github.com/kuibadb/kuiba/access/csmvcc"
	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/datums"
	"github.com/kuibadb/kuiba/ids"
	"github.com/kuibadb/kuiba/rel"
	"github.com/kuibadb/kuiba/storage/fd"
)

func testRelation(notNull bool) *rel.Relation {
	r := rel.New(100, "t", []rel.Attribute{
		{Number: 1, Name: "a", TypeOid: 20, TypeLen: 8, NotNull: notNull},
	})
	r.Options.DataBlkRows = 4
	r.Options.MvccBlkRows = 8
	return r
}

func intCol(values []int64, nullAt map[int]bool) *datums.Int64Array {
	arr := datums.NewInt64Array(len(values))
	for i, v := range values {
		arr.Values[i] = v
		if nullAt[i] {
			arr.Null.SetNull(i, true)
		}
	}
	return arr
}

func TestWriteRejectsNullInNotNullColumn(t *testing.T) {
	dir := t.TempDir()
	fds := fd.New(4, os.O_RDWR|os.O_CREATE, 0644)
	defer fds.CloseAll()

	w := cs.NewWriter(testRelation(true), cs.FileMeta{FileID: 1}, filepath.Join(dir, "t.l0"), fds)
	col := intCol([]int64{1, 2}, map[int]bool{1: true})
	err := w.Write([]datums.Datum{col}, 2)
	require.Error(t, err)
}

func TestWriteFlushesAtDataBlkRows(t *testing.T) {
	dir := t.TempDir()
	fds := fd.New(4, os.O_RDWR|os.O_CREATE, 0644)
	defer fds.CloseAll()

	w := cs.NewWriter(testRelation(false), cs.FileMeta{FileID: 1}, filepath.Join(dir, "t.l0"), fds)

	require.NoError(t, w.Write([]datums.Datum{intCol([]int64{1, 2}, nil)}, 2))
	require.Equal(t, int64(0), w.Meta().Len, "below data_blk_rows should stay buffered")

	require.NoError(t, w.Write([]datums.Datum{intCol([]int64{3, 4}, nil)}, 2))
	require.Greater(t, w.Meta().Len, int64(0), "reaching data_blk_rows should flush a block")
	require.Equal(t, int64(4), w.Meta().RowNum)
}

func TestSyncStampsXminAndAdvancesBoundary(t *testing.T) {
	dir := t.TempDir()
	fds := fd.New(4, os.O_RDWR|os.O_CREATE, 0644)
	defer fds.CloseAll()
	pending := pendingops.NewQueue()

	relation := testRelation(false)
	dataPath := filepath.Join(dir, "t.l0")
	mvccPath := filepath.Join(dir, "t.mvcc")
	mvccbuf := csmvcc.Open(relation.Options.MvccBlkRows, 8, func(ids.FileId) string { return mvccPath }, fds, pending)

	w := cs.NewWriter(relation, cs.FileMeta{FileID: 1}, dataPath, fds)
	require.NoError(t, w.Write([]datums.Datum{intCol([]int64{1, 2, 3}, nil)}, 3))
	require.NoError(t, w.Sync(42, mvccbuf, 1))

	err := mvccbuf.ReadonlyLoad(csmvcc.PageKey{File: 1, Block: 0}, func(p *csmvcc.Page) {
		require.Equal(t, ids.Xid(42), p.Xmin(0))
		require.Equal(t, ids.Xid(42), p.Xmin(2))
		require.Equal(t, ids.Xid(0), p.Xmin(3), "row beyond the synced range should be untouched")
	})
	require.NoError(t, err)

	// A second sync with no new rows should be a no-op over the boundary.
	require.NoError(t, w.Sync(99, mvccbuf, 1))
	err = mvccbuf.ReadonlyLoad(csmvcc.PageKey{File: 1, Block: 0}, func(p *csmvcc.Page) {
		require.Equal(t, ids.Xid(42), p.Xmin(0), "already-stamped rows must not be re-stamped")
	})
	require.NoError(t, err)
}
