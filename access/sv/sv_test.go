package sv_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/access/sv"
)

func TestReleaseToZeroUnlinksContainedFiles(t *testing.T) {
	pending := pendingops.NewQueue()
	f1 := sv.NewImmutableFile(1, 100, 10, 4096, pending)
	f2 := sv.NewImmutableFile(1, 100, 11, 4096, pending)

	version := sv.New(nil, []*sv.ImmutableFile{f1}, []*sv.ImmutableFile{f2})
	require.Equal(t, int64(1), version.RefCount())

	version.Acquire()
	require.Equal(t, int64(2), version.RefCount())

	version.Release()
	require.Equal(t, 0, pending.Len(), "a still-referenced file must not be unlinked")

	version.Release()
	require.Equal(t, 2, pending.Len(), "dropping the last reference should unlink both contained files")
}

func TestHolderSwapKeepsOldVersionAliveForExistingReaders(t *testing.T) {
	pending := pendingops.NewQueue()
	oldFile := sv.NewImmutableFile(1, 100, 20, 4096, pending)
	newFile := sv.NewImmutableFile(1, 100, 21, 4096, pending)

	oldVersion := sv.New(nil, []*sv.ImmutableFile{oldFile}, nil)
	holder := sv.NewHolder(oldVersion)

	reader := holder.Get() // simulates a query plan opening the table
	require.Equal(t, int64(2), oldVersion.RefCount())

	newVersion := sv.New(nil, []*sv.ImmutableFile{newFile}, nil)
	holder.Swap(newVersion)
	require.Equal(t, int64(1), oldVersion.RefCount(), "holder's own reference should be released on swap")
	require.Equal(t, 0, pending.Len(), "the in-flight reader's reference must keep the old file from being unlinked")

	reader.Release()
	require.Equal(t, int64(0), oldVersion.RefCount())
	require.Equal(t, 1, pending.Len())
}

func TestFileSharedAcrossTwoSuperVersionsUnlinksOnlyAfterBoth(t *testing.T) {
	pending := pendingops.NewQueue()
	shared := sv.NewImmutableFile(1, 100, 30, 4096, pending)

	v1 := sv.New(nil, nil, []*sv.ImmutableFile{shared})
	v2 := sv.New(nil, nil, []*sv.ImmutableFile{shared}) // e.g. v2 compacted L0 but kept this L2 file

	v1.Release()
	require.Equal(t, 0, pending.Len())
	v2.Release()
	require.Equal(t, 1, pending.Len())
}
