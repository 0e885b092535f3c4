package lmgr_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuibadb/kuiba/access/lmgr"
)

func TestConflictMatrixMatchesPostgres(t *testing.T) {
	// Spot-check a handful of well-known pairs rather than the full 64-entry
	// grid: AccessShare only conflicts with AccessExclusive; AccessExclusive
	// conflicts with everything including itself; RowExclusive and
	// RowShare do not conflict with each other.
	require.False(t, lmgr.Conflicts(lmgr.AccessShare, lmgr.AccessShare))
	require.True(t, lmgr.Conflicts(lmgr.AccessShare, lmgr.AccessExclusive))
	require.True(t, lmgr.Conflicts(lmgr.AccessExclusive, lmgr.AccessShare))
	require.True(t, lmgr.Conflicts(lmgr.AccessExclusive, lmgr.AccessExclusive))
	require.False(t, lmgr.Conflicts(lmgr.RowExclusive, lmgr.RowShare))
	require.True(t, lmgr.Conflicts(lmgr.Exclusive, lmgr.Share))
}

func TestSessionReacquiresOwnModeWithoutBlocking(t *testing.T) {
	g := lmgr.NewGlobalState()
	s := lmgr.NewSessionState(g)
	tag := lmgr.RelationTag(1, 100)

	s.Acquire(tag, lmgr.AccessExclusive)
	done := make(chan struct{})
	go func() {
		s.Acquire(tag, lmgr.AccessExclusive)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-acquiring a mode already locally held should not block")
	}
	s.ReleaseAll()
}

func TestConflictingSessionBlocksUntilRelease(t *testing.T) {
	g := lmgr.NewGlobalState()
	a := lmgr.NewSessionState(g)
	b := lmgr.NewSessionState(g)
	tag := lmgr.RelationTag(1, 200)

	a.Acquire(tag, lmgr.AccessExclusive)

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Acquire(tag, lmgr.AccessShare)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("conflicting acquire should have blocked")
	case <-time.After(100 * time.Millisecond):
	}

	a.ReleaseAll()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter should have been granted after release")
	}
	wg.Wait()
	b.ReleaseAll()
}

func TestNonConflictingModesGrantConcurrently(t *testing.T) {
	g := lmgr.NewGlobalState()
	a := lmgr.NewSessionState(g)
	b := lmgr.NewSessionState(g)
	tag := lmgr.RelationTag(1, 300)

	done := make(chan struct{}, 2)
	go func() { a.Acquire(tag, lmgr.AccessShare); done <- struct{}{} }()
	go func() { b.Acquire(tag, lmgr.RowShare); done <- struct{}{} }()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("non-conflicting modes should both grant promptly")
		}
	}
	a.ReleaseAll()
	b.ReleaseAll()
}
