// Package lmgr implements the two-level (session/global) multi-mode lock
// manager (§4.7): an 8-mode PostgreSQL-style conflict matrix, a global
// per-tag wait/grant table, and per-session local hold counts so that a
// session's own conflicting holds never block itself.
package lmgr

import (
	"sync"

	"github.com/kuibadb/kuiba/ids"
)

// LockMode is one of PostgreSQL's 8 table-level lock modes, ordered from
// weakest to strongest conflict footprint.
type LockMode int

const (
	AccessShare LockMode = iota
	RowShare
	RowExclusive
	ShareUpdateExclusive
	Share
	ShareRowExclusive
	Exclusive
	AccessExclusive
	numModes
)

func (m LockMode) String() string {
	names := [numModes]string{
		"AccessShare", "RowShare", "RowExclusive", "ShareUpdateExclusive",
		"Share", "ShareRowExclusive", "Exclusive", "AccessExclusive",
	}
	if int(m) < 0 || int(m) >= int(numModes) {
		return "Unknown"
	}
	return names[m]
}

func bit(m LockMode) uint8 { return 1 << uint(m) }

// conflictTable mirrors PostgreSQL's LockConflicts[]: conflictTable[a]'s
// bit b is set iff mode a conflicts with mode b.
var conflictTable = [numModes]uint8{
	AccessShare:          bit(AccessExclusive),
	RowShare:             bit(Exclusive) | bit(AccessExclusive),
	RowExclusive:         bit(Share) | bit(ShareRowExclusive) | bit(Exclusive) | bit(AccessExclusive),
	ShareUpdateExclusive: bit(ShareUpdateExclusive) | bit(Share) | bit(ShareRowExclusive) | bit(Exclusive) | bit(AccessExclusive),
	Share:                bit(RowExclusive) | bit(ShareUpdateExclusive) | bit(ShareRowExclusive) | bit(Exclusive) | bit(AccessExclusive),
	ShareRowExclusive:    bit(RowExclusive) | bit(ShareUpdateExclusive) | bit(Share) | bit(ShareRowExclusive) | bit(Exclusive) | bit(AccessExclusive),
	Exclusive:            bit(RowShare) | bit(RowExclusive) | bit(ShareUpdateExclusive) | bit(Share) | bit(ShareRowExclusive) | bit(Exclusive) | bit(AccessExclusive),
	AccessExclusive:      bit(AccessShare) | bit(RowShare) | bit(RowExclusive) | bit(ShareUpdateExclusive) | bit(Share) | bit(ShareRowExclusive) | bit(Exclusive) | bit(AccessExclusive),
}

// Conflicts reports whether a and b are mutually conflicting modes.
func Conflicts(a, b LockMode) bool { return conflictTable[a]&bit(b) != 0 }

// TagKind distinguishes the two LockTag shapes (§4.7).
type TagKind byte

const (
	TagRelation TagKind = iota
	TagObject
)

// LockTag identifies a lockable object: either a relation (shared
// relations omit DB) or a catalog object (classoid, objectoid) within a
// database.
type LockTag struct {
	Kind      TagKind
	DB        ids.Oid
	RelOid    ids.Oid
	ClassOid  ids.Oid
	ObjectOid ids.Oid
}

// RelationTag builds a tag for a table lock. db == 0 for shared relations.
func RelationTag(db, reloid ids.Oid) LockTag {
	return LockTag{Kind: TagRelation, DB: db, RelOid: reloid}
}

// ObjectTag builds a tag for a catalog object lock.
func ObjectTag(db, classoid, objectoid ids.Oid) LockTag {
	return LockTag{Kind: TagObject, DB: db, ClassOid: classoid, ObjectOid: objectoid}
}

// Lock is the global per-tag state: request/grant counts per mode plus
// aggregate grant/wait bitmasks, guarded by its own mutex and condvar.
type Lock struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requested [numModes]int
	granted   [numModes]int
	waiting   [numModes]int
	grantMask uint8
	waitMask  uint8
}

func newLock() *Lock {
	l := &Lock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Lock) totalRequested() int {
	n := 0
	for _, c := range l.requested {
		n += c
	}
	return n
}

func (l *Lock) updateWaitMask() {
	l.waitMask = 0
	for m := LockMode(0); m < numModes; m++ {
		if l.waiting[m] > 0 {
			l.waitMask |= bit(m)
		}
	}
}

// GlobalState is the process-wide lock table, one per server.
type GlobalState struct {
	mu    sync.RWMutex
	locks map[LockTag]*Lock
}

// NewGlobalState creates an empty global lock table.
func NewGlobalState() *GlobalState {
	return &GlobalState{locks: make(map[LockTag]*Lock)}
}

func (g *GlobalState) getOrCreate(tag LockTag) *Lock {
	g.mu.RLock()
	if l, ok := g.locks[tag]; ok {
		g.mu.RUnlock()
		return l
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.locks[tag]; ok {
		return l
	}
	l := newLock()
	g.locks[tag] = l
	return l
}

// maybeRemove garbage-collects a tag's global entry once nothing requests
// it anymore.
func (g *GlobalState) maybeRemove(tag LockTag, l *Lock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l.mu.Lock()
	empty := l.totalRequested() == 0
	l.mu.Unlock()
	if empty {
		delete(g.locks, tag)
	}
}

// sessionEntry is one tag's local hold counts within a session.
type sessionEntry struct {
	global *Lock
	counts [numModes]int
}

func (e *sessionEntry) localHoldMask() uint8 {
	var mask uint8
	for m := LockMode(0); m < numModes; m++ {
		if e.counts[m] > 0 {
			mask |= bit(m)
		}
	}
	return mask
}

func (e *sessionEntry) empty() bool {
	for _, c := range e.counts {
		if c > 0 {
			return false
		}
	}
	return true
}

// SessionState is one session's local lock holds against the shared
// GlobalState.
type SessionState struct {
	global *GlobalState
	mu     sync.Mutex
	held   map[LockTag]*sessionEntry
}

// NewSessionState creates a session bound to global.
func NewSessionState(global *GlobalState) *SessionState {
	return &SessionState{global: global, held: make(map[LockTag]*sessionEntry)}
}

// Acquire blocks until mode is granted on tag, or returns immediately if
// already locally held (§4.7 acquisition algorithm).
func (s *SessionState) Acquire(tag LockTag, mode LockMode) {
	s.mu.Lock()
	entry, ok := s.held[tag]
	if !ok {
		entry = &sessionEntry{}
		s.held[tag] = entry
	}
	if entry.counts[mode] > 0 {
		entry.counts[mode]++
		s.mu.Unlock()
		return
	}
	localMask := entry.localHoldMask()
	s.mu.Unlock()

	g := s.global.getOrCreate(tag)

	g.mu.Lock()
	g.requested[mode]++
	waitingCounted := false
	for {
		blocked := conflictTable[mode]&(g.grantMask&^localMask) != 0 ||
			(!waitingCounted && conflictTable[mode]&g.waitMask != 0)
		if !blocked {
			if waitingCounted {
				g.waiting[mode]--
				g.updateWaitMask()
			}
			g.granted[mode]++
			g.grantMask |= bit(mode)
			break
		}
		if !waitingCounted {
			g.waiting[mode]++
			g.updateWaitMask()
			waitingCounted = true
		}
		g.cond.Wait()
	}
	g.mu.Unlock()

	s.mu.Lock()
	entry.global = g
	entry.counts[mode]++
	s.mu.Unlock()
}

// Release drops one hold of mode on tag, waking any waiter whose mode no
// longer conflicts.
func (s *SessionState) Release(tag LockTag, mode LockMode) {
	s.mu.Lock()
	entry, ok := s.held[tag]
	if !ok || entry.counts[mode] == 0 {
		s.mu.Unlock()
		return
	}
	entry.counts[mode]--
	g := entry.global
	if entry.empty() {
		delete(s.held, tag)
	}
	s.mu.Unlock()

	g.mu.Lock()
	g.requested[mode]--
	g.granted[mode]--
	if g.granted[mode] == 0 {
		g.grantMask &^= bit(mode)
	}
	shouldWake := conflictTable[mode]&g.waitMask != 0
	empty := g.totalRequested() == 0
	g.mu.Unlock()

	if shouldWake {
		g.cond.Broadcast()
	}
	if empty {
		s.global.maybeRemove(tag, g)
	}
}

// ReleaseAll drops every hold this session has, garbage-collecting empty
// global entries (§4.7 "lock_release_all").
func (s *SessionState) ReleaseAll() {
	s.mu.Lock()
	held := s.held
	s.held = make(map[LockTag]*sessionEntry)
	s.mu.Unlock()

	for tag, entry := range held {
		for mode := LockMode(0); mode < numModes; mode++ {
			for entry.counts[mode] > 0 {
				entry.counts[mode]--
				s.releaseOnGlobal(tag, entry.global, mode)
			}
		}
	}
}

func (s *SessionState) releaseOnGlobal(tag LockTag, g *Lock, mode LockMode) {
	g.mu.Lock()
	g.requested[mode]--
	g.granted[mode]--
	if g.granted[mode] == 0 {
		g.grantMask &^= bit(mode)
	}
	shouldWake := conflictTable[mode]&g.waitMask != 0
	empty := g.totalRequested() == 0
	g.mu.Unlock()

	if shouldWake {
		g.cond.Broadcast()
	}
	if empty {
		s.global.maybeRemove(tag, g)
	}
}
