// Package slru implements the segmented, paginated on-disk store (§4.3)
// used by CLOG: fixed-size 8 KiB pages, 32 per segment file, built on top
// of storage/sb for caching and storage/fd for descriptor reuse.
package slru

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/storage/fd"
	"github.com/kuibadb/kuiba/storage/sb"
)

const (
	PageSize       = 8192
	PagesPerSegment = 32
)

// Page is one fixed-size SLRU page.
type Page [PageSize]byte

// PageNo identifies a page across the whole SLRU directory (not relative to
// its segment); segment = PageNo / PagesPerSegment.
type PageNo int64

func segmentPath(dir string, pageno PageNo) string {
	seg := int64(pageno) / PagesPerSegment
	return filepath.Join(dir, fmt.Sprintf("%d", seg))
}

func segmentOffset(pageno PageNo) int64 {
	return (int64(pageno) % PagesPerSegment) * PageSize
}

type loader struct {
	dir     string
	fds     *fd.Cache
	pending *pendingops.Queue
}

// Load reads one page, tolerating a missing or short segment file: a
// missing segment is created empty by the O_CREATE cache and its absent
// bytes read back as a zeroed page (§4.3).
func (l *loader) Load(pageno PageNo) (Page, error) {
	var page Page
	path := segmentPath(l.dir, pageno)
	offset := segmentOffset(pageno)
	err := l.fds.UseFile(path, func(f *os.File) error {
		n, err := f.ReadAt(page[:], offset)
		if err != nil && err != io.EOF {
			return err
		}
		for i := n; i < PageSize; i++ {
			page[i] = 0
		}
		return nil
	})
	return page, err
}

// Store writes the page and enqueues an fsync of its segment file.
func (l *loader) Store(pageno PageNo, page Page) error {
	path := segmentPath(l.dir, pageno)
	offset := segmentOffset(pageno)
	err := l.fds.UseFile(path, func(f *os.File) error {
		_, err := f.WriteAt(page[:], offset)
		return err
	})
	if err != nil {
		return err
	}
	l.pending.EnqueueFsync(path)
	return nil
}

// Store is one SLRU directory (e.g. kb_xact for CLOG).
type Store struct {
	dir string
	sb  *sb.SharedBuffer[PageNo, Page]
}

// New opens an SLRU store rooted at dir, caching up to capacity pages.
// fds must be a cache whose open flag includes O_CREATE|O_RDWR so a missing
// segment is transparently created.
func New(dir string, capacity int, fds *fd.Cache, pending *pendingops.Queue) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	l := &loader{dir: dir, fds: fds, pending: pending}
	return &Store{dir: dir, sb: sb.New[PageNo, Page](capacity, l, sb.NewFIFO[PageNo]())}, nil
}

// WritableLoad pins pageno, lets cb mutate it, and marks it dirty.
func (s *Store) WritableLoad(pageno PageNo, cb func(page *Page)) error {
	g, err := s.sb.Read(pageno)
	if err != nil {
		return err
	}
	defer g.Release()
	g.Lock()
	cb(g.Value())
	g.Unlock()
	g.MarkDirty()
	return nil
}

// TryReadonlyLoad pins pageno and lets cb observe it under a read lock.
func (s *Store) TryReadonlyLoad(pageno PageNo, cb func(page *Page)) error {
	g, err := s.sb.Read(pageno)
	if err != nil {
		return err
	}
	defer g.Release()
	g.RLock()
	cb(g.Value())
	g.RUnlock()
	return nil
}

// FlushAll flushes every dirty page; used at checkpoint time.
func (s *Store) FlushAll(force bool) error {
	return s.sb.FlushAll(force)
}
