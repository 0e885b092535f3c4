package csmvcc

import (
	"io"
	"os"

	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/errs"
	"github.com/kuibadb/kuiba/ids"
	"github.com/kuibadb/kuiba/storage/fd"
	"github.com/kuibadb/kuiba/storage/sb"
	"github.com/kuibadb/kuiba/storage/vio"
)

// PageKey addresses one MVCC page: a column data file and a block number
// within it.
type PageKey struct {
	File  ids.FileId
	Block int64
}

type loader struct {
	blkRows int
	pathFor func(ids.FileId) string
	fds     *fd.Cache
	pending *pendingops.Queue
}

// Load reads one page, tolerating a not-yet-extended file: a zero-length
// read yields a freshly zeroed page with no CRC check (§4.8), since that is
// indistinguishable from "this block has never been written."
func (l *loader) Load(key PageKey) (*Page, error) {
	size := BlockSize(l.blkRows)
	buf := make([]byte, size)
	path := l.pathFor(key.File)
	offset := key.Block * int64(size)

	var n int
	err := l.fds.UseFile(path, func(f *os.File) error {
		var rerr error
		n, rerr = f.ReadAt(buf, offset)
		if rerr != nil && rerr != io.EOF {
			return rerr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return newPage(l.blkRows), nil
	}
	for i := n; i < size; i++ {
		buf[i] = 0
	}
	page := &Page{buf: buf, blkRows: l.blkRows}
	if !page.verifyCRC() {
		return nil, errs.ErrCRCMismatch
	}
	return page, nil
}

// Store recomputes the page's CRC and writes it out as a vectored pwrite
// (CRC field, then body) before enqueueing an fsync of the file (§4.8).
func (l *loader) Store(key PageKey, page *Page) error {
	page.stampCRC()
	size := BlockSize(l.blkRows)
	offset := key.Block * int64(size)
	path := l.pathFor(key.File)

	err := l.fds.UseFile(path, func(f *os.File) error {
		_, werr := vio.WriteAt(f, offset, [][]byte{page.buf[0:4], page.buf[4:]})
		return werr
	})
	if err != nil {
		return err
	}
	l.pending.EnqueueFsync(path)
	return nil
}

// Store is one relation's MVCC buffer.
type Store struct {
	blkRows int
	sb      *sb.SharedBuffer[PageKey, *Page]
}

// Open creates an MVCC buffer over a relation's column data files. pathFor
// maps a FileId to the absolute path of its .mvcc sidecar file; fds and
// pending are the owning worker's file-descriptor cache and checkpoint
// queue.
func Open(blkRows, capacity int, pathFor func(ids.FileId) string, fds *fd.Cache, pending *pendingops.Queue) *Store {
	l := &loader{blkRows: blkRows, pathFor: pathFor, fds: fds, pending: pending}
	return &Store{
		blkRows: blkRows,
		sb:      sb.New[PageKey, *Page](capacity, l, sb.NewFIFO[PageKey]()),
	}
}

// WritableLoad pins key, lets cb mutate the page, and marks it dirty.
func (s *Store) WritableLoad(key PageKey, cb func(page *Page)) error {
	g, err := s.sb.Read(key)
	if err != nil {
		return err
	}
	defer g.Release()
	g.Lock()
	cb(*g.Value())
	g.Unlock()
	g.MarkDirty()
	return nil
}

// ReadonlyLoad pins key and lets cb observe the page under a read lock.
func (s *Store) ReadonlyLoad(key PageKey, cb func(page *Page)) error {
	g, err := s.sb.Read(key)
	if err != nil {
		return err
	}
	defer g.Release()
	g.RLock()
	cb(*g.Value())
	g.RUnlock()
	return nil
}

// FlushAll flushes every dirty page; called at checkpoint time.
func (s *Store) FlushAll(force bool) error {
	return s.sb.FlushAll(force)
}
