// Package wal implements the write-ahead log (§4.5): an in-memory staging
// buffer backed by a sequence of on-disk files, written with vectored I/O
// and fsynced on demand, with reorder-tolerant write/flush progress
// tracking and file rollover at a configured size.
package wal

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/kuibadb/kuiba/errs"
	"github.com/kuibadb/kuiba/ids"
)

// WAL is the process-lifetime singleton write-ahead log. mu guards staging
// metadata only (header stamping, LSN arithmetic, buffer bookkeeping);
// ioMu serializes the actual writev/fsync/rollover calls, so inserters
// never block on disk I/O while holding mu.
type WAL struct {
	dataDir string
	tli     ids.TimeLineID

	walBuffMaxSize uint64
	walFileMaxSize uint64

	mu           sync.Mutex
	chunks       [][]byte
	bufLsn       ids.Lsn
	bufSize      uint64
	prevRecStart ids.Lsn
	curFileStart ids.Lsn

	ioMu        sync.Mutex
	file        *os.File
	fileWritten int64

	writeProg *progressTracker
	flushProg *progressTracker
}

// Open creates (or truncates) the WAL directory's first segment at
// startLsn and returns a ready-to-use WAL.
func Open(dataDir string, tli ids.TimeLineID, startLsn ids.Lsn, walBuffMaxSize, walFileMaxSize uint64) (*WAL, error) {
	if err := os.MkdirAll(segmentDir(dataDir), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filePath(dataDir, tli, startLsn), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(errs.ErrFileOpen, "wal: open %s: %v", filePath(dataDir, tli, startLsn), err)
	}
	return &WAL{
		dataDir:        dataDir,
		tli:            tli,
		walBuffMaxSize: walBuffMaxSize,
		walFileMaxSize: walFileMaxSize,
		bufLsn:         startLsn,
		prevRecStart:   ids.InvalidLsn,
		curFileStart:   startLsn,
		file:           f,
		writeProg:      newProgressTracker(startLsn),
		flushProg:      newProgressTracker(startLsn),
	}, nil
}

func wrapIOErr(err error) error {
	return errors.Wrap(errs.New(errs.CodeIOFailure, err.Error()), "wal: io failure")
}

// InsertRecord appends one record to the staging buffer and returns its
// LSN, flushing to disk (and rolling over to a new file) as needed.
func (w *WAL) InsertRecord(rmgrID, info byte, xid ids.Xid, body []byte) (ids.Lsn, error) {
	w.mu.Lock()
	lsn := w.bufLsn + ids.Lsn(w.bufSize)
	rec := buildRecord(info, rmgrID, xid, w.prevRecStart, body)
	w.chunks = append(w.chunks, rec)
	w.bufSize += uint64(len(rec))
	w.prevRecStart = lsn
	endLsn := lsn + ids.Lsn(len(rec))
	needWrite := w.bufSize >= w.walBuffMaxSize
	needRollover := uint64(endLsn-w.curFileStart) > w.walFileMaxSize
	pendingEnd := w.bufLsn + ids.Lsn(w.bufSize)
	w.mu.Unlock()

	if needWrite || needRollover {
		if err := w.flushStaged(needRollover, pendingEnd); err != nil {
			return ids.InvalidLsn, err
		}
	}
	return lsn, nil
}

// TryInsertRecord skips logging when the page's LSN already predates the
// last checkpoint's redo point (§4.5).
func (w *WAL) TryInsertRecord(rmgrID, info byte, xid ids.Xid, body []byte, pageLsn, globalRedo ids.Lsn) (ids.Lsn, bool, error) {
	if pageLsn <= globalRedo {
		return ids.InvalidLsn, false, nil
	}
	lsn, err := w.InsertRecord(rmgrID, info, xid, body)
	if err != nil {
		return ids.InvalidLsn, false, err
	}
	return lsn, true, nil
}

// flushStaged writes the currently staged chunks to the current file and,
// if rollover is requested, closes it and opens the next one starting at
// newEnd.
func (w *WAL) flushStaged(rollover bool, newEnd ids.Lsn) error {
	w.mu.Lock()
	chunks := w.chunks
	start := w.bufLsn
	n := ids.Lsn(w.bufSize)
	w.chunks = nil
	w.bufSize = 0
	w.bufLsn = start + n
	curFileStart := w.curFileStart
	w.mu.Unlock()

	w.ioMu.Lock()
	defer w.ioMu.Unlock()

	if len(chunks) > 0 {
		offset := int64(start - curFileStart)
		written, err := writevAt(w.file, offset, chunks)
		if err != nil {
			return wrapIOErr(err)
		}
		w.fileWritten = offset + written
		w.writeProg.Done(start, start+ids.Lsn(written))
	}

	if rollover {
		return w.rolloverLocked(newEnd)
	}
	return nil
}

// rolloverLocked finalizes the current file and opens a new one starting
// at newFileStart. Called with ioMu held.
func (w *WAL) rolloverLocked(newFileStart ids.Lsn) error {
	oldFile := w.file
	oldStart := w.curFileStart
	oldWritten := w.fileWritten

	w.writeProg.WaitAtLeast(oldStart + ids.Lsn(oldWritten))
	if err := oldFile.Sync(); err != nil {
		return wrapIOErr(err)
	}
	w.flushProg.Done(oldStart, oldStart+ids.Lsn(oldWritten))
	if err := oldFile.Close(); err != nil {
		return wrapIOErr(err)
	}

	newFile, err := os.OpenFile(filePath(w.dataDir, w.tli, newFileStart), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrapf(errs.ErrFileOpen, "wal: open %s: %v", filePath(w.dataDir, w.tli, newFileStart), err)
	}

	w.mu.Lock()
	w.curFileStart = newFileStart
	w.mu.Unlock()
	w.file = newFile
	w.fileWritten = 0
	return nil
}

// Fsync ensures every byte up to lsn is durable, flushing the staging
// buffer first if needed.
func (w *WAL) Fsync(lsn ids.Lsn) error {
	if w.flushProg.Get() >= lsn {
		return nil
	}

	w.mu.Lock()
	pendingEnd := w.bufLsn + ids.Lsn(w.bufSize)
	w.mu.Unlock()

	if w.writeProg.Get() < lsn && pendingEnd > w.writeProg.Get() {
		if err := w.flushStaged(false, pendingEnd); err != nil {
			return err
		}
	}
	w.writeProg.WaitAtLeast(lsn)

	w.ioMu.Lock()
	file := w.file
	flushStart := w.curFileStart
	flushEnd := w.curFileStart + ids.Lsn(w.fileWritten)
	err := file.Sync()
	w.ioMu.Unlock()
	if err != nil {
		return wrapIOErr(err)
	}
	w.flushProg.Done(flushStart, flushEnd)
	return nil
}

// FlushWatermark reports the current durable watermark.
func (w *WAL) FlushWatermark() ids.Lsn { return w.flushProg.Get() }

// WriteWatermark reports the current written-but-maybe-not-synced watermark.
func (w *WAL) WriteWatermark() ids.Lsn { return w.writeProg.Get() }

// Close flushes and fsyncs the current file. A failure here is the
// "WritingWalFile drop" case (§4.5, §9): by this point the caller presumes
// the range durable, so failure is treated as fatal rather than returned.
func (w *WAL) Close() error {
	w.mu.Lock()
	pendingEnd := w.bufLsn + ids.Lsn(w.bufSize)
	w.mu.Unlock()
	if err := w.flushStaged(false, pendingEnd); err != nil {
		panic("wal: final flush failed on close: " + err.Error())
	}
	w.ioMu.Lock()
	file := w.file
	syncErr := file.Sync()
	w.ioMu.Unlock()
	if syncErr != nil {
		panic("wal: final fsync failed on close: " + syncErr.Error())
	}
	return file.Close()
}
