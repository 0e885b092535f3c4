package cs

import (
	"os"

	"github.com/kuibadb/kuiba/access/csmvcc"
	"github.com/kuibadb/kuiba/datums"
	"github.com/kuibadb/kuiba/errs"
	"github.com/kuibadb/kuiba/ids"
	"github.com/kuibadb/kuiba/rel"
	"github.com/kuibadb/kuiba/storage/fd"
)

// FileMeta is an L0 file's manifest entry: its identity, current length,
// and total row count (§4.9, §4.10).
type FileMeta struct {
	FileID ids.FileId
	Len    int64
	RowNum int64
}

type batchEntry struct {
	cols []datums.Datum
	rows int
}

// Writer is the exclusive owner of one L0 file for a relation.
type Writer struct {
	relation *rel.Relation
	path     string
	fds      *fd.Cache

	meta    FileMeta
	batch   []batchEntry
	batched int

	// nextsetxminrow tracks the boundary of xmin-stamped rows: a crash
	// after flush() but before sync() leaves rows in [nextsetxminrow,
	// meta.RowNum) with no xmin, which is the correct post-crash state
	// (§4.9 invariant).
	nextsetxminrow int64
}

// NewWriter opens a writer over an L0 file given its current manifest
// entry (as recovered from the super-version / catalog).
func NewWriter(relation *rel.Relation, meta FileMeta, path string, fds *fd.Cache) *Writer {
	return &Writer{
		relation:       relation,
		path:           path,
		fds:            fds,
		meta:           meta,
		nextsetxminrow: meta.RowNum,
	}
}

// Meta returns the writer's current manifest entry.
func (w *Writer) Meta() FileMeta { return w.meta }

// Write enforces NOT NULL per live attribute, stages cols (one per live
// attribute, in relation order) for the next flush, and flushes
// immediately once the staged row count reaches data_blk_rows.
func (w *Writer) Write(cols []datums.Datum, rows int) error {
	mask := w.relation.NotNullMask()
	if len(cols) != len(mask) {
		return errs.New(errs.CodeInternalError, "cs: column count does not match relation's live attributes")
	}
	for i, notNull := range mask {
		if notNull && cols[i].Nulls().AnyNull(rows) {
			return errs.New(errs.CodeNotNullViolation, "cs: null value in not-null column "+w.relation.LiveAttributes()[i].Name)
		}
	}
	w.batch = append(w.batch, batchEntry{cols: cols, rows: rows})
	w.batched += rows
	if w.batched >= w.relation.Options.DataBlkRows {
		return w.Flush()
	}
	return nil
}

// Flush serializes the staged batch into one data block, appends it at the
// file's current end, and advances the manifest (§4.9).
func (w *Writer) Flush() error {
	if w.batched == 0 {
		return nil
	}
	nCols := len(w.batch[0].cols)
	merged := make([]datums.Datum, nCols)
	for c := 0; c < nCols; c++ {
		parts := make([]datums.Datum, len(w.batch))
		for i, e := range w.batch {
			parts[i] = e.cols[c]
		}
		if len(parts) == 1 {
			merged[c] = parts[0]
			continue
		}
		m, err := datums.Concat(parts)
		if err != nil {
			return err
		}
		merged[c] = m
	}

	block, err := serializeBlock(merged, w.batched)
	if err != nil {
		return err
	}

	err = w.fds.UseFile(w.path, func(f *os.File) error {
		_, werr := f.WriteAt(block, w.meta.Len)
		return werr
	})
	if err != nil {
		return err
	}

	w.meta.Len += int64(len(block))
	w.meta.RowNum += int64(w.batched)
	w.batch = w.batch[:0]
	w.batched = 0
	return nil
}

// Sync flushes any pending rows, stamps xmin = xid on every row written
// since the last sync via the MVCC buffer, then durably fsyncs the data
// file (§4.9). mvccFile identifies the MVCC sidecar's FileId for this L0
// file.
func (w *Writer) Sync(xid ids.Xid, mvccbuf *csmvcc.Store, mvccFile ids.FileId) error {
	if err := w.Flush(); err != nil {
		return err
	}
	blkRows := w.relation.Options.MvccBlkRows
	for row := w.nextsetxminrow; row < w.meta.RowNum; row++ {
		block := row / int64(blkRows)
		rowInBlock := int(row % int64(blkRows))
		key := csmvcc.PageKey{File: mvccFile, Block: block}
		err := mvccbuf.WritableLoad(key, func(p *csmvcc.Page) {
			p.SetXmin(rowInBlock, xid)
		})
		if err != nil {
			return err
		}
	}
	w.nextsetxminrow = w.meta.RowNum

	return w.fds.UseFile(w.path, func(f *os.File) error {
		return f.Sync()
	})
}
