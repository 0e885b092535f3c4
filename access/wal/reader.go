package wal

import (
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/kuibadb/kuiba/ids"
)

// fileNamePattern matches "TTTTTTTTLLLLLLLLLLLLLLLL.wal" (§6).
var fileNamePattern = regexp.MustCompile(`^([0-9A-Fa-f]{8})([0-9A-Fa-f]{16})\.wal$`)

// FileInfo describes one on-disk WAL segment.
type FileInfo struct {
	Tli      ids.TimeLineID
	StartLsn ids.Lsn
	Path     string
}

// ListFiles enumerates kb_wal segments sorted by start LSN. This is the
// local-filesystem enumerator the redo path needs (§9 Open Question:
// "LocalWalStorage ... must yield WAL files sorted by start LSN").
func ListFiles(dataDir string) ([]FileInfo, error) {
	dir := segmentDir(dataDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []FileInfo
	for _, e := range entries {
		m := fileNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		tli, err := strconv.ParseUint(m[1], 16, 32)
		if err != nil {
			continue
		}
		startLsn, err := strconv.ParseUint(m[2], 16, 64)
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Tli:      ids.TimeLineID(tli),
			StartLsn: ids.Lsn(startLsn),
			Path:     dir + "/" + e.Name(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].StartLsn < files[j].StartLsn })
	return files, nil
}

// Reader replays WAL records sequentially starting at a given LSN, crossing
// file boundaries transparently.
type Reader struct {
	files []FileInfo
	idx   int
	f     *os.File
	pos   ids.Lsn // LSN of the next byte to read from f
}

// NewReader opens a Reader positioned at startLsn.
func NewReader(dataDir string, startLsn ids.Lsn) (*Reader, error) {
	files, err := ListFiles(dataDir)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, fi := range files {
		if fi.StartLsn <= startLsn {
			idx = i
		} else {
			break
		}
	}
	if idx < 0 {
		return &Reader{files: files, idx: len(files)}, nil
	}
	f, err := os.Open(files[idx].Path)
	if err != nil {
		return nil, err
	}
	offset := int64(startLsn - files[idx].StartLsn)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{files: files, idx: idx, f: f, pos: startLsn}, nil
}

// Close releases the currently open segment, if any.
func (r *Reader) Close() error {
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}

// Next reads the next record, returning its header, body, and starting
// LSN. Returns io.EOF when no more records are available in any segment.
func (r *Reader) Next() (Header, []byte, ids.Lsn, error) {
	if r.f == nil {
		return Header{}, nil, ids.InvalidLsn, io.EOF
	}
	hdrBuf := make([]byte, HeaderLen)
	n, err := io.ReadFull(r.f, hdrBuf)
	if err != nil || n < HeaderLen {
		if advErr := r.advanceFile(); advErr != nil {
			return Header{}, nil, ids.InvalidLsn, advErr
		}
		if r.f == nil {
			return Header{}, nil, ids.InvalidLsn, io.EOF
		}
		return r.Next()
	}

	hdr, err := parseHeader(hdrBuf)
	if err != nil {
		return Header{}, nil, ids.InvalidLsn, err
	}
	startLsn := r.pos
	bodyLen := int(hdr.TotLen) - HeaderLen
	if bodyLen < 0 {
		return Header{}, nil, ids.InvalidLsn, ErrShortRecord
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r.f, body); err != nil {
		return Header{}, nil, ids.InvalidLsn, io.EOF
	}
	rec := append(append([]byte{}, hdrBuf...), body...)
	if !verifyCrc(rec) {
		return Header{}, nil, ids.InvalidLsn, ErrCrcMismatch
	}
	r.pos = startLsn + ids.Lsn(hdr.TotLen)
	return hdr, body, startLsn, nil
}

func (r *Reader) advanceFile() error {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
	r.idx++
	if r.idx >= len(r.files) {
		return nil
	}
	f, err := os.Open(r.files[r.idx].Path)
	if err != nil {
		return err
	}
	r.f = f
	r.pos = r.files[r.idx].StartLsn
	return nil
}
