package wal

import (
	"os"

	"github.com/kuibadb/kuiba/storage/vio"
)

// writevAt honors IOV_MAX and partial writes via the shared vio helper
// (§4.5 "a portable chunking wrapper that honors IOV_MAX and partial
// writes"); this core's WAL file has exactly one writer appending
// sequentially, so a seek followed by writev is equivalent to a true
// positional pwritev.
func writevAt(f *os.File, offset int64, chunks [][]byte) (int64, error) {
	return vio.WriteAt(f, offset, chunks)
}
