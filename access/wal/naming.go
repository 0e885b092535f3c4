package wal

import (
	"fmt"
	"path/filepath"

	"github.com/kuibadb/kuiba/ids"
)

// fileName renders a WAL file name: 8 hex digits of timeline followed by 16
// hex digits of start LSN, zero-padded uppercase (§6).
func fileName(tli ids.TimeLineID, startLsn ids.Lsn) string {
	return fmt.Sprintf("%08X%016X.wal", uint32(tli), uint64(startLsn))
}

func filePath(dir string, tli ids.TimeLineID, startLsn ids.Lsn) string {
	return filepath.Join(dir, "kb_wal", fileName(tli, startLsn))
}

// segmentDir returns the kb_wal directory under a data directory.
func segmentDir(dataDir string) string {
	return filepath.Join(dataDir, "kb_wal")
}
