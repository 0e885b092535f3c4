// Command initdb bootstraps a fresh kuiba data directory: the filesystem
// layout from §6, an initial (empty) WAL segment at the bootstrap redo
// LSN, and a control file recording nextxid=2, nextoid=65536.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kuibadb/kuiba/access/ckpt"
	"github.com/kuibadb/kuiba/access/clog"
	"github.com/kuibadb/kuiba/access/pendingops"
	"github.com/kuibadb/kuiba/access/wal"
	"github.com/kuibadb/kuiba/guc"
	"github.com/kuibadb/kuiba/logger"
	"github.com/kuibadb/kuiba/storage/fd"
)

const versionFileContents = "1\n"

func main() {
	flag.Parse()
	dataDir := flag.Arg(0)
	if dataDir == "" {
		fmt.Fprintln(os.Stderr, "usage: initdb <data-dir>")
		os.Exit(1)
	}

	if err := run(dataDir); err != nil {
		logger.Errorf("initdb: %v", err)
		fmt.Fprintf(os.Stderr, "initdb: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("initialized kuiba data directory at %s\n", dataDir)
}

func run(dataDir string) error {
	cfg := guc.Default(dataDir)

	for _, sub := range []string{"global", "base"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(filepath.Join(dataDir, "KB_VERSION"), []byte(versionFileContents), 0644); err != nil {
		return err
	}

	cf := ckpt.Bootstrap(uint64(time.Now().UnixNano()))

	walw, err := wal.Open(dataDir, cf.CkptCpy.Curtli, cf.CkptCpy.Redo, cfg.WalBuffMaxSize, cfg.WalFileMaxSize)
	if err != nil {
		return err
	}
	if err := walw.Close(); err != nil {
		return err
	}

	fds := fd.New(cfg.FdCacheSize, os.O_RDWR|os.O_CREATE, 0644)
	defer fds.CloseAll()
	pending := pendingops.NewQueue()
	if _, err := clog.Open(dataDir, cfg.ClogL1CacheSize, fds, pending); err != nil {
		return err
	}

	return ckpt.Write(dataDir, cf)
}
