// Package guc loads the core's tunables from kuiba.conf, an ini-format file
// (§6). The core itself never reads kuiba.conf directly; callers load a Cfg
// once at startup and pass its fields into the component constructors
// (WAL, shared buffer, CLOG, fd cache) that need them.
package guc

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// CommandLineArgs carries the data directory and an optional config file
// path for Load.
type CommandLineArgs struct {
	DataDir    string
	ConfigPath string
}

// Cfg holds every GUC the storage core consults. Durations are parsed once
// at load time so hot paths never re-parse a string.
type Cfg struct {
	DataDir  string
	LogLevel string
	LogInfo  string
	LogError string

	WalBuffMaxSize  uint64 // bytes; staging buffer flush threshold
	WalFileMaxSize  uint64 // bytes; file rollover threshold
	SharedBuffers   uint32 // SB capacity, in pages
	MvccBufCap      uint32 // MVCC buffer SB capacity, in pages
	ClogL1CacheSize int    // per-worker CLOG L1 cache entries
	FdCacheSize     int    // per-worker fd cache capacity

	CheckpointTimeout time.Duration
}

// Default returns the GUC values initdb and tests run with absent
// an explicit kuiba.conf, matching the teacher's NewCfg() defaults pattern.
func Default(dataDir string) *Cfg {
	return &Cfg{
		DataDir:           dataDir,
		LogLevel:          "info",
		WalBuffMaxSize:    8 << 20,  // 8 MiB
		WalFileMaxSize:    16 << 20, // 16 MiB
		SharedBuffers:     16384,    // 128 MiB at 8 KiB pages
		MvccBufCap:        4096,
		ClogL1CacheSize:   1024,
		FdCacheSize:       256,
		CheckpointTimeout: 5 * time.Minute,
	}
}

// Load reads kuiba.conf from args.ConfigPath (or <DataDir>/kuiba.conf if
// unset) over the Default() baseline; a missing file is not an error, since
// the core must run with defaults alone (e.g. under initdb, before any
// config file exists).
func Load(args *CommandLineArgs) (*Cfg, error) {
	cfg := Default(args.DataDir)

	path := args.ConfigPath
	if path == "" && args.DataDir != "" {
		path = filepath.Join(args.DataDir, "kuiba.conf")
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := ini.LooseLoad(path)
	if err != nil {
		return nil, errors.Wrapf(err, "guc: loading %s", path)
	}

	sec := raw.Section("kuiba")
	cfg.LogLevel = sec.Key("log_level").MustString(cfg.LogLevel)
	cfg.LogInfo = sec.Key("log_info_path").MustString(cfg.LogInfo)
	cfg.LogError = sec.Key("log_error_path").MustString(cfg.LogError)
	cfg.WalBuffMaxSize = sec.Key("wal_buff_max_size").MustUint64(cfg.WalBuffMaxSize)
	cfg.WalFileMaxSize = sec.Key("wal_file_max_size").MustUint64(cfg.WalFileMaxSize)
	cfg.SharedBuffers = uint32(sec.Key("shared_buffers").MustUint(uint(cfg.SharedBuffers)))
	cfg.MvccBufCap = uint32(sec.Key("mvcc_buf_cap").MustUint(uint(cfg.MvccBufCap)))
	cfg.ClogL1CacheSize = sec.Key("clog_l1_cache_size").MustInt(cfg.ClogL1CacheSize)
	cfg.FdCacheSize = sec.Key("fd_cache_size").MustInt(cfg.FdCacheSize)
	cfg.CheckpointTimeout = sec.Key("checkpoint_timeout").MustDuration(cfg.CheckpointTimeout)

	return cfg, nil
}
