// Package ckpt implements the control file (§6): a fixed-size record at
// global/kb_control naming the control/catalog version, the last
// checkpoint's LSN and a copy of that checkpoint, and a CRC32C over the
// whole prefix.
package ckpt

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/kuibadb/kuiba/errs"
	"github.com/kuibadb/kuiba/ids"
)

// ControlVersion and CatalogVersion are the bootstrap constants from §6's
// worked scenario; they never change within a single on-disk format
// generation.
const (
	ControlVersion = 20130203
	CatalogVersion = 20181218
)

// ckptLen is the packed size of Ckpt: redo(8) + curtli(4) + prevtli(4) +
// nextxid(8) + nextoid(4) + time_nanos(8).
const ckptLen = 8 + 4 + 4 + 8 + 4 + 8

// ctlLen is the full packed control-file size: ctl_ver(4) + cat_ver(4) +
// time_nanos(8) + ckpt_lsn(8) + Ckpt(ckptLen) + crc32c(4).
const ctlLen = 4 + 4 + 8 + 8 + ckptLen + 4

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Ckpt is one checkpoint record (§6): the redo LSN recovery must replay
// from, the timeline in effect when it was taken and the one before it,
// and the nextxid/nextoid counters as of that checkpoint.
type Ckpt struct {
	Redo      ids.Lsn
	Curtli    ids.TimeLineID
	Prevtli   ids.TimeLineID
	NextXid   ids.Xid
	NextOid   ids.Oid
	TimeNanos uint64
}

// ControlFile is the full on-disk control record (§6).
type ControlFile struct {
	CtlVer    uint32
	CatVer    uint32
	TimeNanos uint64
	CkptLsn   ids.Lsn
	CkptCpy   Ckpt
}

// Path returns the control file's well-known location under a data
// directory: global/kb_control.
func Path(dataDir string) string {
	return filepath.Join(dataDir, "global", "kb_control")
}

// Bootstrap builds the control file initdb writes on a fresh data
// directory: nextxid=2, nextoid=65536, redo=ckpt=20181218 (§6).
func Bootstrap(nowNanos uint64) *ControlFile {
	ckpt := Ckpt{
		Redo:      ids.Lsn(CatalogVersion),
		Curtli:    ids.BootstrapTimeLineID,
		Prevtli:   ids.BootstrapTimeLineID,
		NextXid:   ids.BootstrapXid,
		NextOid:   65536,
		TimeNanos: nowNanos,
	}
	return &ControlFile{
		CtlVer:    ControlVersion,
		CatVer:    CatalogVersion,
		TimeNanos: nowNanos,
		CkptLsn:   ckpt.Redo,
		CkptCpy:   ckpt,
	}
}

func (cf *ControlFile) encode() []byte {
	buf := make([]byte, ctlLen)
	binary.LittleEndian.PutUint32(buf[0:4], cf.CtlVer)
	binary.LittleEndian.PutUint32(buf[4:8], cf.CatVer)
	binary.LittleEndian.PutUint64(buf[8:16], cf.TimeNanos)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(cf.CkptLsn))

	off := 24
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(cf.CkptCpy.Redo))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(cf.CkptCpy.Curtli))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(cf.CkptCpy.Prevtli))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(cf.CkptCpy.NextXid))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(cf.CkptCpy.NextOid))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:off+8], cf.CkptCpy.TimeNanos)
	off += 8

	crc := crc32.Checksum(buf[:off], crcTable)
	binary.LittleEndian.PutUint32(buf[off:off+4], crc)
	return buf
}

func decode(buf []byte) (*ControlFile, error) {
	if len(buf) != ctlLen {
		return nil, errs.Wrap(errs.CodeShortIO, errs.ErrShortRead, "ckpt: control file has wrong length")
	}
	crcOff := ctlLen - 4
	want := binary.LittleEndian.Uint32(buf[crcOff:])
	got := crc32.Checksum(buf[:crcOff], crcTable)
	if got != want {
		return nil, errs.Wrap(errs.CodeCRCMismatch, errs.ErrCRCMismatch, "ckpt: control file crc mismatch")
	}

	cf := &ControlFile{
		CtlVer:    binary.LittleEndian.Uint32(buf[0:4]),
		CatVer:    binary.LittleEndian.Uint32(buf[4:8]),
		TimeNanos: binary.LittleEndian.Uint64(buf[8:16]),
		CkptLsn:   ids.Lsn(binary.LittleEndian.Uint64(buf[16:24])),
	}
	off := 24
	cf.CkptCpy.Redo = ids.Lsn(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	cf.CkptCpy.Curtli = ids.TimeLineID(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	cf.CkptCpy.Prevtli = ids.TimeLineID(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	cf.CkptCpy.NextXid = ids.Xid(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	cf.CkptCpy.NextOid = ids.Oid(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	cf.CkptCpy.TimeNanos = binary.LittleEndian.Uint64(buf[off : off+8])

	if cf.CkptLsn < cf.CkptCpy.Redo {
		return nil, errs.New(errs.CodeInternalError, "ckpt: control file violates ckpt >= ckptcpy.redo")
	}
	return cf, nil
}

// Write stamps the CRC and writes the control file to dataDir, creating
// global/ if necessary. It fsyncs before returning so a crash right after
// Write never observes a torn file.
func Write(dataDir string, cf *ControlFile) error {
	if err := os.MkdirAll(filepath.Dir(Path(dataDir)), 0755); err != nil {
		return errs.Wrap(errs.CodeIOFailure, err, "ckpt: creating global directory")
	}
	f, err := os.OpenFile(Path(dataDir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errs.Wrap(errs.CodeIOFailure, err, "ckpt: opening control file")
	}
	defer f.Close()

	if _, err := f.Write(cf.encode()); err != nil {
		return errs.Wrap(errs.CodeIOFailure, err, "ckpt: writing control file")
	}
	if err := f.Sync(); err != nil {
		return errs.Wrap(errs.CodeIOFailure, err, "ckpt: fsyncing control file")
	}
	return nil
}

// Read loads and CRC-verifies the control file, enforcing the startup
// invariant ckpt >= ckptcpy.redo (§6).
func Read(dataDir string) (*ControlFile, error) {
	buf, err := os.ReadFile(Path(dataDir))
	if err != nil {
		return nil, errs.Wrap(errs.CodeIOFailure, err, "ckpt: reading control file")
	}
	return decode(buf)
}
