// Package csmvcc implements the MVCC buffer (§4.8): a per-relation shared
// buffer whose keys are (FileId, block_id) and whose values are fixed-shape
// pages of xmin/xmax arrays and 2-bit hint-bit infomasks, one page per
// blk_rows rows of a column data file.
package csmvcc

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/kuibadb/kuiba/ids"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

const pageHeaderLen = 16 // crc32c(4) + blk_rows(4) + page lsn(8)

// HintBits are the 2-bit per-row cache of a transaction's terminal CLOG
// status, avoiding a CLOG lookup on every visibility check once set.
type HintBits byte

const (
	HintUnknown   HintBits = 0
	HintCommitted HintBits = 1
	HintAborted   HintBits = 2
)

func infomaskBytes(blkRows int) int { return (blkRows + 3) / 4 }

// BlockSize returns the on-disk page size for a relation configured with
// blkRows MVCC entries per block (§4.8 layout: CRC32C + blk_rows + page LSN
// + xmin array + xmax array + xmin infomask + xmax infomask).
func BlockSize(blkRows int) int {
	return pageHeaderLen + blkRows*16 + 2*infomaskBytes(blkRows)
}

// Page is one decoded MVCC block, backed by its raw on-disk bytes so that
// Store can write buf unmodified after a fresh CRC stamp.
type Page struct {
	buf     []byte
	blkRows int
}

func newPage(blkRows int) *Page {
	buf := make([]byte, BlockSize(blkRows))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(blkRows))
	return &Page{buf: buf, blkRows: blkRows}
}

func (p *Page) xminOff() int { return pageHeaderLen }
func (p *Page) xmaxOff() int { return p.xminOff() + p.blkRows*8 }
func (p *Page) xminInfoOff() int { return p.xmaxOff() + p.blkRows*8 }
func (p *Page) xmaxInfoOff() int { return p.xminInfoOff() + infomaskBytes(p.blkRows) }

// BlkRows reports how many row slots this page holds.
func (p *Page) BlkRows() int { return p.blkRows }

// Lsn returns the page's stamped LSN (the WAL record that last dirtied it).
func (p *Page) Lsn() ids.Lsn {
	return ids.Lsn(binary.LittleEndian.Uint64(p.buf[8:16]))
}

// SetLsn stamps the page's LSN; callers must hold the page's write lock.
func (p *Page) SetLsn(lsn ids.Lsn) {
	binary.LittleEndian.PutUint64(p.buf[8:16], uint64(lsn))
}

func (p *Page) checkRow(row int) {
	if row < 0 || row >= p.blkRows {
		panic("csmvcc: row index out of range")
	}
}

// Xmin returns the stamped creating-transaction id for row.
func (p *Page) Xmin(row int) ids.Xid {
	p.checkRow(row)
	off := p.xminOff() + row*8
	return ids.Xid(binary.LittleEndian.Uint64(p.buf[off : off+8]))
}

// SetXmin stamps the creating-transaction id for row.
func (p *Page) SetXmin(row int, xid ids.Xid) {
	p.checkRow(row)
	off := p.xminOff() + row*8
	binary.LittleEndian.PutUint64(p.buf[off:off+8], uint64(xid))
}

// Xmax returns the stamped deleting-transaction id for row (0 if none).
func (p *Page) Xmax(row int) ids.Xid {
	p.checkRow(row)
	off := p.xmaxOff() + row*8
	return ids.Xid(binary.LittleEndian.Uint64(p.buf[off : off+8]))
}

// SetXmax stamps the deleting-transaction id for row.
func (p *Page) SetXmax(row int, xid ids.Xid) {
	p.checkRow(row)
	off := p.xmaxOff() + row*8
	binary.LittleEndian.PutUint64(p.buf[off:off+8], uint64(xid))
}

func hintGet(buf []byte, base, row int) HintBits {
	byteIdx := base + row/4
	shift := uint((row % 4) * 2)
	return HintBits((buf[byteIdx] >> shift) & 0x3)
}

func hintSet(buf []byte, base, row int, v HintBits) {
	byteIdx := base + row/4
	shift := uint((row % 4) * 2)
	buf[byteIdx] = (buf[byteIdx] &^ (0x3 << shift)) | (byte(v&0x3) << shift)
}

// XminHintBits returns the cached commit/abort hint for row's xmin.
func (p *Page) XminHintBits(row int) HintBits {
	p.checkRow(row)
	return hintGet(p.buf, p.xminInfoOff(), row)
}

// SetXminHintBits caches a terminal CLOG status for row's xmin.
func (p *Page) SetXminHintBits(row int, v HintBits) {
	p.checkRow(row)
	hintSet(p.buf, p.xminInfoOff(), row, v)
}

// XmaxHintBits returns the cached commit/abort hint for row's xmax.
func (p *Page) XmaxHintBits(row int) HintBits {
	p.checkRow(row)
	return hintGet(p.buf, p.xmaxInfoOff(), row)
}

// SetXmaxHintBits caches a terminal CLOG status for row's xmax.
func (p *Page) SetXmaxHintBits(row int, v HintBits) {
	p.checkRow(row)
	hintSet(p.buf, p.xmaxInfoOff(), row, v)
}

// stampCRC recomputes and writes the page checksum over everything after
// the CRC field itself (§4.8: "CRC covers everything after itself").
func (p *Page) stampCRC() {
	crc := crc32.Checksum(p.buf[4:], crcTable)
	binary.LittleEndian.PutUint32(p.buf[0:4], crc)
}

func (p *Page) verifyCRC() bool {
	want := binary.LittleEndian.Uint32(p.buf[0:4])
	got := crc32.Checksum(p.buf[4:], crcTable)
	return want == got
}
