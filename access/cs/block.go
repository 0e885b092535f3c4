// Package cs implements the columnar writer (L0, §4.9): an exclusively
// owned appender for one table's L0 data file, batching writes up to
// data_blk_rows rows per block and stamping xmin through the MVCC buffer
// on sync.
package cs

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"

	"github.com/kuibadb/kuiba/datums"
	"github.com/kuibadb/kuiba/errs"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

var errShortBlock = errors.New("cs: truncated column data block")

// serializeBlock encodes one column data block (§3 "Column data block
// (L0)"): total size (8B) + row count (4B) + column count (2B) + each
// column's datums.Encode framing + a CRC32C trailer. The total-size header
// is rewritten last, once the trailer length is known.
func serializeBlock(cols []datums.Datum, rows int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, 8)) // placeholder for total size

	var rowCount [4]byte
	binary.LittleEndian.PutUint32(rowCount[:], uint32(rows))
	buf.Write(rowCount[:])

	var colCount [2]byte
	binary.LittleEndian.PutUint16(colCount[:], uint16(len(cols)))
	buf.Write(colCount[:])

	for _, col := range cols {
		enc, err := datums.Encode(col)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}

	crc := crc32.Checksum(buf.Bytes()[8:], crcTable)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	buf.Write(crcBuf[:])

	out := buf.Bytes()
	binary.LittleEndian.PutUint64(out[0:8], uint64(len(out)))
	return out, nil
}

// verifyBlock checks a block's CRC32C trailer against its declared total
// size, returning the row count, column count and payload slice (the bytes
// between the header and the trailer) on success.
func verifyBlock(block []byte) (rows int, colCount int, payload []byte, err error) {
	if len(block) < 18 { // 8 + 4 + 2 + 4
		return 0, 0, nil, errShortBlock
	}
	totalSize := binary.LittleEndian.Uint64(block[0:8])
	if uint64(len(block)) != totalSize {
		return 0, 0, nil, errs.Wrap(errs.CodeShortIO, errShortBlock, "cs: block length does not match its header")
	}
	trailerOff := len(block) - 4
	want := binary.LittleEndian.Uint32(block[trailerOff:])
	got := crc32.Checksum(block[8:trailerOff], crcTable)
	if want != got {
		return 0, 0, nil, errs.ErrCRCMismatch
	}
	rows = int(binary.LittleEndian.Uint32(block[8:12]))
	colCount = int(binary.LittleEndian.Uint16(block[12:14]))
	return rows, colCount, block[14:trailerOff], nil
}
