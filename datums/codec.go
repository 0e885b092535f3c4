package datums

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/kuibadb/kuiba/errs"
)

var (
	errShortPayload         = errors.Wrap(errs.ErrShortRead, "datums: payload shorter than declared length")
	errInvalidVarlenOffsets = errors.New("datums: varlen offsets violate monotonicity/bounds invariant")
)

// wire framing for one column within a column data block:
//   u8 kind; u8 isSingle; u32 nullBitmapLen (little-endian);
//   nullBitmapLen-sized null bitmap; payload
// isSingle distinguishes a Single broadcast from a plain array of the same
// Kind; nullBitmapLen is ceil(rows/8) for arrays, 1 for Single.

// Encode serializes one column (array or Single) for inclusion in a column
// data block (§3's "per-column serialized datums").
func Encode(d Datum) ([]byte, error) {
	kind := d.Kind()
	_, isSingle := d.(*Single)

	nulls := d.Nulls()
	payload, err := d.MarshalBinary()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 2+len(nulls)+len(payload))
	buf = append(buf, byte(kind))
	if isSingle {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	var nlenBuf [4]byte
	binary.LittleEndian.PutUint32(nlenBuf[:], uint32(len(nulls)))
	buf = append(buf, nlenBuf[:]...)
	buf = append(buf, nulls...)
	buf = append(buf, payload...)
	return buf, nil
}

// Decode parses one column previously written by Encode. rows is the
// block's declared row count, needed to size fixed-length array payloads.
func Decode(b []byte, rows int) (Datum, int, error) {
	if len(b) < 6 {
		return nil, 0, errShortPayload
	}
	kind := Kind(b[0])
	isSingle := b[1] != 0
	nlen := int(binary.LittleEndian.Uint32(b[2:6]))
	off := 6
	if len(b) < off+nlen {
		return nil, 0, errShortPayload
	}
	null := NullBitmap(b[off : off+nlen])
	off += nlen

	if isSingle {
		isNull := null.IsNull(0)
		s, err := unmarshalSingle(kind, b[off:], isNull)
		if err != nil {
			return nil, 0, err
		}
		payloadLen, err := singlePayloadLen(kind, b[off:], isNull)
		if err != nil {
			return nil, 0, err
		}
		return s, off + payloadLen, nil
	}

	d, err := unmarshalArray(kind, b[off:], rows, null)
	if err != nil {
		return nil, 0, err
	}
	consumed, err := arrayPayloadLen(kind, rows, b[off:])
	if err != nil {
		return nil, 0, err
	}
	return d, off + consumed, nil
}

func unmarshalArray(kind Kind, payload []byte, rows int, null NullBitmap) (Datum, error) {
	switch kind {
	case KindInt64:
		return unmarshalInt64Array(payload, rows, null)
	case KindFloat64:
		return unmarshalFloat64Array(payload, rows, null)
	case KindBool:
		return unmarshalBoolArray(payload, rows, null)
	case KindDecimal:
		return unmarshalDecimalArray(payload, rows, null)
	case KindVarlen:
		return unmarshalVarlenArray(payload, rows, null)
	default:
		return nil, errors.Errorf("datums: unknown kind %d", kind)
	}
}

// arrayPayloadLen recomputes how many bytes of payload an array occupies,
// so Decode can tell the caller where the next column starts.
func arrayPayloadLen(kind Kind, rows int, payload []byte) (int, error) {
	switch kind {
	case KindInt64, KindFloat64:
		return rows * 8, nil
	case KindBool:
		return rows, nil
	case KindVarlen:
		if len(payload) < (rows+1)*4 {
			return 0, errShortPayload
		}
		offsetsLen := (rows + 1) * 4
		dataLen := binary.LittleEndian.Uint32(payload[offsetsLen-4:])
		return offsetsLen + int(dataLen), nil
	case KindDecimal:
		off := 0
		for i := 0; i < rows; i++ {
			if off >= len(payload) {
				return 0, errShortPayload
			}
			off++ // sign
			magLen, n := binary.Uvarint(payload[off:])
			if n <= 0 {
				return 0, errShortPayload
			}
			off += n + int(magLen) + 4
		}
		return off, nil
	default:
		return 0, errors.Errorf("datums: unknown kind %d", kind)
	}
}

func singlePayloadLen(kind Kind, payload []byte, isNull bool) (int, error) {
	if len(payload) < 4 {
		return 0, errShortPayload
	}
	// A Single always carries a 4-byte row count header; if it's non-null
	// the one-element array payload follows.
	if isNull {
		return 4, nil
	}
	n, err := arrayPayloadLen(kind, 1, payload[4:])
	if err != nil {
		return 0, err
	}
	return 4 + n, nil
}
