package datums

import "encoding/binary"

// Single is a broadcast column: one value (or null) logically repeated
// across Rows rows, used for constant-folded columns (§3).
type Single struct {
	ValueKind Kind
	Rows      int
	IsNull    bool
	value     Datum // a length-1 Datum of ValueKind; unused if IsNull
}

// NewSingle wraps value (a length-1 Datum) as a broadcast of rows rows.
func NewSingle(rows int, value Datum) *Single {
	return &Single{ValueKind: value.Kind(), Rows: rows, value: value}
}

// NewSingleNull builds a broadcast null of the given kind.
func NewSingleNull(kind Kind, rows int) *Single {
	return &Single{ValueKind: kind, Rows: rows, IsNull: true}
}

func (s *Single) Kind() Kind { return s.ValueKind }
func (s *Single) Len() int   { return s.Rows }

// Nulls reports a single-bit bitmap: the broadcast value's own nullability,
// not one bit per logical row (there is only one underlying value).
func (s *Single) Nulls() NullBitmap {
	b := NewNullBitmap(1)
	b.SetNull(0, s.IsNull)
	return b
}

// Value returns the underlying length-1 Datum, or nil if IsNull.
func (s *Single) Value() Datum { return s.value }

func (s *Single) MarshalBinary() ([]byte, error) {
	var rowsBuf [4]byte
	binary.LittleEndian.PutUint32(rowsBuf[:], uint32(s.Rows))
	if s.IsNull {
		return rowsBuf[:], nil
	}
	payload, err := s.value.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(rowsBuf[:], payload...), nil
}

func unmarshalSingle(kind Kind, payload []byte, isNull bool) (*Single, error) {
	if len(payload) < 4 {
		return nil, errShortPayload
	}
	rows := int(binary.LittleEndian.Uint32(payload))
	s := &Single{ValueKind: kind, Rows: rows, IsNull: isNull}
	if isNull {
		return s, nil
	}
	oneNull := NewNullBitmap(1)
	v, err := unmarshalArray(kind, payload[4:], 1, oneNull)
	if err != nil {
		return nil, err
	}
	s.value = v
	return s, nil
}
