package datums

import "encoding/binary"

// VarlenArray holds TEXT/BYTEA-typed values as an offset table (one more
// entry than rows, monotonically nondecreasing, first offset 0) plus the
// concatenated payload bytes (§3).
type VarlenArray struct {
	Offsets []uint32 // len(Offsets) == rows+1
	Data    []byte
	Null    NullBitmap
}

// NewVarlenArrayFromStrings builds a VarlenArray from row values, marking
// null rows per the caller-supplied predicate.
func NewVarlenArrayFromStrings(values [][]byte, isNull func(i int) bool) *VarlenArray {
	offsets := make([]uint32, len(values)+1)
	var data []byte
	null := NewNullBitmap(len(values))
	for i, v := range values {
		if isNull != nil && isNull(i) {
			null.SetNull(i, true)
		} else {
			data = append(data, v...)
		}
		offsets[i+1] = uint32(len(data))
	}
	return &VarlenArray{Offsets: offsets, Data: data, Null: null}
}

func (a *VarlenArray) Kind() Kind        { return KindVarlen }
func (a *VarlenArray) Len() int          { return len(a.Offsets) - 1 }
func (a *VarlenArray) Nulls() NullBitmap { return a.Null }

// At returns row i's bytes (meaningless if the row is null).
func (a *VarlenArray) At(i int) []byte {
	return a.Data[a.Offsets[i]:a.Offsets[i+1]]
}

// Validate enforces the §3 invariants: first offset 0, offsets
// nondecreasing, total offset within the payload.
func (a *VarlenArray) Validate() error {
	if len(a.Offsets) == 0 || a.Offsets[0] != 0 {
		return errInvalidVarlenOffsets
	}
	for i := 1; i < len(a.Offsets); i++ {
		if a.Offsets[i] < a.Offsets[i-1] {
			return errInvalidVarlenOffsets
		}
	}
	if int(a.Offsets[len(a.Offsets)-1]) > len(a.Data) {
		return errInvalidVarlenOffsets
	}
	return nil
}

func (a *VarlenArray) MarshalBinary() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 4*len(a.Offsets)+len(a.Data))
	for i, off := range a.Offsets {
		binary.LittleEndian.PutUint32(buf[i*4:], off)
	}
	copy(buf[4*len(a.Offsets):], a.Data)
	return buf, nil
}

func unmarshalVarlenArray(payload []byte, rows int, null NullBitmap) (*VarlenArray, error) {
	offsetsLen := (rows + 1) * 4
	if len(payload) < offsetsLen {
		return nil, errShortPayload
	}
	offsets := make([]uint32, rows+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(payload[i*4:])
	}
	dataLen := offsets[rows]
	if offsetsLen+int(dataLen) > len(payload) {
		return nil, errShortPayload
	}
	data := make([]byte, dataLen)
	copy(data, payload[offsetsLen:offsetsLen+int(dataLen)])
	a := &VarlenArray{Offsets: offsets, Data: data, Null: null}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
