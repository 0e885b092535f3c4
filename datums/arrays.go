package datums

import (
	"encoding/binary"
	"math"
)

// Int64Array is a fixed-length array of int64 values, 8 bytes/element.
type Int64Array struct {
	Values []int64
	Null   NullBitmap
}

// NewInt64Array allocates an all-non-null array of n zero values.
func NewInt64Array(n int) *Int64Array {
	return &Int64Array{Values: make([]int64, n), Null: NewNullBitmap(n)}
}

func (a *Int64Array) Kind() Kind       { return KindInt64 }
func (a *Int64Array) Len() int         { return len(a.Values) }
func (a *Int64Array) Nulls() NullBitmap { return a.Null }

func (a *Int64Array) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8*len(a.Values))
	for i, v := range a.Values {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf, nil
}

func unmarshalInt64Array(payload []byte, rows int, null NullBitmap) (*Int64Array, error) {
	if len(payload) < rows*8 {
		return nil, errShortPayload
	}
	vals := make([]int64, rows)
	for i := 0; i < rows; i++ {
		vals[i] = int64(binary.LittleEndian.Uint64(payload[i*8:]))
	}
	return &Int64Array{Values: vals, Null: null}, nil
}

// Float64Array is a fixed-length array of float64 values, 8 bytes/element.
type Float64Array struct {
	Values []float64
	Null   NullBitmap
}

func NewFloat64Array(n int) *Float64Array {
	return &Float64Array{Values: make([]float64, n), Null: NewNullBitmap(n)}
}

func (a *Float64Array) Kind() Kind       { return KindFloat64 }
func (a *Float64Array) Len() int         { return len(a.Values) }
func (a *Float64Array) Nulls() NullBitmap { return a.Null }

func (a *Float64Array) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8*len(a.Values))
	for i, v := range a.Values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf, nil
}

func unmarshalFloat64Array(payload []byte, rows int, null NullBitmap) (*Float64Array, error) {
	if len(payload) < rows*8 {
		return nil, errShortPayload
	}
	vals := make([]float64, rows)
	for i := 0; i < rows; i++ {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
	}
	return &Float64Array{Values: vals, Null: null}, nil
}

// BoolArray is a fixed-length array of bool values, 1 byte/element.
type BoolArray struct {
	Values []bool
	Null   NullBitmap
}

func NewBoolArray(n int) *BoolArray {
	return &BoolArray{Values: make([]bool, n), Null: NewNullBitmap(n)}
}

func (a *BoolArray) Kind() Kind       { return KindBool }
func (a *BoolArray) Len() int         { return len(a.Values) }
func (a *BoolArray) Nulls() NullBitmap { return a.Null }

func (a *BoolArray) MarshalBinary() ([]byte, error) {
	buf := make([]byte, len(a.Values))
	for i, v := range a.Values {
		if v {
			buf[i] = 1
		}
	}
	return buf, nil
}

func unmarshalBoolArray(payload []byte, rows int, null NullBitmap) (*BoolArray, error) {
	if len(payload) < rows {
		return nil, errShortPayload
	}
	vals := make([]bool, rows)
	for i := 0; i < rows; i++ {
		vals[i] = payload[i] != 0
	}
	return &BoolArray{Values: vals, Null: null}, nil
}
