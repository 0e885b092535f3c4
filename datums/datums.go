// Package datums implements the logical column-slice representation (§3):
// either a broadcast "single" value or a fixed-length/varlen array, each
// carrying a null bitmap. access/cs serializes these into column data
// blocks.
package datums

// Kind tags which concrete array/scalar representation a Datum carries.
type Kind byte

const (
	KindInt64 Kind = iota
	KindFloat64
	KindBool
	KindDecimal
	KindVarlen
)

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindDecimal:
		return "decimal"
	case KindVarlen:
		return "varlen"
	default:
		return "unknown"
	}
}

// NullBitmap tracks nullability, one bit per row, byte-packed little-endian
// within each byte (row i is bit i%8 of byte i/8).
type NullBitmap []byte

// NewNullBitmap allocates a bitmap for n rows, all initially non-null.
func NewNullBitmap(n int) NullBitmap {
	return make(NullBitmap, (n+7)/8)
}

// IsNull reports whether row i is null.
func (b NullBitmap) IsNull(i int) bool {
	if i/8 >= len(b) {
		return false
	}
	return b[i/8]&(1<<uint(i%8)) != 0
}

// SetNull marks row i null or not-null.
func (b NullBitmap) SetNull(i int, null bool) {
	byteIdx := i / 8
	bit := byte(1) << uint(i%8)
	if null {
		b[byteIdx] |= bit
	} else {
		b[byteIdx] &^= bit
	}
}

// AnyNull reports whether any row in [0, rows) is null.
func (b NullBitmap) AnyNull(rows int) bool {
	for i := 0; i < rows; i++ {
		if b.IsNull(i) {
			return true
		}
	}
	return false
}

// Datum is a logical column slice: a single broadcast value or an array,
// always carrying row count and nullability.
type Datum interface {
	Kind() Kind
	Len() int
	Nulls() NullBitmap
	// MarshalBinary serializes the datum's kind-specific payload (not
	// including the shared kind tag / null bitmap header written by the
	// caller; see Encode for the full per-column framing).
	MarshalBinary() ([]byte, error)
}
