package datums

import (
	"encoding/binary"
	"math/big"

	"github.com/shopspring/decimal"
)

// DecimalArray is a fixed-length array of NUMERIC-typed values, serialized
// per element as a coefficient (length-prefixed big-endian magnitude plus
// sign byte) and an exponent (int32), per §3's expansion of the datum
// kinds.
type DecimalArray struct {
	Values []decimal.Decimal
	Null   NullBitmap
}

func NewDecimalArray(n int) *DecimalArray {
	return &DecimalArray{Values: make([]decimal.Decimal, n), Null: NewNullBitmap(n)}
}

func (a *DecimalArray) Kind() Kind       { return KindDecimal }
func (a *DecimalArray) Len() int         { return len(a.Values) }
func (a *DecimalArray) Nulls() NullBitmap { return a.Null }

func (a *DecimalArray) MarshalBinary() ([]byte, error) {
	var buf []byte
	for i, v := range a.Values {
		if a.Null.IsNull(i) {
			buf = appendDecimalElem(buf, big.NewInt(0), 0)
			continue
		}
		coeff := v.Coefficient()
		buf = appendDecimalElem(buf, coeff, v.Exponent())
	}
	return buf, nil
}

func appendDecimalElem(buf []byte, coeff *big.Int, exp int32) []byte {
	sign := byte(0)
	if coeff.Sign() < 0 {
		sign = 1
	}
	mag := new(big.Int).Abs(coeff).Bytes()

	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(mag)))

	buf = append(buf, sign)
	buf = append(buf, lenBuf[:n]...)
	buf = append(buf, mag...)
	var expBuf [4]byte
	binary.LittleEndian.PutUint32(expBuf[:], uint32(exp))
	buf = append(buf, expBuf[:]...)
	return buf
}

func unmarshalDecimalArray(payload []byte, rows int, null NullBitmap) (*DecimalArray, error) {
	vals := make([]decimal.Decimal, rows)
	off := 0
	for i := 0; i < rows; i++ {
		if off >= len(payload) {
			return nil, errShortPayload
		}
		sign := payload[off]
		off++
		magLen, n := binary.Uvarint(payload[off:])
		if n <= 0 {
			return nil, errShortPayload
		}
		off += n
		if off+int(magLen)+4 > len(payload) {
			return nil, errShortPayload
		}
		mag := payload[off : off+int(magLen)]
		off += int(magLen)
		exp := int32(binary.LittleEndian.Uint32(payload[off:]))
		off += 4

		coeff := new(big.Int).SetBytes(mag)
		if sign == 1 {
			coeff.Neg(coeff)
		}
		if !null.IsNull(i) {
			vals[i] = decimal.NewFromBigInt(coeff, exp)
		}
	}
	return &DecimalArray{Values: vals, Null: null}, nil
}
