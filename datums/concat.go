package datums

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var errConcatKindMismatch = errors.New("datums: concat requires matching, non-broadcast array kinds")

// Concat vertically stacks same-kind array datums into one logical column,
// the operation the columnar writer (access/cs) needs when multiple
// buffered write() batches accumulate before a block-sized flush. Single
// (broadcast) datums are not supported here: by the time a batch reaches
// the writer it has already been materialized into a concrete array.
func Concat(parts []Datum) (Datum, error) {
	if len(parts) == 0 {
		return nil, errors.New("datums: concat of zero parts")
	}
	kind := parts[0].Kind()
	for _, p := range parts {
		if p.Kind() != kind {
			return nil, errConcatKindMismatch
		}
	}
	switch kind {
	case KindInt64:
		return concatInt64(parts)
	case KindFloat64:
		return concatFloat64(parts)
	case KindBool:
		return concatBool(parts)
	case KindDecimal:
		return concatDecimal(parts)
	case KindVarlen:
		return concatVarlen(parts)
	default:
		return nil, errConcatKindMismatch
	}
}

func totalRows(parts []Datum) int {
	n := 0
	for _, p := range parts {
		n += p.Len()
	}
	return n
}

func concatNullBitmap(parts []Datum) NullBitmap {
	out := NewNullBitmap(totalRows(parts))
	row := 0
	for _, p := range parts {
		nb := p.Nulls()
		for i := 0; i < p.Len(); i++ {
			out.SetNull(row, nb.IsNull(i))
			row++
		}
	}
	return out
}

func concatInt64(parts []Datum) (Datum, error) {
	out := &Int64Array{Values: make([]int64, 0, totalRows(parts)), Null: concatNullBitmap(parts)}
	for _, p := range parts {
		a, ok := p.(*Int64Array)
		if !ok {
			return nil, errConcatKindMismatch
		}
		out.Values = append(out.Values, a.Values...)
	}
	return out, nil
}

func concatFloat64(parts []Datum) (Datum, error) {
	out := &Float64Array{Values: make([]float64, 0, totalRows(parts)), Null: concatNullBitmap(parts)}
	for _, p := range parts {
		a, ok := p.(*Float64Array)
		if !ok {
			return nil, errConcatKindMismatch
		}
		out.Values = append(out.Values, a.Values...)
	}
	return out, nil
}

func concatBool(parts []Datum) (Datum, error) {
	out := &BoolArray{Values: make([]bool, 0, totalRows(parts)), Null: concatNullBitmap(parts)}
	for _, p := range parts {
		a, ok := p.(*BoolArray)
		if !ok {
			return nil, errConcatKindMismatch
		}
		out.Values = append(out.Values, a.Values...)
	}
	return out, nil
}

func concatDecimal(parts []Datum) (Datum, error) {
	out := &DecimalArray{Values: make([]decimal.Decimal, 0, totalRows(parts)), Null: concatNullBitmap(parts)}
	for _, p := range parts {
		a, ok := p.(*DecimalArray)
		if !ok {
			return nil, errConcatKindMismatch
		}
		out.Values = append(out.Values, a.Values...)
	}
	return out, nil
}

func concatVarlen(parts []Datum) (Datum, error) {
	rows := totalRows(parts)
	offsets := make([]uint32, 1, rows+1)
	offsets[0] = 0
	var data []byte
	for _, p := range parts {
		a, ok := p.(*VarlenArray)
		if !ok {
			return nil, errConcatKindMismatch
		}
		base := uint32(len(data))
		data = append(data, a.Data...)
		for i := 1; i < len(a.Offsets); i++ {
			offsets = append(offsets, base+a.Offsets[i])
		}
	}
	return &VarlenArray{Offsets: offsets, Data: data, Null: concatNullBitmap(parts)}, nil
}
