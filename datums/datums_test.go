package datums_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kuibadb/kuiba/datums"
)

func TestInt64ArrayRoundTrip(t *testing.T) {
	a := datums.NewInt64Array(4)
	a.Values = []int64{10, -20, 0, 99}
	a.Null.SetNull(2, true)

	enc, err := datums.Encode(a)
	require.NoError(t, err)

	d, n, err := datums.Decode(enc, 4)
	require.NoError(t, err)
	require.Equal(t, len(enc), n)

	got, ok := d.(*datums.Int64Array)
	require.True(t, ok)
	require.Equal(t, a.Values, got.Values)
	require.True(t, got.Null.IsNull(2))
	require.False(t, got.Null.IsNull(0))
}

func TestVarlenArrayRoundTrip(t *testing.T) {
	values := [][]byte{[]byte("hello"), []byte(""), []byte("world!")}
	a := datums.NewVarlenArrayFromStrings(values, func(i int) bool { return i == 1 })

	require.NoError(t, a.Validate())
	require.Equal(t, uint32(0), a.Offsets[0])

	enc, err := datums.Encode(a)
	require.NoError(t, err)

	d, _, err := datums.Decode(enc, 3)
	require.NoError(t, err)
	got := d.(*datums.VarlenArray)
	require.Equal(t, []byte("hello"), got.At(0))
	require.Equal(t, []byte("world!"), got.At(2))
	require.True(t, got.Null.IsNull(1))
}

func TestVarlenArrayRejectsNonMonotonicOffsets(t *testing.T) {
	a := &datums.VarlenArray{Offsets: []uint32{0, 5, 3}, Data: make([]byte, 5)}
	require.Error(t, a.Validate())
}

func TestDecimalArrayRoundTrip(t *testing.T) {
	a := datums.NewDecimalArray(2)
	a.Values[0] = decimal.RequireFromString("123.456")
	a.Values[1] = decimal.RequireFromString("-9.001")

	enc, err := datums.Encode(a)
	require.NoError(t, err)

	d, _, err := datums.Decode(enc, 2)
	require.NoError(t, err)
	got := d.(*datums.DecimalArray)
	require.True(t, a.Values[0].Equal(got.Values[0]))
	require.True(t, a.Values[1].Equal(got.Values[1]))
}

func TestSingleBroadcastRoundTrip(t *testing.T) {
	one := datums.NewInt64Array(1)
	one.Values[0] = 42
	s := datums.NewSingle(1000, one)

	enc, err := datums.Encode(s)
	require.NoError(t, err)

	d, _, err := datums.Decode(enc, 1000)
	require.NoError(t, err)
	got := d.(*datums.Single)
	require.Equal(t, 1000, got.Len())
	require.False(t, got.IsNull)
	require.Equal(t, int64(42), got.Value().(*datums.Int64Array).Values[0])
}

func TestSingleNullRoundTrip(t *testing.T) {
	s := datums.NewSingleNull(datums.KindBool, 50)
	enc, err := datums.Encode(s)
	require.NoError(t, err)

	d, _, err := datums.Decode(enc, 50)
	require.NoError(t, err)
	got := d.(*datums.Single)
	require.True(t, got.IsNull)
	require.Equal(t, 50, got.Len())
}

func TestBoolArrayRoundTrip(t *testing.T) {
	a := datums.NewBoolArray(3)
	a.Values = []bool{true, false, true}
	enc, err := datums.Encode(a)
	require.NoError(t, err)
	d, _, err := datums.Decode(enc, 3)
	require.NoError(t, err)
	require.Equal(t, a.Values, d.(*datums.BoolArray).Values)
}
