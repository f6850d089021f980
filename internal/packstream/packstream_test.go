package packstream_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyphergraph/go-cypher-bolt/internal/packstream"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, packstream.Encode(&buf, v))
	got, err := packstream.Decode(&buf)
	require.NoError(t, err)
	return got
}

func TestRoundTrip_Primitives(t *testing.T) {
	require.Nil(t, roundTrip(t, nil))
	require.Equal(t, true, roundTrip(t, true))
	require.Equal(t, false, roundTrip(t, false))
	require.Equal(t, int64(0), roundTrip(t, int64(0)))
	require.Equal(t, int64(-16), roundTrip(t, int64(-16)))
	require.Equal(t, int64(127), roundTrip(t, int64(127)))
	require.Equal(t, int64(128), roundTrip(t, int64(128)))
	require.Equal(t, int64(-17), roundTrip(t, int64(-17)))
	require.Equal(t, int64(40000), roundTrip(t, int64(40000)))
	require.Equal(t, int64(3000000000), roundTrip(t, int64(3000000000)))
	require.Equal(t, int64(1)<<40, roundTrip(t, int64(1)<<40))
	require.Equal(t, 3.14, roundTrip(t, 3.14))
}

func TestRoundTrip_Int64Extremes(t *testing.T) {
	// encodeInt's tiered marker selection is exhaustive over the full
	// int64 range, which is why packstream has no ErrOverflowInt: there
	// is no 64-bit value it cannot place in the Int64 tier.
	require.Equal(t, int64(math.MaxInt64), roundTrip(t, int64(math.MaxInt64)))
	require.Equal(t, int64(math.MinInt64), roundTrip(t, int64(math.MinInt64)))
}

func TestRoundTrip_String(t *testing.T) {
	require.Equal(t, "", roundTrip(t, ""))
	require.Equal(t, "hello", roundTrip(t, "hello"))
	long := bytes.Repeat([]byte("x"), 300)
	require.Equal(t, string(long), roundTrip(t, string(long)))
}

func TestRoundTrip_ListAndMap(t *testing.T) {
	l := []any{int64(1), "two", nil, true}
	require.Equal(t, l, roundTrip(t, l))

	m := map[string]any{"a": int64(1), "b": "two"}
	require.Equal(t, m, roundTrip(t, m))
}

func TestRoundTrip_NestedStructure(t *testing.T) {
	s := packstream.Structure{Tag: 'N', Fields: []any{int64(1), []any{"Person"}, map[string]any{"name": "Alice"}}}
	got := roundTrip(t, s)
	require.Equal(t, s, got)
}

func TestDecode_UnknownMarker(t *testing.T) {
	_, err := packstream.Decode(bytes.NewReader([]byte{0xC7}))
	require.ErrorIs(t, err, packstream.ErrUnknownMarker)
}

func TestDecode_TruncatedInput(t *testing.T) {
	_, err := packstream.Decode(bytes.NewReader([]byte{0xC9, 0x01}))
	require.ErrorIs(t, err, packstream.ErrTruncatedInput)
}

func TestDecode_UnsupportedStructureTag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, buf.WriteByte(0xB0))
	require.NoError(t, buf.WriteByte('Z'))
	_, err := packstream.Decode(&buf)
	require.ErrorIs(t, err, packstream.ErrUnsupportedStructTag)
}

func TestRoundTrip_Bytes(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03}
	got := roundTrip(t, b)
	require.Equal(t, b, got)
}

func TestRoundTrip_NestingDepthBound(t *testing.T) {
	var v any = int64(1)
	for i := 0; i < packstream.MaxDepth+5; i++ {
		v = []any{v}
	}
	var buf bytes.Buffer
	err := packstream.Encode(&buf, v)
	require.Error(t, err)
}
