package tracefile

import (
	"bytes"
	"errors"
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var boundaryValues = []int64{
	0, 1, -1, 2, -2,
	63, -64, 64, -65,
	127, 128, -128, 255, 256,
	math.MaxInt8, math.MinInt8,
	math.MaxInt16, math.MinInt16,
	math.MaxInt32, math.MinInt32,
	math.MaxInt32 + 1, math.MinInt32 - 1,
	math.MaxUint32, -math.MaxUint32,
	int64(uint32(0xFFFFFFFF)), int64(int32(-1)) & 0xFFFFFFFF,
	1 << 35, -(1 << 35),
	1<<62 - 1, 1 << 62, -(1 << 62),
	math.MaxInt64, math.MinInt64,
	math.MaxInt64 - 1, math.MinInt64 + 1,
}

func TestVarintRoundTripBoundaries(t *testing.T) {
	for _, v := range boundaryValues {
		b := AppendVarint(nil, v)
		got, err := ReadVarint(bytes.NewReader(b))
		require.NoError(t, err, "value %d", v)
		assert.Equal(t, v, got)
		assert.Equal(t, len(b), varintLen(v), "value %d", v)
	}
}

func TestVarintSizes(t *testing.T) {
	tests := []struct {
		v    int64
		size int
	}{
		{0, 1},
		{1, 1},
		{-1, 1},
		{63, 1},
		{-64, 1},
		{64, 2},
		{-65, 2},
		{8191, 2},
		{8192, 3},
		{math.MaxInt32, 5},
		{math.MinInt32, 5},
		{math.MaxInt64, 10},
		{math.MinInt64, 10},
	}
	for _, tt := range tests {
		assert.Len(t, AppendVarint(nil, tt.v), tt.size, "value %d", tt.v)
	}
}

func TestUvarintRoundTripBoundaries(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 16383, 16384, math.MaxUint32, math.MaxUint32 + 1, math.MaxUint64} {
		b := AppendUvarint(nil, v)
		got, err := ReadUvarint(bytes.NewReader(b))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	assert.Len(t, AppendUvarint(nil, math.MaxUint64), 10)
}

func TestVarintRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var buf []byte
	var want []int64
	for i := 0; i < 100_000; i++ {
		// mix magnitudes so every length is exercised
		v := int64(rng.Uint64()) >> uint(rng.Intn(64))
		want = append(want, v)
		buf = AppendVarint(buf, v)
	}
	r := bytes.NewReader(buf)
	for i, v := range want {
		got, err := ReadVarint(r)
		require.NoError(t, err)
		if got != v {
			t.Fatalf("%d: %d incorrectly roundtripped to %d", i, v, got)
		}
	}
	_, err := ReadVarint(r)
	assert.Equal(t, io.EOF, err)
}

func TestZigZag(t *testing.T) {
	for _, v := range boundaryValues {
		assert.Equal(t, v, unzigzag(zigzag(v)))
	}
	assert.Equal(t, uint64(1), zigzag(-1))
	assert.Equal(t, uint64(2), zigzag(1))
	assert.Equal(t, uint64(math.MaxUint64), zigzag(math.MinInt64))
}

func TestVarintTruncated(t *testing.T) {
	b := AppendVarint(nil, math.MaxInt64)
	_, err := ReadVarint(bytes.NewReader(b[:len(b)-1]))
	assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)

	_, err = ReadVarint(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestVarintOverlong(t *testing.T) {
	b := bytes.Repeat([]byte{0xff}, 11)
	b = append(b, 0x01)
	_, err := ReadUvarint(bytes.NewReader(b))
	assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
}

// zigzag mirrors the mapping encoding/binary applies to signed values.
func zigzag(v int64) uint64 {
	return uint64(v>>63 ^ v<<1)
}

func unzigzag(v uint64) int64 {
	return int64(v>>1 ^ -(v & 1))
}

// varintLen returns the encoded size of v in bytes.
func varintLen(v int64) int {
	u := zigzag(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
