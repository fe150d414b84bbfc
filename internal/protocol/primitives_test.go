package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthEncodedIntegerRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 250, 251, 65535, 65536, 16777215, 16777216, 1 << 40}
	for _, v := range values {
		buf := AppendLengthEncodedInteger(nil, v)
		got, isNull, n := ReadLengthEncodedInteger(buf)
		assert.False(t, isNull)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, v, got)
	}
}

func TestReadLengthEncodedIntegerNull(t *testing.T) {
	_, isNull, n := ReadLengthEncodedInteger([]byte{0xfb})
	assert.True(t, isNull)
	assert.Equal(t, 1, n)
}

func TestLengthEncodedStringRoundTrip(t *testing.T) {
	buf := AppendLengthEncodedString(nil, "hello, \x00world")
	data, isNull, n, err := ReadLengthEncodedString(buf)
	require.NoError(t, err)
	assert.False(t, isNull)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, "hello, \x00world", string(data))
}

func TestReadLengthEncodedStringMalformed(t *testing.T) {
	_, _, _, err := ReadLengthEncodedString([]byte{0xfc, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrMalformedLenEnc)
}

func TestNullTerminated(t *testing.T) {
	s, n, ok := NullTerminated([]byte("abc\x00def"))
	assert.True(t, ok)
	assert.Equal(t, "abc", string(s))
	assert.Equal(t, 4, n)

	_, _, ok = NullTerminated([]byte("noterminator"))
	assert.False(t, ok)
}

func TestNullBitmapResultRowOffset(t *testing.T) {
	bitmap := make([]byte, NullBitmapSize(3))
	// column 1 is NULL: bit (1+2)=3 of byte 0.
	bitmap[0] |= 1 << 3
	assert.False(t, NullBitmapGet(bitmap, 0))
	assert.True(t, NullBitmapGet(bitmap, 1))
	assert.False(t, NullBitmapGet(bitmap, 2))
}

func TestParamNullBitmapNoOffset(t *testing.T) {
	bitmap := make([]byte, ParamNullBitmapSize(9))
	ParamNullBitmapSet(bitmap, 0)
	ParamNullBitmapSet(bitmap, 8)
	assert.Equal(t, byte(1), bitmap[0]&1)
	assert.Equal(t, byte(1), bitmap[1]&1)
}
