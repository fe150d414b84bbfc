package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePacketRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01},
		bytes.Repeat([]byte{0xAB}, 1000),
	}
	for _, payload := range payloads {
		framed, err := EncodePacket(payload, 7)
		require.NoError(t, err)

		got, seq, err := ReadPacket(bytes.NewReader(framed))
		require.NoError(t, err)
		assert.Equal(t, uint8(7), seq)
		assert.Equal(t, payload, got)
	}
}

func TestEncodePacketTooLarge(t *testing.T) {
	_, err := EncodePacket(make([]byte, MaxPacketSize+1), 0)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestFramerFeedSplitAcrossChunks(t *testing.T) {
	framed, err := EncodePacket([]byte("hello world"), 3)
	require.NoError(t, err)

	f := NewFramer()
	payloads, seqIDs := f.Feed(framed[:2])
	assert.Empty(t, payloads)
	assert.Equal(t, 2, f.Pending())

	payloads, seqIDs = f.Feed(framed[2:])
	require.Len(t, payloads, 1)
	require.Len(t, seqIDs, 1)
	assert.Equal(t, []byte("hello world"), payloads[0])
	assert.Equal(t, byte(3), seqIDs[0])
	assert.Equal(t, 0, f.Pending())
}

func TestFramerFeedMultiplePacketsInOneChunk(t *testing.T) {
	a, err := EncodePacket([]byte("one"), 0)
	require.NoError(t, err)
	b, err := EncodePacket([]byte("two"), 1)
	require.NoError(t, err)

	f := NewFramer()
	payloads, seqIDs := f.Feed(append(a, b...))
	require.Len(t, payloads, 2)
	assert.Equal(t, []byte("one"), payloads[0])
	assert.Equal(t, []byte("two"), payloads[1])
	assert.Equal(t, []byte{0, 1}, seqIDs)
}

func TestWritePacketWritesFramedBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, []byte("ping"), 2))

	payload, seq, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), seq)
	assert.Equal(t, []byte("ping"), payload)
}
