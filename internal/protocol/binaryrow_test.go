package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBinaryRowNullBitmapOffset(t *testing.T) {
	cols := []*ColumnDefinition{
		{Type: FieldTypeLong},
		{Type: FieldTypeLong},
	}
	// 2 columns -> bitmap is 1 byte, column 1 NULL -> bit (1+2)=3.
	data := []byte{0x00, 0x08}
	data = append(data, 0, 0, 0, 0) // column 0 value = 0

	cells, err := DecodeBinaryRow(data, cols, time.UTC)
	require.NoError(t, err)
	assert.False(t, cells[0].IsNull)
	assert.True(t, cells[1].IsNull)
}

func TestDecodeBinaryRowDateTime(t *testing.T) {
	cols := []*ColumnDefinition{{Type: FieldTypeDateTime}}
	data := []byte{0x00, 0x00}
	data = append(data, 7, 0xe6, 0x07, 1, 15, 10, 30, 0) // 2022-01-15 10:30:00
	cells, err := DecodeBinaryRow(data, cols, time.UTC)
	require.NoError(t, err)
	require.True(t, cells[0].HasTime)
	assert.Equal(t, 2022, cells[0].Time.Year())
	assert.Equal(t, time.Month(1), cells[0].Time.Month())
	assert.Equal(t, 10, cells[0].Time.Hour())
}

func TestEncodeBinaryDateTimeZeroValue(t *testing.T) {
	assert.Equal(t, []byte{0}, EncodeBinaryDateTime(time.Time{}))
}

func TestEncodeBinaryIntWidths(t *testing.T) {
	assert.Len(t, EncodeBinaryInt(FieldTypeTiny, 5), 1)
	assert.Len(t, EncodeBinaryInt(FieldTypeShort, 5), 2)
	assert.Len(t, EncodeBinaryInt(FieldTypeLong, 5), 4)
	assert.Len(t, EncodeBinaryInt(FieldTypeLongLong, 5), 8)
}

func TestDecodeBinaryRowUnimplementedType(t *testing.T) {
	cols := []*ColumnDefinition{{Type: 0x7a}} // not a real wire type in this decoder
	data := []byte{0x00, 0x00}
	_, err := DecodeBinaryRow(data, cols, time.UTC)
	assert.ErrorIs(t, err, ErrUnimplementedBinaryType)
}
