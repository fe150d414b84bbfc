package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeComQuery(t *testing.T) {
	buf := EncodeComQuery("SELECT 1")
	assert.Equal(t, byte(ComQuery), buf[0])
	assert.Equal(t, "SELECT 1", string(buf[1:]))
}

func TestEncodeComQuit(t *testing.T) {
	assert.Equal(t, []byte{byte(ComQuit)}, EncodeComQuit())
}

func TestEncodeComStmtClose(t *testing.T) {
	buf := EncodeComStmtClose(0x01020304)
	assert.Equal(t, byte(ComStmtClose), buf[0])
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf[1:])
}

func TestDecodePrepareOK(t *testing.T) {
	buf := []byte{IndicatorOK}
	buf = append(buf, 7, 0, 0, 0) // statement id
	buf = append(buf, 0, 0)       // column count
	buf = append(buf, 2, 0)       // param count
	buf = append(buf, 0)          // filler
	buf = append(buf, 0, 0)       // warning count

	ok, err := DecodePrepareOK(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 7, ok.StatementID)
	assert.EqualValues(t, 2, ok.ParamCount)
}

func TestDecodePrepareOKRejectsNonOK(t *testing.T) {
	_, err := DecodePrepareOK([]byte{0xff, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrUnexpectedPacket)
}

func TestEncodeComStmtExecuteNoParams(t *testing.T) {
	buf := EncodeComStmtExecute(1, nil)
	assert.Equal(t, byte(ComStmtExecute), buf[0])
	assert.Len(t, buf, 10)
}

func TestEncodeComStmtExecuteNullParam(t *testing.T) {
	params := []StmtExecuteParam{
		{Type: FieldTypeLong, Value: []byte{1, 2, 3, 4}},
		{Type: FieldTypeVarString, IsNull: true},
	}
	buf := EncodeComStmtExecute(5, params)

	nullBitmapPos := 10
	assert.Zero(t, buf[nullBitmapPos]&0x01)
	assert.NotZero(t, buf[nullBitmapPos]&0x02)

	typesPos := nullBitmapPos + ParamNullBitmapSize(2) + 1
	assert.Equal(t, byte(FieldTypeLong), buf[typesPos])
	assert.Equal(t, byte(FieldTypeVarString), buf[typesPos+2])

	assert.Equal(t, []byte{1, 2, 3, 4}, buf[len(buf)-4:])
}
