package mysql

import (
	"context"
	"testing"

	"github.com/go-mysql-native/mysql/internal/protocol"
	"github.com/go-mysql-native/mysql/internal/wiretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// preparedOK builds a minimal COM_STMT_PREPARE OK header for a
// statement with paramCount params and no result columns.
func preparedOK(stmtID uint32, paramCount uint16) []byte {
	buf := []byte{protocol.IndicatorOK}
	buf = append(buf, byte(stmtID), byte(stmtID>>8), byte(stmtID>>16), byte(stmtID>>24))
	buf = append(buf, 0, 0)                             // column count
	buf = append(buf, byte(paramCount), byte(paramCount>>8))
	buf = append(buf, 0) // filler
	buf = append(buf, 0, 0)
	return buf
}

func TestPrepareAndExecuteArityMismatch(t *testing.T) {
	sess, server, next := establishPipe(t)
	defer server.Close()
	defer close(next)

	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // COM_STMT_PREPARE
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(preparedOK(1, 1)))
		assert.NoError(t, server.SendPacket([]byte{0x00})) // param definition, unparsed
		assert.NoError(t, server.SendPacket([]byte{protocol.IndicatorEOF, 0x02, 0x00}))
	}

	stmt, err := sess.Prepare(context.Background(), "SELECT * FROM t WHERE id = ?", false)
	require.NoError(t, err)
	assert.Equal(t, 1, stmt.ParamCount())

	_, err = stmt.Execute(context.Background(), nil, 0)
	require.Error(t, err)
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
}

func TestPrepareAndExecuteInsert(t *testing.T) {
	sess, server, next := establishPipe(t)
	defer server.Close()
	defer close(next)

	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // COM_STMT_PREPARE
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(preparedOK(7, 1)))
		assert.NoError(t, server.SendPacket([]byte{0x00})) // param definition, unparsed
		assert.NoError(t, server.SendPacket([]byte{protocol.IndicatorEOF, 0x02, 0x00}))
	}
	stmt, err := sess.Prepare(context.Background(), "INSERT INTO t (v) VALUES (?)", false)
	require.NoError(t, err)

	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // COM_STMT_EXECUTE
		assert.NoError(t, err)
		ok := []byte{protocol.IndicatorOK, 1, 0, 0, 0, 0, 0}
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(ok))
	}
	result, err := stmt.Execute(context.Background(), []any{[]byte("hello")}, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.sets[0].AffectedRows)
}
