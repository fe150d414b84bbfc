package mysql

import (
	"context"
	"errors"
	"testing"

	"github.com/go-mysql-native/mysql/internal/wiretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionalRollsBackOnError(t *testing.T) {
	sess, server, next := establishPipe(t)
	defer server.Close()
	defer close(next)

	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // START TRANSACTION
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))
	}
	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // ROLLBACK
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))
	}

	boom := errors.New("boom")
	err := sess.Transactional(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, sess.InTransaction())
}

func TestTransactionalCommitsOnSuccess(t *testing.T) {
	sess, server, next := establishPipe(t)
	defer server.Close()
	defer close(next)

	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // START TRANSACTION
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))
	}
	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // COMMIT
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))
	}

	err := sess.Transactional(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.False(t, sess.InTransaction())
}

func TestTransactionalRejectsNesting(t *testing.T) {
	sess, server, next := establishPipe(t)
	defer server.Close()
	defer close(next)

	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // outer START TRANSACTION
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))
	}
	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // outer ROLLBACK, since the inner call errors
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))
	}

	err := sess.Transactional(context.Background(), func(ctx context.Context) error {
		return sess.Transactional(ctx, func(ctx context.Context) error { return nil })
	})
	require.Error(t, err)
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
}
