package mysql

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-mysql-native/mysql/internal/protocol"
	"github.com/go-mysql-native/mysql/internal/wiretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// autoHandshakeServer drives server through one handshake plus the
// collation fix-up, then answers every further command with a bare
// OK until it sees COM_QUIT or the pipe closes.
func autoHandshakeServer(t *testing.T, server *wiretest.Server) {
	assert.NoError(t, server.SendPacket(buildInitialHandshake()))
	if _, _, err := server.ReadPacket(); err != nil {
		return
	}
	server.SetSeq(2)
	if err := server.SendPacket(okPayload()); err != nil {
		return
	}
	if _, _, err := server.ReadPacket(); err != nil { // collation fix-up
		return
	}
	server.SetSeq(1)
	if err := server.SendPacket(okPayload()); err != nil {
		return
	}

	for {
		payload, _, err := server.ReadPacket()
		if err != nil {
			return
		}
		if len(payload) > 0 && payload[0] == byte(protocol.ComQuit) {
			return
		}
		server.SetSeq(1)
		if err := server.SendPacket(okPayload()); err != nil {
			return
		}
	}
}

// poolTestOptions builds Options whose DialFunc hands out a fresh
// wiretest pipe per call, each driven through a full handshake by an
// auto-responding server goroutine.
func poolTestOptions(t *testing.T) *Options {
	opts, err := NewOptions(WithDialFunc(func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, server := wiretest.Pipe()
		go autoHandshakeServer(t, server)
		return client, nil
	}))
	require.NoError(t, err)
	return opts
}

func TestPoolAcquireReleaseIdleActiveDisjoint(t *testing.T) {
	pool := NewPool(poolTestOptions(t), PoolOptions{MaxActive: 2})
	defer pool.Close()

	e, err := pool.AcquireEntry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{Idle: 0, Active: 1, Pending: 0}, pool.Status())

	pool.ReleaseEntry(e, false)
	assert.Equal(t, Status{Idle: 1, Active: 0, Pending: 0}, pool.Status())

	e2, err := pool.AcquireEntry(context.Background())
	require.NoError(t, err)
	assert.Same(t, e, e2)
	assert.Equal(t, Status{Idle: 0, Active: 1, Pending: 0}, pool.Status())
	pool.ReleaseEntry(e2, false)
}

func TestPoolAcquireRespectsMaxActive(t *testing.T) {
	pool := NewPool(poolTestOptions(t), PoolOptions{MaxActive: 1, AcquireTimeout: 30 * time.Millisecond})
	defer pool.Close()

	e, err := pool.AcquireEntry(context.Background())
	require.NoError(t, err)

	_, err = pool.AcquireEntry(context.Background())
	require.Error(t, err)
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrTimeout, clientErr.Kind)

	pool.ReleaseEntry(e, false)
}

func TestPoolCloseRejectsFurtherAcquire(t *testing.T) {
	pool := NewPool(poolTestOptions(t), PoolOptions{MaxActive: 2})

	e, err := pool.AcquireEntry(context.Background())
	require.NoError(t, err)
	pool.ReleaseEntry(e, false)

	require.NoError(t, pool.Close())

	_, err = pool.AcquireEntry(context.Background())
	require.Error(t, err)
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrConnectionClosed, clientErr.Kind)
}

func TestPoolPrunesEntryThatClosesItself(t *testing.T) {
	pool := NewPool(poolTestOptions(t), PoolOptions{MaxActive: 2})
	defer pool.Close()

	e, err := pool.AcquireEntry(context.Background())
	require.NoError(t, err)
	pool.ReleaseEntry(e, false)
	assert.Equal(t, Status{Idle: 1, Active: 0, Pending: 0}, pool.Status())

	e.Session().forceClose()

	assert.Eventually(t, func() bool {
		return pool.Status() == Status{Idle: 0, Active: 0, Pending: 0}
	}, time.Second, 5*time.Millisecond)
}

func TestPoolWithConnectionReleasesOnSuccess(t *testing.T) {
	pool := NewPool(poolTestOptions(t), PoolOptions{MaxActive: 1})
	defer pool.Close()

	err := pool.WithConnection(context.Background(), func(ctx context.Context, s *Session) error {
		assert.Equal(t, StateEstablished, s.State())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Status{Idle: 1, Active: 0, Pending: 0}, pool.Status())
}
