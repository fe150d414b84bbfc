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

// buildInitialHandshake returns a realistic initial-handshake payload
// advertising mysql_native_password with a 20-byte challenge.
func buildInitialHandshake() []byte {
	buf := []byte{10}
	buf = append(buf, "8.0.30-test"...)
	buf = append(buf, 0)
	buf = append(buf, 0x07, 0x00, 0x00, 0x00) // connection id
	buf = append(buf, []byte("AUTHDATA")...)  // part 1, 8 bytes
	buf = append(buf, 0)                      // filler
	caps := uint32(protocol.ClientProtocol41 | protocol.ClientSecureConnection | protocol.ClientPluginAuth)
	buf = append(buf, byte(caps), byte(caps>>8))
	buf = append(buf, 0x21)       // charset
	buf = append(buf, 0x02, 0x00) // status flags
	buf = append(buf, byte(caps>>16), byte(caps>>24))
	buf = append(buf, 21) // auth_plugin_data_len (8 + 13)
	buf = append(buf, make([]byte, 10)...)
	part2 := append([]byte("EXTRADATA123"), 0) // 12 bytes + NUL = 13-byte part2
	buf = append(buf, part2...)
	buf = append(buf, "mysql_native_password"...)
	buf = append(buf, 0)
	return buf
}

// okPayload builds a minimal 7-byte OK packet body.
func okPayload() []byte {
	return []byte{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
}

// dialViaPipe runs DialWithOptions against a wiretest server driven by
// script, returning the client-side Session once script completes.
// Callers must close server (which unblocks any later Session.Close)
// before the test returns; net.Pipe's Write blocks until read, so a
// Session.Close with no one left reading would hang.
func dialViaPipe(t *testing.T, script func(server *wiretest.Server)) (*Session, *wiretest.Server) {
	client, server := wiretest.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		script(server)
	}()

	opts, err := NewOptions(WithDialFunc(func(ctx context.Context, network, addr string) (net.Conn, error) {
		return client, nil
	}))
	require.NoError(t, err)

	sess, err := DialWithOptions(context.Background(), opts)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server script did not complete")
	}
	return sess, server
}

// establishPipe drives a session through handshake and the collation
// fix-up, leaving server free to script whatever comes next starting
// from a fresh command cycle (seq 0).
func establishPipe(t *testing.T) (*Session, *wiretest.Server, chan func(*wiretest.Server)) {
	client, server := wiretest.Pipe()
	next := make(chan func(*wiretest.Server))

	go func() {
		assert.NoError(t, server.SendPacket(buildInitialHandshake()))
		_, _, err := server.ReadPacket()
		assert.NoError(t, err)
		server.SetSeq(2)
		assert.NoError(t, server.SendPacket(okPayload()))
		_, _, err = server.ReadPacket() // collation fix-up
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))

		for script := range next {
			script(server)
		}
	}()

	opts, err := NewOptions(WithDialFunc(func(ctx context.Context, network, addr string) (net.Conn, error) {
		return client, nil
	}))
	require.NoError(t, err)
	sess, err := DialWithOptions(context.Background(), opts)
	require.NoError(t, err)
	return sess, server, next
}

func TestDialHandshakeNativePasswordReachesEstablished(t *testing.T) {
	sess, server := dialViaPipe(t, func(server *wiretest.Server) {
		assert.NoError(t, server.SendPacket(buildInitialHandshake()))

		_, _, err := server.ReadPacket() // handshake response, seq 1
		assert.NoError(t, err)

		server.SetSeq(2)
		assert.NoError(t, server.SendPacket(okPayload()))

		_, _, err = server.ReadPacket() // COM_QUERY: the collation fix-up
		assert.NoError(t, err)

		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))
	})
	defer sess.Close()
	defer server.Close()

	assert.Equal(t, StateEstablished, sess.State())
	assert.False(t, sess.IsClosed())
}

func TestDialHandshakeServerErrorFailsDial(t *testing.T) {
	client, server := wiretest.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		errPayload := []byte{0xff, 0x15, 0x04, '#'}
		errPayload = append(errPayload, "28000"...)
		errPayload = append(errPayload, "Access denied"...)
		_ = server.SendPacket(errPayload)
	}()

	opts, err := NewOptions(WithDialFunc(func(ctx context.Context, network, addr string) (net.Conn, error) {
		return client, nil
	}))
	require.NoError(t, err)

	_, err = DialWithOptions(context.Background(), opts)
	require.Error(t, err)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, uint16(0x0415), serverErr.Code)

	<-done
}

func TestSessionOnCloseFiresOnGracefulClose(t *testing.T) {
	sess, server := dialViaPipe(t, func(server *wiretest.Server) {
		assert.NoError(t, server.SendPacket(buildInitialHandshake()))
		_, _, err := server.ReadPacket()
		assert.NoError(t, err)
		server.SetSeq(2)
		assert.NoError(t, server.SendPacket(okPayload()))
		_, _, err = server.ReadPacket()
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))
	})
	defer server.Close()

	fired := make(chan struct{})
	sess.OnClose(func() { close(fired) })

	go func() { _, _, _ = server.ReadPacket() }() // drain COM_QUIT so Close's write completes
	require.NoError(t, sess.Close())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("close observer did not fire")
	}
}

func TestSessionOnCloseFiresOnForceClose(t *testing.T) {
	sess, server := dialViaPipe(t, func(server *wiretest.Server) {
		assert.NoError(t, server.SendPacket(buildInitialHandshake()))
		_, _, err := server.ReadPacket()
		assert.NoError(t, err)
		server.SetSeq(2)
		assert.NoError(t, server.SendPacket(okPayload()))
		_, _, err = server.ReadPacket()
		assert.NoError(t, err)
		server.SetSeq(1)
		assert.NoError(t, server.SendPacket(okPayload()))
	})
	defer sess.Close()
	defer server.Close()

	fired := make(chan struct{})
	sess.OnClose(func() { close(fired) })

	sess.forceClose()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("close observer did not fire")
	}
	assert.True(t, sess.IsClosed())
}

func TestSessionQuerySimpleSelect(t *testing.T) {
	sess, server, next := establishPipe(t)
	defer server.Close()
	defer close(next)

	next <- func(server *wiretest.Server) {
		_, _, err := server.ReadPacket() // COM_QUERY
		assert.NoError(t, err)

		server.SetSeq(1)
		colCount := []byte{1}
		assert.NoError(t, server.SendPacket(colCount))

		col := protocol.AppendLengthEncodedString(nil, "") // catalog
		col = protocol.AppendLengthEncodedString(col, "")  // schema
		col = protocol.AppendLengthEncodedString(col, "")  // table
		col = protocol.AppendLengthEncodedString(col, "")  // org table
		col = protocol.AppendLengthEncodedString(col, "n") // name
		col = protocol.AppendLengthEncodedString(col, "n") // org name
		col = protocol.AppendLengthEncodedInteger(col, 0x0c)
		col = append(col, 0x21, 0x00)                      // charset
		col = append(col, 1, 0, 0, 0)                      // column length
		col = append(col, byte(protocol.FieldTypeLongLong)) // type
		col = append(col, 0, 0)                            // flags
		col = append(col, 0)                               // decimals
		col = append(col, 0, 0)                            // filler
		assert.NoError(t, server.SendPacket(col))

		assert.NoError(t, server.SendPacket([]byte{protocol.IndicatorEOF, 0x02, 0x00}))

		row := protocol.AppendLengthEncodedString(nil, "1")
		assert.NoError(t, server.SendPacket(row))

		assert.NoError(t, server.SendPacket([]byte{protocol.IndicatorEOF, 0x02, 0x00}))
	}

	result, err := sess.Execute(context.Background(), "SELECT 1 AS n")
	require.NoError(t, err)
	rows := result.sets[0].Rows
	require.Len(t, rows, 1)
	assert.Equal(t, StateEstablished, sess.State())
}
