// Package wiretest provides an in-memory net.Conn pair driven by a
// scripted sequence of server-side packets, letting the session
// state machine and pool be exercised without a live MySQL server.
package wiretest

import (
	"net"
	"sync"

	"github.com/go-mysql-native/mysql/internal/protocol"
)

// Server is the scripted half of a wiretest pipe: it feeds
// pre-built packets to the client side and records whatever the
// client writes back.
type Server struct {
	conn net.Conn

	mu  sync.Mutex
	seq uint8
}

// Pipe returns a connected (client, server) pair. Give client to the
// code under test and drive server from the test body.
func Pipe() (client net.Conn, server *Server) {
	c, s := net.Pipe()
	return c, &Server{conn: s}
}

// Conn exposes the underlying net.Conn for direct reads, e.g. to
// assert on raw bytes the client wrote.
func (s *Server) Conn() net.Conn { return s.conn }

// SendPacket writes payload as one framed packet using the server's
// internal sequence counter, then advances it.
func (s *Server) SendPacket(payload []byte) error {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	s.mu.Unlock()
	framed, err := protocol.EncodePacket(payload, seq)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(framed)
	return err
}

// SendRaw writes b verbatim, bypassing packet framing — used to
// script malformed-packet test cases.
func (s *Server) SendRaw(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}

// ResetSeq resets the server's outgoing sequence counter, mirroring
// a fresh command cycle (spec.md §4.1: sequence ids restart at 0 on
// each new command).
func (s *Server) ResetSeq() { s.mu.Lock(); s.seq = 0; s.mu.Unlock() }

// SetSeq sets the server's outgoing sequence counter directly, used
// by tests to skip over the sequence ids the client consumed writing
// its own packets in between two scripted server sends.
func (s *Server) SetSeq(seq uint8) { s.mu.Lock(); s.seq = seq; s.mu.Unlock() }

// ReadPacket blocks for one framed packet written by the client and
// returns its payload and sequence id.
func (s *Server) ReadPacket() (payload []byte, seq uint8, err error) {
	header := make([]byte, 4)
	if _, err := readFull(s.conn, header); err != nil {
		return nil, 0, err
	}
	length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	seq = header[3]
	payload = make([]byte, length)
	if length > 0 {
		if _, err := readFull(s.conn, payload); err != nil {
			return nil, 0, err
		}
	}
	return payload, seq, nil
}

func readFull(c net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := c.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Close closes the server side of the pipe.
func (s *Server) Close() error { return s.conn.Close() }
