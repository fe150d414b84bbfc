package mysql

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-mysql-native/mysql/internal/protocol"
)

// State is a node in the session state machine (spec.md §5).
type State int

const (
	StateFresh State = iota
	StateAwaitInitialHandshake
	StateHandshakeResponseSent
	StateEstablished
	StateAwaitingCommandResponse
	StateQuitSent
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateAwaitInitialHandshake:
		return "await_initial_handshake"
	case StateHandshakeResponseSent:
		return "handshake_response_sent"
	case StateEstablished:
		return "established"
	case StateAwaitingCommandResponse:
		return "awaiting_command_response"
	case StateQuitSent:
		return "quit_sent"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one MySQL protocol session over a single net.Conn. It
// is not safe for concurrent use: the wire protocol is strictly
// request/response, so callers serialize their own access (spec.md
// §5). A Session is normally obtained from the Pool, not dialed
// directly, except in tests.
type Session struct {
	opts *Options
	conn net.Conn

	mu    sync.Mutex
	state State
	seq   uint8

	connectionID  uint32
	serverVersion string
	capabilities  protocol.CapabilityFlag
	charset       byte
	statusFlags   protocol.StatusFlag
	warnings      uint16
	lastInsertID  uint64
	affectedRows  uint64
	inTransaction bool

	stmtCache *statementCache

	closeObsMu sync.Mutex
	closeObs   []func()

	closed   atomic.Bool
	closech  chan struct{}
	watcher  chan context.Context
	finished chan struct{}
}

// Dial opens a new Session and runs the handshake to completion,
// leaving it in StateEstablished.
func Dial(ctx context.Context, opts ...Option) (*Session, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return DialWithOptions(ctx, o)
}

// DialWithOptions is Dial for callers that already built an Options,
// e.g. via LoadOptions or a Pool's shared template.
func DialWithOptions(ctx context.Context, o *Options) (*Session, error) {
	conn, err := o.dial(ctx)
	if err != nil {
		return nil, err
	}
	s := &Session{
		opts:    o,
		conn:    conn,
		state:   StateFresh,
		closech: make(chan struct{}),
	}
	s.stmtCache = newStatementCache(s, 32)
	s.startWatcher()
	if err := s.handshake(ctx); err != nil {
		s.forceClose()
		return nil, err
	}
	return s, nil
}

func (s *Session) log(v ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Print(v...)
	}
}

// State returns the session's current state machine node.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// requireState returns a ClientError unless the session is currently
// in one of want.
func (s *Session) requireState(want ...State) error {
	s.mu.Lock()
	cur := s.state
	s.mu.Unlock()
	for _, w := range want {
		if cur == w {
			return nil
		}
	}
	if cur == StateClosed {
		return newClientError(ErrConnectionClosed)
	}
	if cur == StateAwaitingCommandResponse {
		return newClientError(ErrCommandInFlight)
	}
	return newClientError(ErrNotConnected)
}

func (s *Session) nextSeq() uint8 {
	v := s.seq
	s.seq++
	return v
}

func (s *Session) resetSeq() { s.seq = 0 }

// readPacket reads one framed packet, applying the configured read
// timeout and forcing the session closed on any transport error
// (spec.md §7: a ProtocolError is always fatal).
func (s *Session) readPacket() ([]byte, error) {
	if s.opts.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
	payload, seq, err := protocol.ReadPacket(s.conn)
	if err != nil {
		s.forceClose()
		return nil, newProtocolError(ErrUnexpectedPacket, err)
	}
	if seq != s.seq {
		s.forceClose()
		return nil, newProtocolError(ErrUnexpectedPacket, errSeqMismatch)
	}
	s.seq++
	return payload, nil
}

// writePacket frames and writes payload using the session's current
// sequence id. It rejects a payload larger than the configured
// MaxAllowedPacket before attempting to write it, since this client
// does not fragment a logical payload across more than one packet
// (spec.md §4.1, §4.2).
func (s *Session) writePacket(payload []byte) error {
	if s.opts.MaxAllowedPacket > 0 && len(payload) > s.opts.MaxAllowedPacket {
		return newClientErrorf(ErrPacketTooLarge, "payload %d bytes exceeds max_allowed_packet %d", len(payload), s.opts.MaxAllowedPacket)
	}
	if s.opts.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	seq := s.nextSeq()
	if err := protocol.WritePacket(s.conn, payload, seq); err != nil {
		s.forceClose()
		return newProtocolError(ErrUnexpectedPacket, err)
	}
	return nil
}

var errSeqMismatch = &protocolSeqError{}

type protocolSeqError struct{}

func (*protocolSeqError) Error() string { return "protocol: packet sequence id out of order" }

// sendCommand resets the sequence counter to 0 (a new command cycle,
// spec.md §4.1) and writes payload as the first packet.
func (s *Session) sendCommand(payload []byte) error {
	s.resetSeq()
	if err := s.requireState(StateEstablished); err != nil {
		return err
	}
	s.setState(StateAwaitingCommandResponse)
	if err := s.writePacket(payload); err != nil {
		return err
	}
	return nil
}

// OnClose registers fn to run when the session closes, whether by a
// graceful Close or a forced close after a transport/protocol failure
// (spec.md §3, §4.6). Each observer runs at most once, on its own
// goroutine, since forceClose can itself be reached from code holding
// a lock an observer needs (e.g. a pool retiring an entry while
// walking its idle list) — firing inline would risk a reentrant
// deadlock. A pool holds no owning pointer back to its sessions; it
// uses this to learn when one of its entries has died and remove it
// (spec.md §9, "Back references from callbacks").
func (s *Session) OnClose(fn func()) {
	s.closeObsMu.Lock()
	s.closeObs = append(s.closeObs, fn)
	s.closeObsMu.Unlock()
}

func (s *Session) fireCloseObservers() {
	s.closeObsMu.Lock()
	obs := s.closeObs
	s.closeObs = nil
	s.closeObsMu.Unlock()
	for _, fn := range obs {
		go fn()
	}
}

// forceClose closes the transport immediately and marks the session
// Closed, without attempting a clean COM_QUIT. Used after any
// ProtocolError or transport failure.
func (s *Session) forceClose() {
	if s.closed.CompareAndSwap(false, true) {
		s.setState(StateClosed)
		close(s.closech)
		_ = s.conn.Close()
		if s.stmtCache != nil {
			s.stmtCache.Purge()
		}
		s.fireCloseObservers()
	}
}

// Close sends COM_QUIT and closes the underlying connection. It
// tolerates the server closing the socket first.
func (s *Session) Close() error {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st == StateClosed {
		return nil
	}
	if st == StateEstablished {
		s.resetSeq()
		s.setState(StateQuitSent)
		_ = s.writePacket(protocol.EncodeComQuit())
	}
	s.forceClose()
	return nil
}

// IsClosed reports whether the session has been force-closed or had
// Close called on it.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Ping performs the liveness probe the pool uses before handing an
// idle session to a caller: SELECT 1, discarding the result (spec.md
// §6, SPEC_FULL.md "stale-connection liveness probe").
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.queryDiscard(ctx, "SELECT 1")
	return err
}

// startWatcher launches the goroutine that force-closes the session
// when a context passed to watchContext is cancelled mid-command,
// mirroring the teacher's cancellation watcher.
func (s *Session) startWatcher() {
	watcher := make(chan context.Context, 1)
	s.watcher = watcher
	finished := make(chan struct{})
	s.finished = finished
	go func() {
		for {
			var ctx context.Context
			select {
			case ctx = <-watcher:
			case <-s.closech:
				return
			}
			select {
			case <-ctx.Done():
				s.forceClose()
			case <-finished:
			case <-s.closech:
				return
			}
		}
	}()
}

// watchContext arranges for ctx's cancellation to force-close the
// session while a blocking command is in flight.
func (s *Session) watchContext(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	select {
	case s.watcher <- ctx:
	default:
	}
	return func() {
		select {
		case s.finished <- struct{}{}:
		default:
		}
	}
}
