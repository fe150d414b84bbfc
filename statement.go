package mysql

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-mysql-native/mysql/internal/protocol"
)

// PreparedStatement is a server-side prepared statement bound to the
// session that created it (spec.md §3). Using one after its owning
// session has closed fails with ClientError{ConnectionClosed}.
type PreparedStatement struct {
	session    *Session
	id         uint32
	paramCount uint16
	colCount   uint16
	iterable   bool
}

// ParamCount returns the number of placeholders the server reported
// for this statement.
func (p *PreparedStatement) ParamCount() int { return int(p.paramCount) }

// Prepare sends COM_STMT_PREPARE and returns the resulting statement
// (spec.md §4.7, prepare()).
func (s *Session) Prepare(ctx context.Context, sql string, iterable bool) (*PreparedStatement, error) {
	if err := s.sendCommand(protocol.EncodeComStmtPrepare(sql)); err != nil {
		return nil, err
	}

	payload, err := s.readPacket()
	if err != nil {
		return nil, err
	}
	if protocol.ClassifyResponse(payload) == protocol.KindErr {
		_, err := s.serverErr(payload)
		return nil, err
	}

	ok, derr := protocol.DecodePrepareOK(payload)
	if derr != nil {
		return nil, s.protoErr(derr)
	}

	if err := s.skipDefinitions(int(ok.ParamCount)); err != nil {
		return nil, err
	}
	if err := s.skipDefinitions(int(ok.ColumnCount)); err != nil {
		return nil, err
	}

	s.setState(StateEstablished)
	return &PreparedStatement{
		session:    s,
		id:         ok.StatementID,
		paramCount: ok.ParamCount,
		colCount:   ok.ColumnCount,
		iterable:   iterable,
	}, nil
}

// skipDefinitions consumes n definition packets followed by one EOF,
// per spec.md §4.7's "parameter and column definitions are consumed
// but not exposed". No EOF is read when n is 0, matching real
// servers that omit the trailing EOF for an empty block.
func (s *Session) skipDefinitions(n int) error {
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		if _, err := s.readPacket(); err != nil {
			return err
		}
	}
	if _, err := s.expectEOF(); err != nil {
		return err
	}
	return nil
}

// Close sends COM_STMT_CLOSE for this statement. The server sends no
// response to this command.
func (p *PreparedStatement) Close() error {
	if p.session.IsClosed() {
		return nil
	}
	p.session.resetSeq()
	return p.session.writePacket(protocol.EncodeComStmtClose(p.id))
}

// Execute binds params and runs COM_STMT_EXECUTE (spec.md §4.7,
// binary parameter encoding).
func (p *PreparedStatement) Execute(ctx context.Context, params []any, timeout time.Duration) (*Result, error) {
	if len(params) != int(p.paramCount) {
		return nil, newClientErrorf(ErrArityMismatch, "expected %d, got %d", p.paramCount, len(params))
	}

	wireParams := make([]protocol.StmtExecuteParam, len(params))
	for i, v := range params {
		wp, err := bindParam(v)
		if err != nil {
			return nil, err
		}
		wireParams[i] = wp
	}

	s := p.session
	ctx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()
	if err := s.sendCommand(protocol.EncodeComStmtExecute(p.id, wireParams)); err != nil {
		return nil, err
	}
	res, err := s.runBinaryResponse(ctx, p.iterable)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, newClientError(ErrTimeout)
	}
	return res, err
}

func bindParam(v any) (protocol.StmtExecuteParam, error) {
	ft, unsigned, ok := protocol.InferParamType(v)
	if !ok {
		return protocol.StmtExecuteParam{}, newClientErrorf(ErrUnsupportedParamType, "%T", v)
	}
	if v == nil {
		return protocol.StmtExecuteParam{Type: ft, IsNull: true}, nil
	}

	var value []byte
	switch x := v.(type) {
	case bool:
		if x {
			value = []byte{1}
		} else {
			value = []byte{0}
		}
	case int, int8, int16, int32, int64:
		value = protocol.EncodeBinaryInt(ft, toInt64Param(x))
	case uint, uint8, uint16, uint32, uint64:
		value = protocol.EncodeBinaryUint64(toUint64Param(x))
	case float32:
		value = protocol.EncodeBinaryDouble(float64(x))
	case float64:
		value = protocol.EncodeBinaryDouble(x)
	case string:
		value = protocol.EncodeBinaryLengthEncodedBytes([]byte(x))
	case []byte:
		value = protocol.EncodeBinaryLengthEncodedBytes(x)
	case time.Time:
		value = protocol.EncodeBinaryDateTime(x)
	default:
		return protocol.StmtExecuteParam{}, newClientErrorf(ErrUnsupportedParamType, "%T", v)
	}
	return protocol.StmtExecuteParam{Type: ft, Value: value, Unsigned: unsigned}, nil
}

func toInt64Param(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	default:
		return 0
	}
}

func toUint64Param(v any) uint64 {
	switch x := v.(type) {
	case uint:
		return uint64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	default:
		return 0
	}
}

// runBinaryResponse drives the binary-execute response sub-state
// machine. Rows decode through the binary-row codec, and unlike the
// text one it reads a single result set: SERVER_MORE_RESULTS_EXISTS is
// not followed (spec.md §4.7).
func (s *Session) runBinaryResponse(ctx context.Context, iterable bool) (*Result, error) {
	done := s.watchContext(ctx)
	defer done()

	payload, err := s.readPacket()
	if err != nil {
		return nil, err
	}
	if protocol.ClassifyResponse(payload) == protocol.KindOK {
		ok, derr := protocol.DecodeOK(payload)
		if derr != nil {
			return nil, s.protoErr(derr)
		}
		s.setState(StateEstablished)
		return &Result{sets: []*ResultSet{{AffectedRows: ok.AffectedRows, LastInsertID: ok.LastInsertID}}}, nil
	}
	if protocol.ClassifyResponse(payload) == protocol.KindErr {
		return s.serverErr(payload)
	}

	colCount, _, n := protocol.ReadLengthEncodedInteger(payload)
	if n == 0 {
		return nil, s.protoErr(nil)
	}
	cols := make([]*protocol.ColumnDefinition, colCount)
	for i := range cols {
		p, err := s.readPacket()
		if err != nil {
			return nil, err
		}
		col, derr := protocol.DecodeColumnDefinition(p)
		if derr != nil {
			return nil, s.protoErr(derr)
		}
		cols[i] = col
	}
	if _, err := s.expectEOF(); err != nil {
		return nil, err
	}

	set := &ResultSet{Columns: cols}
	result := &Result{sets: []*ResultSet{set}}

	if iterable {
		s.setState(StateEstablished)
		ch := make(chan Row, 16)
		set.stream = ch
		go s.streamBinaryRows(cols, ch)
		return result, nil
	}

	for {
		rp, err := s.readPacket()
		if err != nil {
			return nil, err
		}
		if protocol.ClassifyResponse(rp) == protocol.KindEOF {
			if _, derr := protocol.DecodeEOF(rp); derr != nil {
				return nil, s.protoErr(derr)
			}
			s.setState(StateEstablished)
			return result, nil
		}
		cells, derr := protocol.DecodeBinaryRow(rp, cols, s.opts.Loc)
		if derr != nil {
			return nil, s.protoErr(derr)
		}
		set.Rows = append(set.Rows, newBinaryRow(cols, cells))
	}
}

func (s *Session) streamBinaryRows(cols []*protocol.ColumnDefinition, ch chan Row) {
	defer close(ch)
	for {
		rp, err := s.readPacket()
		if err != nil {
			return
		}
		if protocol.ClassifyResponse(rp) == protocol.KindEOF {
			s.setState(StateEstablished)
			return
		}
		cells, err := protocol.DecodeBinaryRow(rp, cols, s.opts.Loc)
		if err != nil {
			s.forceClose()
			return
		}
		ch <- newBinaryRow(cols, cells)
	}
}

// executePrepared obtains (or creates) a cached prepared statement
// for (sql, iterable) and executes it with params, implementing
// spec.md §4.7 mode 3.
func (s *Session) executePrepared(ctx context.Context, sql string, params []any, iterable bool, timeout time.Duration) (*Result, error) {
	stmt, err := s.stmtCache.getOrPrepare(ctx, sql, iterable)
	if err != nil {
		return nil, err
	}
	if len(params) != stmt.ParamCount() {
		return nil, newClientErrorf(ErrArityMismatch, "expected %d, got %d", stmt.ParamCount(), len(params))
	}
	return stmt.Execute(ctx, params, timeout)
}

// statementCache is the bounded-32 LRU of auto-prepared statements
// keyed by (iterable, sql), evicting the least-recently-used entry
// via an asynchronous COM_STMT_CLOSE (spec.md §4.7).
type statementCache struct {
	session *Session
	lru     *lru.Cache[stmtCacheKey, *PreparedStatement]
}

type stmtCacheKey struct {
	iterable bool
	sql      string
}

func newStatementCache(s *Session, capacity int) *statementCache {
	c := &statementCache{session: s}
	l, _ := lru.NewWithEvict(capacity, func(_ stmtCacheKey, stmt *PreparedStatement) {
		go stmt.Close()
	})
	c.lru = l
	return c
}

func (c *statementCache) getOrPrepare(ctx context.Context, sql string, iterable bool) (*PreparedStatement, error) {
	key := stmtCacheKey{iterable: iterable, sql: sql}
	if stmt, ok := c.lru.Get(key); ok {
		return stmt, nil
	}
	stmt, err := c.session.Prepare(ctx, sql, iterable)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, stmt)
	return stmt, nil
}

// Purge closes every cached statement, used when the session closes.
func (c *statementCache) Purge() {
	c.lru.Purge()
}
