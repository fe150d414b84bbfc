package mysql

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-mysql-native/mysql/internal/protocol"
)

// ExecuteOptions tunes one execute call. The zero value runs the
// statement to completion and buffers every row.
type ExecuteOptions struct {
	// Params, when non-nil, selects mode 2 (map) or mode 3 (slice)
	// of the execute pipeline (spec.md §4.7).
	Params any
	// Iterable streams rows through ResultSet.RowsStream() instead of
	// buffering them. Forbidden together with a multi-statement SQL
	// string, since chained result sets and streaming don't compose
	// (spec.md §4.7).
	Iterable bool
	// Timeout bounds only this command's response wait; on expiry
	// the call fails with ClientError{Timeout} and the caller should
	// treat the session as suspect (spec.md §5).
	Timeout time.Duration
}

// Execute runs sql against the session, dispatching to the literal,
// named-parameter, or prepared-statement pipeline depending on
// opts.Params (spec.md §4.7).
func (s *Session) Execute(ctx context.Context, sql string, opts ...ExecuteOptions) (*Result, error) {
	var o ExecuteOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	switch params := o.Params.(type) {
	case nil:
		return s.executeLiteral(ctx, sql, o.Iterable, o.Timeout)

	case map[string]any:
		rewritten, positional, ok := rewriteNamedParams(sql, params)
		if !ok {
			return s.executeLiteral(ctx, interpolateNamed(sql, params), o.Iterable, o.Timeout)
		}
		return s.executePrepared(ctx, rewritten, positional, o.Iterable, o.Timeout)

	case []any:
		return s.executePrepared(ctx, sql, params, o.Iterable, o.Timeout)

	default:
		return nil, newClientErrorf(ErrUnsupportedParamType, "%T", o.Params)
	}
}

// queryDiscard runs sql and reads its result to completion without
// exposing it, used by the pool's idle liveness probe.
func (s *Session) queryDiscard(ctx context.Context, sql string) (*Result, error) {
	return s.executeLiteral(ctx, sql, false, 0)
}

func (s *Session) executeLiteral(ctx context.Context, sql string, iterable bool, timeout time.Duration) (*Result, error) {
	ctx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()
	if err := s.sendCommand(protocol.EncodeComQuery(sql)); err != nil {
		return nil, err
	}
	res, err := s.runTextResponse(ctx, iterable)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, newClientError(ErrTimeout)
	}
	return res, err
}

// withOptionalTimeout wraps ctx in a deadline when d > 0, returning a
// no-op cancel otherwise so callers can always defer it.
func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// rewriteNamedParams scans sql for :name placeholders outside quoted
// literals and rewrites them to positional ? markers in occurrence
// order (spec.md §4.7 mode 2). ok is false when no placeholder was
// found, telling the caller to fall back to client-side
// interpolation instead.
func rewriteNamedParams(sql string, params map[string]any) (rewritten string, positional []any, ok bool) {
	var b strings.Builder
	inSingle, inDouble := false, false
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte(c)
			i++
		case c == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteByte(c)
			i++
		case c == ':' && !inSingle && !inDouble && i+1 < len(sql) && isIdentStart(sql[i+1]):
			j := i + 1
			for j < len(sql) && isIdentByte(sql[j]) {
				j++
			}
			name := sql[i+1 : j]
			if v, found := params[name]; found {
				positional = append(positional, v)
				b.WriteByte('?')
				ok = true
			} else {
				b.WriteString(sql[i:j])
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), positional, ok
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// interpolateNamed substitutes every :name with an escaped SQL
// literal, used when the caller's map has no matching placeholders
// to rewrite positionally (spec.md §4.7 mode 2 fallback).
func interpolateNamed(sql string, params map[string]any) string {
	var b strings.Builder
	inSingle, inDouble := false, false
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte(c)
			i++
		case c == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteByte(c)
			i++
		case c == ':' && !inSingle && !inDouble && i+1 < len(sql) && isIdentStart(sql[i+1]):
			j := i + 1
			for j < len(sql) && isIdentByte(sql[j]) {
				j++
			}
			name := sql[i+1 : j]
			if v, found := params[name]; found {
				b.WriteString(sqlLiteral(v))
			} else {
				b.WriteString(sql[i:j])
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func sqlLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return "'" + escapeSQLString(x) + "'"
	case []byte:
		return "'" + escapeSQLString(string(x)) + "'"
	default:
		return "'" + escapeSQLString(strconvAny(x)) + "'"
	}
}

func strconvAny(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}

func escapeSQLString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `''`)
	return s
}

// runTextResponse drives the text-query response sub-state machine
// (spec.md §4.7, states 0-4).
func (s *Session) runTextResponse(ctx context.Context, iterable bool) (*Result, error) {
	done := s.watchContext(ctx)
	defer done()

	payload, err := s.readPacket()
	if err != nil {
		return nil, err
	}

	if protocol.ClassifyResponse(payload) == protocol.KindErr {
		return s.serverErr(payload)
	}

	result := &Result{}
	for {
		for protocol.ClassifyResponse(payload) == protocol.KindOK {
			ok, derr := protocol.DecodeOK(payload)
			if derr != nil {
				return nil, s.protoErr(derr)
			}
			result.sets = append(result.sets, &ResultSet{AffectedRows: ok.AffectedRows, LastInsertID: ok.LastInsertID})
			if ok.StatusFlags&protocol.StatusMoreResultsExists == 0 {
				s.setState(StateEstablished)
				return result, nil
			}
			if payload, err = s.readPacket(); err != nil {
				return nil, err
			}
		}
		set, more, next, err := s.readOneTextResultSet(payload, iterable)
		if err != nil {
			return nil, err
		}
		result.sets = append(result.sets, set)
		if iterable {
			return result, nil
		}
		if !more {
			s.setState(StateEstablished)
			return result, nil
		}
		payload = next
	}
}

// readOneTextResultSet decodes one result set's column definitions,
// leading EOF, and (in buffered mode) its rows, per the text-query
// response sub-state machine (spec.md §4.7, states 0-4). more
// reports whether SERVER_MORE_RESULTS_EXISTS chained another result
// set, and next carries that set's already-read header packet.
func (s *Session) readOneTextResultSet(header []byte, iterable bool) (set *ResultSet, more bool, next []byte, err error) {
	colCount, _, n := protocol.ReadLengthEncodedInteger(header)
	if n == 0 {
		return nil, false, nil, s.protoErr(nil)
	}

	cols := make([]*protocol.ColumnDefinition, colCount)
	for i := range cols {
		p, err := s.readPacket()
		if err != nil {
			return nil, false, nil, err
		}
		col, derr := protocol.DecodeColumnDefinition(p)
		if derr != nil {
			return nil, false, nil, s.protoErr(derr)
		}
		cols[i] = col
	}

	if _, err := s.expectEOF(); err != nil {
		return nil, false, nil, err
	}

	set = &ResultSet{Columns: cols}
	if iterable {
		s.setState(StateEstablished)
		ch := make(chan Row, 16)
		set.stream = ch
		go s.streamTextRows(cols, ch)
		return set, false, nil, nil
	}

	for {
		rp, err := s.readPacket()
		if err != nil {
			return nil, false, nil, err
		}
		if protocol.ClassifyResponse(rp) == protocol.KindEOF {
			eof, derr := protocol.DecodeEOF(rp)
			if derr != nil {
				return nil, false, nil, s.protoErr(derr)
			}
			if eof.StatusFlags&protocol.StatusMoreResultsExists != 0 {
				nextHeader, err := s.readPacket()
				if err != nil {
					return nil, false, nil, err
				}
				return set, true, nextHeader, nil
			}
			return set, false, nil, nil
		}
		cells, derr := protocol.DecodeTextRow(rp, cols)
		if derr != nil {
			return nil, false, nil, s.protoErr(derr)
		}
		set.Rows = append(set.Rows, newTextRow(cols, cells))
	}
}

// streamTextRows feeds rows from the socket into ch until EOF,
// returning the session to Established.
func (s *Session) streamTextRows(cols []*protocol.ColumnDefinition, ch chan Row) {
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
		cells, err := protocol.DecodeTextRow(rp, cols)
		if err != nil {
			s.forceClose()
			return
		}
		ch <- newTextRow(cols, cells)
	}
}

// expectEOF reads one packet and requires it to classify as EOF.
func (s *Session) expectEOF() (*protocol.EOFPacket, error) {
	p, err := s.readPacket()
	if err != nil {
		return nil, err
	}
	if protocol.ClassifyResponse(p) != protocol.KindEOF {
		return nil, s.protoErr(nil)
	}
	eof, derr := protocol.DecodeEOF(p)
	if derr != nil {
		return nil, s.protoErr(derr)
	}
	return eof, nil
}

func (s *Session) protoErr(cause error) error {
	s.forceClose()
	return newProtocolError(ErrUnexpectedPacket, cause)
}

func (s *Session) serverErr(payload []byte) (*Result, error) {
	ep, derr := protocol.DecodeErr(payload)
	if derr != nil {
		return nil, s.protoErr(derr)
	}
	s.setState(StateEstablished)
	return nil, &ServerError{Code: ep.Code, Message: ep.Message, ReadOnly: isReadOnlyError(ep.Code)}
}

// isReadOnlyError reports whether code indicates the server rejected
// a write because the connection landed on a read-only replica
// during failover (SPEC_FULL.md "Supplemented features").
func isReadOnlyError(code uint16) bool {
	switch code {
	case 1792, 1290:
		return true
	default:
		return false
	}
}

