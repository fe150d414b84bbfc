package mysql

import "fmt"

// ServerError is a MySQL server-originated error (spec.md §7). It is
// non-fatal to the session: the session returns to Established and
// may keep serving commands.
type ServerError struct {
	Code    uint16
	Message string
	// ReadOnly is set when the server error indicates the connection
	// landed on a read-only replica mid-failover (MySQL error codes
	// 1792/1290), letting a pool retry predicate treat it as
	// retryable without parsing Message (SPEC_FULL.md, "Supplemented
	// features").
	ReadOnly bool
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("mysql: server error %d: %s", e.Code, e.Message)
}

// ClientErrorKind enumerates caller-misuse / environment failures
// (spec.md §7).
type ClientErrorKind int

const (
	ErrConnectionClosed ClientErrorKind = iota
	ErrNotConnected
	ErrNestedTransaction
	ErrArityMismatch
	ErrUnsupportedParamType
	ErrTimeout
	ErrUnsupportedAuthPlugin
	ErrTlsUnsupported
	ErrInsecureAuth
	ErrCommandInFlight
	ErrPacketTooLarge
	ErrAuthPluginNotAllowed
)

var clientErrorText = map[ClientErrorKind]string{
	ErrConnectionClosed:     "connection is closed",
	ErrNotConnected:         "session is not connected",
	ErrNestedTransaction:    "transactional call nested on a session already in a transaction",
	ErrArityMismatch:        "parameter count does not match prepared statement",
	ErrUnsupportedParamType: "unsupported parameter type",
	ErrTimeout:              "command timed out",
	ErrUnsupportedAuthPlugin: "unsupported authentication plugin",
	ErrTlsUnsupported:       "TLS requested but server does not support it",
	ErrInsecureAuth:         "plaintext authentication refused on an unsecured transport",
	ErrCommandInFlight:      "another command is already in flight on this session",
	ErrPacketTooLarge:       "payload exceeds configured max_allowed_packet",
	ErrAuthPluginNotAllowed: "auth plugin disallowed by session options",
}

// ClientError is a caller-misuse or environmental failure (spec.md
// §7).
type ClientError struct {
	Kind ClientErrorKind
	// Detail, if non-empty, is appended to the kind's stock message
	// (e.g. the arity mismatch's expected/actual counts).
	Detail string
}

func (e *ClientError) Error() string {
	msg := clientErrorText[e.Kind]
	if e.Detail == "" {
		return "mysql: " + msg
	}
	return "mysql: " + msg + ": " + e.Detail
}

// Is supports errors.Is(err, &ClientError{Kind: ...}) comparisons
// against the kind alone.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Kind == e.Kind
}

func newClientError(kind ClientErrorKind) *ClientError {
	return &ClientError{Kind: kind}
}

func newClientErrorf(kind ClientErrorKind, format string, args ...any) *ClientError {
	return &ClientError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ProtocolErrorKind enumerates wire-format deviations (spec.md §7).
type ProtocolErrorKind int

const (
	ErrUnexpectedPacket ProtocolErrorKind = iota
	ErrBadLengthEncoding
	ErrBadBinaryRowTag
	ErrUnimplementedBinaryType
	ErrBadConversion
)

var protocolErrorText = map[ProtocolErrorKind]string{
	ErrUnexpectedPacket:        "unexpected packet for current state",
	ErrBadLengthEncoding:       "malformed length-encoded value",
	ErrBadBinaryRowTag:         "malformed binary row tag",
	ErrUnimplementedBinaryType: "unimplemented binary row type",
	ErrBadConversion:           "unsupported typed column conversion",
}

// ProtocolError is any deviation from the expected wire shape
// (spec.md §7). One raised while reading or writing the wire is fatal
// to the session: it forces the session closed. ErrBadConversion,
// returned by the Row typed accessors, is not tied to a session and
// closes nothing.
type ProtocolError struct {
	Kind  ProtocolErrorKind
	Cause error
}

func (e *ProtocolError) Error() string {
	msg := protocolErrorText[e.Kind]
	if e.Cause != nil {
		return fmt.Sprintf("mysql: protocol error: %s: %v", msg, e.Cause)
	}
	return "mysql: protocol error: " + msg
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == e.Kind
}

func newProtocolError(kind ProtocolErrorKind, cause error) *ProtocolError {
	return &ProtocolError{Kind: kind, Cause: cause}
}
