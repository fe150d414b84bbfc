package mysql

import (
	"context"
	"crypto/tls"

	"github.com/go-mysql-native/mysql/internal/auth"
	"github.com/go-mysql-native/mysql/internal/protocol"
)

const clientCapabilities = protocol.ClientProtocol41 |
	protocol.ClientSecureConnection |
	protocol.ClientPluginAuth |
	protocol.ClientPluginAuthLenEncClientData |
	protocol.ClientMultiStatements |
	protocol.ClientMultiResults

// handshake runs the connect/auth sequence (spec.md §5, §4.2, §4.3)
// to completion, leaving the session Established.
func (s *Session) handshake(ctx context.Context) error {
	s.setState(StateAwaitInitialHandshake)

	payload, seq, err := protocol.ReadPacket(s.conn)
	if err != nil {
		return newProtocolError(ErrUnexpectedPacket, err)
	}
	s.seq = seq + 1

	if protocol.ClassifyResponse(payload) == protocol.KindErr {
		ep, derr := protocol.DecodeErr(payload)
		if derr != nil {
			return newProtocolError(ErrUnexpectedPacket, derr)
		}
		return &ServerError{Code: ep.Code, Message: ep.Message}
	}

	ih, err := protocol.DecodeInitialHandshake(payload)
	if err != nil {
		return newProtocolError(ErrUnexpectedPacket, err)
	}
	s.connectionID = ih.ConnectionID
	s.serverVersion = ih.ServerVersion
	s.charset = ih.Charset
	s.statusFlags = ih.StatusFlags

	wantTLS := s.opts.TLS != nil
	if wantTLS && ih.Capabilities&protocol.ClientSSL == 0 {
		if !s.opts.AllowFallbackToPlaintext {
			return newClientError(ErrTlsUnsupported)
		}
		wantTLS = false
	}

	caps := clientCapabilities
	if wantTLS {
		caps |= protocol.ClientSSL
	}
	if s.opts.DBName != "" {
		caps |= protocol.ClientConnectWithDB
	}
	if len(s.opts.ConnectAttrs) > 0 {
		caps |= protocol.ClientConnectAttrs
	}
	s.capabilities = caps

	pluginName := ih.AuthPluginName
	if pluginName == "" {
		pluginName = "mysql_native_password"
	}
	authResponse, err := s.scramble(pluginName, ih.AuthPluginData)
	if err != nil {
		return err
	}

	if wantTLS {
		sslReq := protocol.EncodeSSLRequest(protocol.SSLRequest{
			Capabilities:  caps,
			Charset:       ih.Charset,
			MaxPacketSize: uint32(s.opts.MaxAllowedPacket),
		})
		if err := protocol.WritePacket(s.conn, sslReq, 1); err != nil {
			return newProtocolError(ErrUnexpectedPacket, err)
		}
		tlsConn := tls.Client(s.conn, s.opts.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return newProtocolError(ErrUnexpectedPacket, err)
		}
		s.conn = tlsConn
		s.seq = 2
	} else {
		s.seq = 1
	}

	resp := protocol.HandshakeResponse{
		Capabilities:   caps,
		Charset:        ih.Charset,
		MaxPacketSize:  uint32(s.opts.MaxAllowedPacket),
		User:           s.opts.User,
		AuthResponse:   authResponse,
		Database:       s.opts.DBName,
		AuthPluginName: pluginName,
		ConnectAttrs:   s.opts.ConnectAttrs,
	}
	if err := s.writePacket(protocol.EncodeHandshakeResponse(resp)); err != nil {
		return err
	}
	s.setState(StateHandshakeResponseSent)

	return s.completeAuth(ctx)
}

// fixCollation runs once per handshake, right after the session
// reaches Established: it fixes the connection collation to the
// configured value and forces character_set_client,
// character_set_connection, and character_set_results to utf8mb4
// regardless of what the server negotiated in the initial handshake
// (spec.md §4.6).
func (s *Session) fixCollation(ctx context.Context) error {
	collation := s.opts.Collation
	if collation == "" {
		collation = "utf8mb4_general_ci"
	}
	stmt := "SET character_set_client = utf8mb4, character_set_connection = utf8mb4, " +
		"character_set_results = utf8mb4, collation_connection = " + sqlLiteral(collation)
	_, err := s.queryDiscard(ctx, stmt)
	return err
}

// transportIsSecure reports whether the current transport is one
// caching_sha2_password's full-auth cleartext step may run over: TLS,
// or a Unix domain socket, which MySQL and this client both treat as
// secure since it never leaves the local host (spec.md §4.3).
func (s *Session) transportIsSecure() bool {
	if _, isTLS := s.conn.(*tls.Conn); isTLS {
		return true
	}
	return s.opts.Net == "unix"
}

// scramble dispatches to the auth plugin named by pluginName, gated by
// the corresponding Allow* option (spec.md §4.3).
func (s *Session) scramble(pluginName string, challenge []byte) ([]byte, error) {
	switch pluginName {
	case "mysql_native_password":
		if !s.opts.AllowNativePasswords {
			return nil, newClientError(ErrAuthPluginNotAllowed)
		}
		return auth.ScrambleNative(s.opts.Passwd, challenge), nil
	case "caching_sha2_password":
		if !s.opts.AllowCachingSHA2Password {
			return nil, newClientError(ErrAuthPluginNotAllowed)
		}
		return auth.ScrambleCachingSHA2(s.opts.Passwd, challenge), nil
	case "mysql_clear_password":
		if !s.opts.AllowCleartextPasswords {
			return nil, newClientError(ErrAuthPluginNotAllowed)
		}
		return auth.CleartextPassword(s.opts.Passwd), nil
	default:
		return nil, newClientError(ErrUnsupportedAuthPlugin)
	}
}

// completeAuth processes whatever the server sends after the
// handshake response: OK, Error, AuthSwitchRequest, or ExtraAuthData
// (spec.md §4.3, §5).
func (s *Session) completeAuth(ctx context.Context) error {
	for {
		payload, err := s.readPacket()
		if err != nil {
			return err
		}

		switch protocol.ClassifyResponse(payload) {
		case protocol.KindOK:
			ok, derr := protocol.DecodeOK(payload)
			if derr != nil {
				return newProtocolError(ErrUnexpectedPacket, derr)
			}
			s.statusFlags = ok.StatusFlags
			s.warnings = ok.Warnings
			s.setState(StateEstablished)
			return s.fixCollation(ctx)

		case protocol.KindErr:
			ep, derr := protocol.DecodeErr(payload)
			if derr != nil {
				return newProtocolError(ErrUnexpectedPacket, derr)
			}
			s.forceClose()
			return &ServerError{Code: ep.Code, Message: ep.Message}

		case protocol.KindAuthMoreData:
			status, data, derr := protocol.DecodeExtraAuthData(payload)
			if derr != nil {
				return newProtocolError(ErrUnexpectedPacket, derr)
			}
			switch status {
			case protocol.ExtraAuthDataFastAuthSuccess:
				continue
			case protocol.ExtraAuthDataFullAuthNeeded:
				if !s.transportIsSecure() {
					s.forceClose()
					return newClientError(ErrInsecureAuth)
				}
				if err := s.writePacket(auth.CleartextPassword(s.opts.Passwd)); err != nil {
					return err
				}
				continue
			default:
				_ = data
				s.forceClose()
				return newProtocolError(ErrUnexpectedPacket, nil)
			}

		default:
			asr, derr := protocol.DecodeAuthSwitchRequest(payload)
			if derr != nil {
				s.forceClose()
				return newProtocolError(ErrUnexpectedPacket, derr)
			}
			resp, serr := s.scramble(asr.PluginName, asr.PluginData)
			if serr != nil {
				s.forceClose()
				return serr
			}
			if err := s.writePacket(protocol.EncodeAuthSwitchResponse(resp)); err != nil {
				return err
			}
		}
	}
}
