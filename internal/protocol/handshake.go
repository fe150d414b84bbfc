package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrUnexpectedPacket is returned by a decode routine when the first
// payload byte contradicts the caller's expectation (spec.md §4.2).
var ErrUnexpectedPacket = errors.New("protocol: unexpected packet")

// InitialHandshake is the server's first packet (spec.md §4.2).
type InitialHandshake struct {
	ProtocolVersion byte
	ServerVersion   string
	ConnectionID    uint32
	Capabilities    CapabilityFlag
	Charset         byte
	StatusFlags     StatusFlag
	AuthPluginData  []byte // 20 bytes when CLIENT_SECURE_CONNECTION, else 8
	AuthPluginName  string
}

// DecodeInitialHandshake parses the server's initial handshake packet.
func DecodeInitialHandshake(data []byte) (*InitialHandshake, error) {
	if len(data) < 1 {
		return nil, ErrUnexpectedPacket
	}
	if data[0] == IndicatorErr {
		return nil, errors.New("protocol: server returned an error before handshake")
	}

	h := &InitialHandshake{ProtocolVersion: data[0]}
	pos := 1

	verEnd := pos
	for verEnd < len(data) && data[verEnd] != 0 {
		verEnd++
	}
	if verEnd >= len(data) {
		return nil, ErrUnexpectedPacket
	}
	h.ServerVersion = string(data[pos:verEnd])
	pos = verEnd + 1

	if pos+4 > len(data) {
		return nil, ErrUnexpectedPacket
	}
	h.ConnectionID = binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	if pos+8 > len(data) {
		return nil, ErrUnexpectedPacket
	}
	authData := append([]byte(nil), data[pos:pos+8]...)
	pos += 8

	// filler
	pos++

	if pos+2 > len(data) {
		return nil, ErrUnexpectedPacket
	}
	h.Capabilities = CapabilityFlag(binary.LittleEndian.Uint16(data[pos : pos+2]))
	pos += 2

	if pos < len(data) {
		h.Charset = data[pos]
		pos++

		if pos+2 > len(data) {
			return nil, ErrUnexpectedPacket
		}
		h.StatusFlags = StatusFlag(binary.LittleEndian.Uint16(data[pos : pos+2]))
		pos += 2

		if pos+2 > len(data) {
			return nil, ErrUnexpectedPacket
		}
		h.Capabilities |= CapabilityFlag(binary.LittleEndian.Uint16(data[pos:pos+2])) << 16
		pos += 2

		authDataLen := 0
		if h.Capabilities&ClientPluginAuth != 0 {
			authDataLen = int(data[pos])
		}
		pos++

		// 10 reserved bytes
		pos += 10

		if h.Capabilities&ClientSecureConnection != 0 {
			part2Len := authDataLen - 8
			if part2Len < 13 {
				part2Len = 13
			}
			if pos+part2Len > len(data) {
				return nil, ErrUnexpectedPacket
			}
			part2 := data[pos : pos+part2Len]
			// part2 is NUL terminated; drop the trailing NUL if present.
			if n := len(part2); n > 0 && part2[n-1] == 0 {
				part2 = part2[:n-1]
			}
			authData = append(authData, part2...)
			pos += part2Len
		}

		if h.Capabilities&ClientPluginAuth != 0 {
			name, n, ok := NullTerminated(data[pos:])
			if ok {
				h.AuthPluginName = string(name)
				pos += n
			} else {
				h.AuthPluginName = string(data[pos:])
			}
		}
	}

	h.AuthPluginData = authData
	return h, nil
}

// SSLRequest is the 32-byte frame sent to request a TLS upgrade
// before the full handshake response (spec.md §4.2).
type SSLRequest struct {
	Capabilities  CapabilityFlag
	Charset       byte
	MaxPacketSize uint32
}

// EncodeSSLRequest builds the 32-byte SSL request payload.
func EncodeSSLRequest(r SSLRequest) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Capabilities))
	binary.LittleEndian.PutUint32(buf[4:8], maxPacketSizeOrDefault(r.MaxPacketSize))
	buf[8] = r.Charset
	return buf
}

func maxPacketSizeOrDefault(v uint32) uint32 {
	if v == 0 {
		return ClientMaxPacketSize
	}
	return v
}

// HandshakeResponse is the client's answer to the initial handshake
// (spec.md §4.2, "Handshake response (v4.1)").
type HandshakeResponse struct {
	Capabilities    CapabilityFlag
	Charset         byte
	MaxPacketSize   uint32
	User            string
	AuthResponse    []byte
	Database        string
	AuthPluginName  string
	ConnectAttrs    map[string]string
}

// EncodeHandshakeResponse builds the full handshake-response payload.
func EncodeHandshakeResponse(r HandshakeResponse) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Capabilities))
	binary.LittleEndian.PutUint32(buf[4:8], maxPacketSizeOrDefault(r.MaxPacketSize))
	buf[8] = r.Charset

	buf = append(buf, r.User...)
	buf = append(buf, 0)

	buf = AppendLengthEncodedString2(buf, r.AuthResponse)

	if r.Capabilities&ClientConnectWithDB != 0 {
		buf = append(buf, r.Database...)
		buf = append(buf, 0)
	}

	buf = append(buf, r.AuthPluginName...)
	buf = append(buf, 0)

	if r.Capabilities&ClientConnectAttrs != 0 {
		var attrBuf []byte
		for k, v := range r.ConnectAttrs {
			attrBuf = AppendLengthEncodedString(attrBuf, k)
			attrBuf = AppendLengthEncodedString(attrBuf, v)
		}
		buf = AppendLengthEncodedInteger(buf, uint64(len(attrBuf)))
		buf = append(buf, attrBuf...)
	}

	return buf
}

// AppendLengthEncodedString2 appends a length-encoded byte slice
// (used for the auth-response field, which is binary, not textual).
func AppendLengthEncodedString2(buf []byte, b []byte) []byte {
	buf = AppendLengthEncodedInteger(buf, uint64(len(b)))
	return append(buf, b...)
}

// AuthSwitchRequest is sent by the server mid-handshake to request a
// different auth plugin (spec.md §4.3).
type AuthSwitchRequest struct {
	PluginName string
	PluginData []byte
}

// DecodeAuthSwitchRequest decodes a 0xFE-tagged auth-switch packet.
func DecodeAuthSwitchRequest(data []byte) (*AuthSwitchRequest, error) {
	if len(data) < 1 || data[0] != IndicatorEOF {
		return nil, ErrUnexpectedPacket
	}
	name, n, ok := NullTerminated(data[1:])
	if !ok {
		return nil, errors.New("protocol: malformed auth switch request")
	}
	pluginData := data[1+n:]
	// Trailing NUL on the challenge bytes, if present, is padding.
	if l := len(pluginData); l > 0 && pluginData[l-1] == 0 {
		pluginData = pluginData[:l-1]
	}
	return &AuthSwitchRequest{PluginName: string(name), PluginData: append([]byte(nil), pluginData...)}, nil
}

// EncodeAuthSwitchResponse wraps the raw response bytes for an
// auth-switch answer; the packet carries no other framing.
func EncodeAuthSwitchResponse(authResponse []byte) []byte {
	return append([]byte(nil), authResponse...)
}

// ExtraAuthDataTag values (spec.md §4.3, caching_sha2_password).
const (
	ExtraAuthDataFastAuthSuccess byte = 0x03
	ExtraAuthDataFullAuthNeeded  byte = 0x04
)

// DecodeExtraAuthData strips the 0x01 indicator from an
// ExtraAuthData packet, returning the status byte that follows.
func DecodeExtraAuthData(data []byte) (byte, []byte, error) {
	if len(data) < 2 || data[0] != IndicatorAuthMoreData {
		return 0, nil, ErrUnexpectedPacket
	}
	return data[1], data[2:], nil
}
