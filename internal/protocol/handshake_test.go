package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildInitialHandshake() []byte {
	buf := []byte{10} // protocol version
	buf = append(buf, "8.0.30-test"...)
	buf = append(buf, 0)
	buf = append(buf, 0x2a, 0x00, 0x00, 0x00) // connection id
	buf = append(buf, []byte("AUTHDATA")...) // 8-byte auth-plugin-data-part-1
	buf = append(buf, 0)                      // filler
	caps := uint32(ClientProtocol41 | ClientSecureConnection | ClientPluginAuth)
	buf = append(buf, byte(caps), byte(caps>>8))
	buf = append(buf, 0x21)       // charset
	buf = append(buf, 0x02, 0x00) // status flags
	buf = append(buf, byte(caps>>16), byte(caps>>24))
	buf = append(buf, 21) // auth_plugin_data_len (8+13)
	buf = append(buf, make([]byte, 10)...)
	part2 := append([]byte("EXTRADATA123"), 0) // 12 bytes + NUL = 13-byte part2
	buf = append(buf, part2...)
	buf = append(buf, "mysql_native_password"...)
	buf = append(buf, 0)
	return buf
}

func TestDecodeInitialHandshake(t *testing.T) {
	ih, err := DecodeInitialHandshake(buildInitialHandshake())
	require.NoError(t, err)
	assert.Equal(t, "8.0.30-test", ih.ServerVersion)
	assert.Equal(t, uint32(0x2a), ih.ConnectionID)
	assert.Equal(t, "mysql_native_password", ih.AuthPluginName)
	assert.Equal(t, 20, len(ih.AuthPluginData))
	assert.True(t, ih.Capabilities&ClientSecureConnection != 0)
}

func TestEncodeHandshakeResponseIncludesDatabase(t *testing.T) {
	resp := HandshakeResponse{
		Capabilities: ClientProtocol41 | ClientConnectWithDB,
		User:         "root",
		AuthResponse: []byte{1, 2, 3},
		Database:     "mydb",
	}
	buf := EncodeHandshakeResponse(resp)
	assert.Contains(t, string(buf), "root\x00")
	assert.Contains(t, string(buf), "mydb\x00")
}

func TestDecodeAuthSwitchRequest(t *testing.T) {
	data := []byte{IndicatorEOF}
	data = append(data, "caching_sha2_password"...)
	data = append(data, 0)
	data = append(data, []byte("abcdefghijklmnopqrst")...)

	asr, err := DecodeAuthSwitchRequest(data)
	require.NoError(t, err)
	assert.Equal(t, "caching_sha2_password", asr.PluginName)
	assert.Equal(t, "abcdefghijklmnopqrst", string(asr.PluginData))
}

func TestDecodeExtraAuthData(t *testing.T) {
	status, rest, err := DecodeExtraAuthData([]byte{IndicatorAuthMoreData, ExtraAuthDataFullAuthNeeded})
	require.NoError(t, err)
	assert.Equal(t, ExtraAuthDataFullAuthNeeded, status)
	assert.Empty(t, rest)
}
