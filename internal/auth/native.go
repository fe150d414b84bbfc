// Package auth implements the two authentication plugins this client
// supports: mysql_native_password and caching_sha2_password (spec.md
// §4.3). It performs the challenge/response scrambling; it never
// touches the socket.
package auth

import (
	"crypto/sha1"
)

// ScrambleNative computes the mysql_native_password response:
// SHA1(pw) XOR SHA1(challenge || SHA1(SHA1(pw))). An empty password
// yields an empty response.
func ScrambleNative(password string, challenge []byte) []byte {
	if len(password) == 0 {
		return nil
	}

	pwHash := sha1.Sum([]byte(password))
	pwHashHash := sha1.Sum(pwHash[:])

	h := sha1.New()
	h.Write(challenge)
	h.Write(pwHashHash[:])
	crossHash := h.Sum(nil)

	out := make([]byte, len(pwHash))
	for i := range out {
		out[i] = pwHash[i] ^ crossHash[i]
	}
	return out
}
