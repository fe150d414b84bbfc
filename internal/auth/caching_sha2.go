package auth

import (
	"crypto/sha256"
)

// ScrambleCachingSHA2 computes the caching_sha2_password response:
// SHA256(pw) XOR SHA256(SHA256(SHA256(pw)) || challenge) (spec.md
// §4.3). An empty password yields an empty response.
func ScrambleCachingSHA2(password string, challenge []byte) []byte {
	if len(password) == 0 {
		return nil
	}

	pwHash := sha256.Sum256([]byte(password))
	pwHashHash := sha256.Sum256(pwHash[:])

	h := sha256.New()
	h.Write(pwHashHash[:])
	h.Write(challenge)
	crossHash := h.Sum(nil)

	out := make([]byte, len(pwHash))
	for i := range out {
		out[i] = pwHash[i] ^ crossHash[i]
	}
	return out
}

// CleartextPassword returns the password bytes followed by a single
// NUL terminator, as sent in response to a full-authentication
// request (ExtraAuthData status 0x04). Callers must only use this
// over a secured transport (spec.md §4.3).
func CleartextPassword(password string) []byte {
	out := make([]byte, len(password)+1)
	copy(out, password)
	return out
}
