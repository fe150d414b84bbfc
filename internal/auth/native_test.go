package auth

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrambleNativeEmptyPassword(t *testing.T) {
	assert.Nil(t, ScrambleNative("", []byte("challenge1234567890")))
}

func TestScrambleNativeIsDeterministic(t *testing.T) {
	challenge := []byte("01234567890123456789")
	a := ScrambleNative("secret", challenge)
	b := ScrambleNative("secret", challenge)
	assert.Equal(t, a, b)
	assert.Len(t, a, sha1.Size)
}

func TestScrambleNativeDiffersByChallenge(t *testing.T) {
	a := ScrambleNative("secret", []byte("aaaaaaaaaaaaaaaaaaaa"))
	b := ScrambleNative("secret", []byte("bbbbbbbbbbbbbbbbbbbb"))
	assert.NotEqual(t, a, b)
}
