package cryptox

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	k1 := deriveKey([]byte("secret-password"), []byte("fixed-salt"))
	k2 := deriveKey([]byte("secret-password"), []byte("fixed-salt"))

	assert.Equal(t, k1, k2)
	assert.Equal(t, "9290403300158e19f27e48e7087f7383b03065bf5b25ef23ebc40229616cd8b3", hex.EncodeToString(k1))
	assert.NotEqual(t, k1, deriveKey([]byte("secret-password"), []byte("other-salt")))
}

func TestHashPassword_Verify(t *testing.T) {
	encoded, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	ok, err := VerifyPassword(encoded, "hunter22")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(encoded, "hunter23")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashPassword_NoEntropy(t *testing.T) {
	orig := readRandom
	t.Cleanup(func() { readRandom = orig })
	readRandom = func([]byte) (int, error) { return 0, errors.New("no entropy") }

	_, err := HashPassword("x")
	assert.Error(t, err)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=1$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$!!$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdA$",
		"$argon2id$v=19$m=65536,t=1,p=0$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=4$c2FsdA$aGFzaA",
	} {
		var err error
		require.NotPanics(t, func() { _, err = VerifyPassword(encoded, "pw") }, encoded)
		assert.ErrorIs(t, err, ErrMalformedHash, encoded)
	}
}
