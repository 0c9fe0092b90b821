package cryptox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyFromSecret_Deterministic(t *testing.T) {
	secret := []byte("prf-output-from-passkey")

	key1, err := DeriveKeyFromSecret(secret)
	require.NoError(t, err)
	key2, err := DeriveKeyFromSecret(secret)
	require.NoError(t, err)

	assert.Len(t, key1, KeySize)
	assert.True(t, bytes.Equal(key1, key2), "same secret must yield the same key")
}

func TestDeriveKeyFromSecret_DifferentSecrets(t *testing.T) {
	key1, err := DeriveKeyFromSecret([]byte("secret-1"))
	require.NoError(t, err)
	key2, err := DeriveKeyFromSecret([]byte("secret-2"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(key1, key2))
}

func TestDeriveKeyFromPassphrase_Deterministic(t *testing.T) {
	pass := []byte("correct horse battery staple")
	salt := []byte("fixed-salt")

	key1 := DeriveKeyFromPassphrase(pass, salt)
	key2 := DeriveKeyFromPassphrase(pass, salt)

	assert.Len(t, key1, KeySize)
	assert.Equal(t, key1, key2)

	other := DeriveKeyFromPassphrase(pass, []byte("other-salt"))
	assert.NotEqual(t, key1, other)
}

func TestEncryptRecord_RoundTrip(t *testing.T) {
	type payload struct {
		Title    string   `json:"title"`
		Messages []string `json:"messages"`
	}

	key, err := DeriveKeyFromSecret([]byte("secret"))
	require.NoError(t, err)

	in := payload{Title: "hello", Messages: []string{"hi", "there"}}
	ciphertext, nonce, err := EncryptRecord(in, key)
	require.NoError(t, err)
	require.Len(t, nonce, NonceSize)

	var out payload
	require.NoError(t, DecryptRecord(ciphertext, nonce, key, &out))
	assert.Equal(t, in, out)
}

func TestEncryptRecord_FreshNoncePerCall(t *testing.T) {
	key, err := DeriveKeyFromSecret([]byte("secret"))
	require.NoError(t, err)

	_, nonce1, err := EncryptRecord("m", key)
	require.NoError(t, err)
	_, nonce2, err := EncryptRecord("m", key)
	require.NoError(t, err)

	assert.NotEqual(t, nonce1, nonce2)
}

func TestDecryptRecord_WrongKeyFails(t *testing.T) {
	key1, err := DeriveKeyFromSecret([]byte("secret-1"))
	require.NoError(t, err)
	key2, err := DeriveKeyFromSecret([]byte("secret-2"))
	require.NoError(t, err)

	ciphertext, nonce, err := EncryptRecord("m", key1)
	require.NoError(t, err)

	var out string
	require.Error(t, DecryptRecord(ciphertext, nonce, key2, &out))
}

func TestCrossDecrypt_SameSecretMaterial(t *testing.T) {
	// The determinism contract is verified by cross-encrypt/decrypt, not
	// by byte comparison: a key derived on one device must decrypt what a
	// key derived from the same secret on another device encrypted.
	keyA, err := DeriveKeyFromSecret([]byte("shared-passkey-prf"))
	require.NoError(t, err)
	keyB, err := DeriveKeyFromSecret([]byte("shared-passkey-prf"))
	require.NoError(t, err)

	ciphertext, nonce, err := EncryptRecord("written on device A", keyA)
	require.NoError(t, err)

	var out string
	require.NoError(t, DecryptRecord(ciphertext, nonce, keyB, &out))
	assert.Equal(t, "written on device A", out)
}
