package keyring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/cryptox"
)

func deriveKey(t *testing.T, secret string) []byte {
	t.Helper()
	key, err := cryptox.DeriveKeyFromSecret([]byte(secret))
	require.NoError(t, err)
	return key
}

func TestKeyring_RoundTrip(t *testing.T) {
	k := New(deriveKey(t, "secret"))

	ciphertext, nonce, err := k.Encrypt("hello")
	require.NoError(t, err)

	var out string
	require.NoError(t, k.Decrypt(ciphertext, nonce, &out))
	assert.Equal(t, "hello", out)
}

func TestKeyring_RotateKeepsOldRecordsReadable(t *testing.T) {
	k := New(deriveKey(t, "key-1"))

	ciphertext, nonce, err := k.Encrypt("written under key-1")
	require.NoError(t, err)

	k.Rotate(deriveKey(t, "key-2"))
	assert.Equal(t, 1, k.HistoryLen())

	// Old record decrypts via history.
	var out string
	require.NoError(t, k.Decrypt(ciphertext, nonce, &out))
	assert.Equal(t, "written under key-1", out)

	// New writes use the new active key and stay readable too.
	c2, n2, err := k.Encrypt("written under key-2")
	require.NoError(t, err)
	require.NoError(t, k.Decrypt(c2, n2, &out))
	assert.Equal(t, "written under key-2", out)
}

func TestKeyring_HistoryCapEvictsOldest(t *testing.T) {
	k := NewWithHistoryLimit(deriveKey(t, "key-0"), 2)

	ciphertext, nonce, err := k.Encrypt("oldest")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		k.Rotate(deriveKey(t, fmt.Sprintf("key-%d", i)))
	}
	assert.Equal(t, 2, k.HistoryLen())

	// key-0 has been evicted, so the oldest record is no longer readable.
	var out string
	err = k.Decrypt(ciphertext, nonce, &out)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestKeyring_DecryptWithNoMatchingKey(t *testing.T) {
	k := New(deriveKey(t, "mine"))

	other := New(deriveKey(t, "theirs"))
	ciphertext, nonce, err := other.Encrypt("not yours")
	require.NoError(t, err)

	var out string
	err = k.Decrypt(ciphertext, nonce, &out)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestKeyring_ClearWipesAllKeys(t *testing.T) {
	k := New(deriveKey(t, "secret"))
	ciphertext, nonce, err := k.Encrypt("gone after sign-out")
	require.NoError(t, err)

	k.Rotate(deriveKey(t, "secret-2"))
	k.Clear()

	assert.Equal(t, 0, k.HistoryLen())

	var out string
	err = k.Decrypt(ciphertext, nonce, &out)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}
