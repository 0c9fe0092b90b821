// Package keyring manages the lifecycle of the chat store's
// key-encryption key: one active key used for all new writes, plus a
// bounded history of prior keys retained so records written before a
// rotation stay readable.
package keyring

import (
	"sync"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/cryptox"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/shared"
)

// DefaultHistoryLimit caps how many rotated-out keys are retained.
// Oldest entries are evicted (and wiped) first.
const DefaultHistoryLimit = 5

// Keyring holds the active key and the retained history, newest first.
// It is safe for use from interleaving sync cycles; the active key is
// swapped only by an explicit Rotate call.
type Keyring struct {
	mu      sync.RWMutex
	active  []byte
	history [][]byte
	limit   int
}

// New returns a Keyring with the given active key and the default
// history limit.
func New(active []byte) *Keyring {
	return NewWithHistoryLimit(active, DefaultHistoryLimit)
}

// NewWithHistoryLimit returns a Keyring with an explicit history cap.
// A limit below 1 is treated as 1.
func NewWithHistoryLimit(active []byte, limit int) *Keyring {
	if limit < 1 {
		limit = 1
	}
	return &Keyring{active: active, limit: limit}
}

// Rotate pushes the current active key onto the history and installs
// newKey as active. If the history exceeds the cap, the oldest entry is
// wiped and dropped.
func (k *Keyring) Rotate(newKey []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.history = append([][]byte{k.active}, k.history...)
	if len(k.history) > k.limit {
		evicted := k.history[len(k.history)-1]
		shared.WipeByteArray(evicted)
		k.history = k.history[:len(k.history)-1]
	}
	k.active = newKey
}

// HistoryLen reports how many rotated-out keys are currently retained.
func (k *Keyring) HistoryLen() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.history)
}

// Encrypt serializes v to JSON and encrypts it under the active key with
// a fresh nonce.
func (k *Keyring) Encrypt(v any) (ciphertext, nonce []byte, err error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return cryptox.EncryptRecord(v, k.active)
}

// Decrypt tries the active key first, then each history key newest
// first, until one succeeds. If every key fails it returns
// common.ErrDecryptionFailed; callers flag the record rather than treat
// this as a crash.
func (k *Keyring) Decrypt(ciphertext, nonce []byte, v any) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if err := cryptox.DecryptRecord(ciphertext, nonce, k.active, v); err == nil {
		return nil
	}
	for _, key := range k.history {
		if err := cryptox.DecryptRecord(ciphertext, nonce, key, v); err == nil {
			return nil
		}
	}
	return common.ErrDecryptionFailed
}

// Clear wipes the active key and the whole history. Called on sign-out.
func (k *Keyring) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()

	shared.WipeByteArray(k.active)
	k.active = nil
	for _, key := range k.history {
		shared.WipeByteArray(key)
	}
	k.history = nil
}
