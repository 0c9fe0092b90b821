// Package cryptox implements the crypto primitives used by the chat store:
// key derivation (argon2id for passphrases, HKDF for passkey secrets) and
// AES-256-GCM sealing of JSON records.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// NonceSize is the AES-GCM nonce length in bytes. A fresh random nonce is
// generated per encryption and stored alongside the ciphertext.
const NonceSize = 12

// kekInfo binds derived keys to their purpose so the same secret material
// can never yield a key reused by another protocol.
const kekInfo = "chat-store kek v1"

// DeriveKeyFromSecret derives a 256-bit key-encryption key from
// externally supplied secret material (e.g. a passkey PRF output) using
// HKDF-SHA256. Identical secret material always yields the same key.
func DeriveKeyFromSecret(secret []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(kekInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}

// DeriveKeyFromPassphrase derives a 256-bit key-encryption key from a
// passphrase and salt using argon2id.
func DeriveKeyFromPassphrase(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// Seal encrypts plaintext with AES-256-GCM under key, generating a fresh
// random nonce per call. The ciphertext and nonce are returned separately.
func Seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// Open decrypts ciphertext produced by Seal. It fails if the key or nonce
// do not match or the ciphertext was tampered with.
func Open(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// EncryptRecord serializes v to JSON and encrypts it with Seal.
//
// The key must be KeySize bytes. A new random nonce is generated for each
// encryption; ciphertext and nonce are returned separately so callers can
// persist them in distinct columns.
func EncryptRecord(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return Seal(plaintext, key)
}

// DecryptRecord decrypts ciphertext produced by EncryptRecord and
// unmarshals the resulting JSON into v.
func DecryptRecord(ciphertext, nonce, key []byte, v any) error {
	plaintext, err := Open(ciphertext, nonce, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}
