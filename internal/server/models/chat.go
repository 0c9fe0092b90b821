// Package models defines server-side persistence models. The server only
// ever handles ciphertext; it has no key material and cannot read chat
// content.
package models

// Chat is one stored chat record, owned by a single user.
type Chat struct {
	ID          string
	UserID      string
	Ciphertext  []byte
	Nonce       []byte
	CreatedAtMs int64

	// SyncVersion is stamped from the owner's monotonic counter on every
	// write; clients use it as the authoritative "newer" comparator.
	SyncVersion int64
}

// Profile is the single encrypted profile record per user.
type Profile struct {
	UserID      string
	Ciphertext  []byte
	Nonce       []byte
	SyncVersion int64
}
