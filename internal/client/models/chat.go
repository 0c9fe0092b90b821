// Package models defines client-side data models: the decrypted chat
// aggregate, its persisted (encrypted) row form, sync status aggregates,
// and deletion tombstones.
package models

import "time"

// Message is a single entry in a chat's ordered message sequence.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatContent is the sensitive part of a chat. It is the only thing that
// gets encrypted; everything else on a row is non-sensitive metadata.
type ChatContent struct {
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// Chat is the decrypted aggregate handed to callers above the store
// boundary. It is owned exclusively by the local store; the sync engine
// never holds a copy outside a transaction.
type Chat struct {
	// ID is "{13-digit reverseTimestamp}_{uuid}". Lexical ordering of IDs
	// equals reverse-chronological ordering of creation times.
	ID string

	Title    string
	Messages []Message

	CreatedAt time.Time

	// SyncedAt is the last successful remote confirmation, nil until the
	// first push is acknowledged.
	SyncedAt *time.Time

	// SyncVersion is the server-issued monotonic version from the last
	// confirmation. It is the authoritative "newer" comparator; wall
	// clocks are never compared across devices.
	SyncVersion int64

	// LocallyModified marks unpushed local changes.
	LocallyModified bool

	// HasTemporaryID marks a locally minted identifier not yet
	// acknowledged by the remote store. The format is the same as a
	// permanent ID.
	HasTemporaryID bool

	// DecryptionFailed marks a record that no key in the keyring could
	// decrypt. The record stays visible but unreadable until the user
	// re-derives the key.
	DecryptionFailed bool

	// IsBlank marks a freshly created chat with no user content yet.
	IsBlank bool
}

// ChatRow is the persisted form of a chat: ciphertext plus non-sensitive
// metadata. Plaintext never reaches this type.
type ChatRow struct {
	ID          string
	Ciphertext  []byte
	Nonce       []byte
	CreatedAtMs int64
	SyncedAtMs  *int64
	SyncVersion int64

	LocallyModified  bool
	HasTemporaryID   bool
	DecryptionFailed bool
	IsBlank          bool
}

// SyncState is the implicit per-chat position in the sync lifecycle.
// Tombstoned and deleted are tracked in the tombstone table, not here.
type SyncState string

const (
	StateLocalOnly   SyncState = "local-only"
	StatePendingPush SyncState = "pending-push"
	StateSynced      SyncState = "synced"
)

// State derives the chat's sync state from its row metadata.
func (r *ChatRow) State() SyncState {
	switch {
	case r.SyncedAtMs == nil:
		return StateLocalOnly
	case r.LocallyModified:
		return StatePendingPush
	default:
		return StateSynced
	}
}
