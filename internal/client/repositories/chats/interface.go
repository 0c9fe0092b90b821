// Package chats persists encrypted chat rows. Implementations are backed
// by the local SQLite database, or by process memory when persistence is
// unavailable (session fallback).
package chats

import (
	"context"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
)

// Repository describes storage operations on chat rows. All writes are
// atomic per record; rows are independent aggregates, so no cross-record
// transactions are required.
type Repository interface {
	// Upsert inserts a new row or replaces an existing one by ID.
	Upsert(ctx context.Context, row *models.ChatRow) error

	// GetByID returns one row, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.ChatRow, error)

	// ListAll returns every row ordered by ID ascending (which is
	// reverse-chronological by ID construction). Each call is a fresh,
	// finite read, not a live cursor.
	ListAll(ctx context.Context) ([]*models.ChatRow, error)

	// ListPage returns up to limit rows with ID greater than afterID,
	// ordered by ID ascending, and whether more rows follow.
	ListPage(ctx context.Context, afterID string, limit int) ([]*models.ChatRow, bool, error)

	// ListLocallyModified returns rows awaiting a push.
	ListLocallyModified(ctx context.Context) ([]*models.ChatRow, error)

	// ListSyncedIDs returns the IDs of rows that have been confirmed
	// remotely at least once. Used for deletion detection during pulls.
	ListSyncedIDs(ctx context.Context) ([]string, error)

	// Rename atomically adopts a server-assigned ID for a row that was
	// stored under a temporary one, clearing the temporary-ID flag.
	Rename(ctx context.Context, from, to string) error

	// UpdateAfterPush stamps the remote confirmation on a row. The
	// modified flag is cleared only when the stored ciphertext still
	// equals pushedCiphertext; an edit saved while the upload was in
	// flight keeps the row queued for the next push.
	UpdateAfterPush(ctx context.Context, id string, pushedCiphertext []byte, syncedAtMs, syncVersion int64) error

	// DeleteByID removes a row. Deleting an absent row is an error.
	DeleteByID(ctx context.Context, id string) error

	// Clear removes every row. Used during sign-out cleanup.
	Clear(ctx context.Context) error
}
