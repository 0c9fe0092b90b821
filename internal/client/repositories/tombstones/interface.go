// Package tombstones persists pending-deletion markers for chats that
// disappeared from remote listings.
package tombstones

import (
	"context"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
)

type Repository interface {
	// Upsert inserts or replaces the tombstone for its chat.
	Upsert(ctx context.Context, ts *models.Tombstone) error

	// GetByChatID returns one tombstone, or common.ErrorNotFound.
	GetByChatID(ctx context.Context, chatID string) (*models.Tombstone, error)

	// ListAll returns every tombstone.
	ListAll(ctx context.Context) ([]*models.Tombstone, error)

	// DeleteByChatID removes a tombstone. Removing an absent one is not
	// an error: a chat may reappear remotely before its tombstone exists.
	DeleteByChatID(ctx context.Context, chatID string) error

	// Clear removes every tombstone. Used during sign-out cleanup.
	Clear(ctx context.Context) error
}
