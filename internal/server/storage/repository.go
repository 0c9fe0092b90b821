// Package storage persists chat and profile records server-side. The
// PostgreSQL implementation backs real deployments; the in-memory one
// serves handler tests.
package storage

import (
	"context"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/models"
)

// Repository describes server-side persistence. All records belong to a
// user; cross-user access is impossible by construction of the queries.
type Repository interface {
	// StoreChat increments the user's monotonic write counter, stamps
	// the new version on the chat, and inserts or replaces the row, all
	// atomically. It returns the stamped version. A chat ID owned by a
	// different user yields common.ErrorUnauthorized and leaves the
	// counter untouched.
	StoreChat(ctx context.Context, chat *models.Chat) (int64, error)

	// GetChat returns one chat, or common.ErrorNotFound. A chat owned by
	// a different user is not found.
	GetChat(ctx context.Context, userID, id string) (*models.Chat, error)

	// ListChats returns up to limit chats with ID greater than afterID,
	// ordered by ID ascending, and whether more rows follow.
	ListChats(ctx context.Context, userID, afterID string, limit int) ([]*models.Chat, bool, error)

	// DeleteChat removes one chat, or common.ErrorNotFound.
	DeleteChat(ctx context.Context, userID, id string) error

	// GetProfile returns the user's profile record, or
	// common.ErrorNotFound.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)

	// StoreProfile increments the user's write counter, stamps the new
	// version on the profile, and inserts or replaces the record
	// atomically. It returns the stamped version.
	StoreProfile(ctx context.Context, profile *models.Profile) (int64, error)
}
