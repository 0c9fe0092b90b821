// Package syncstatus persists per-scope sync aggregates (count of synced
// records plus the time of the last successful cycle).
package syncstatus

import (
	"context"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
)

type Repository interface {
	// Get returns the aggregate for a scope, or common.ErrorNotFound.
	Get(ctx context.Context, scope string) (*models.SyncStatus, error)

	// Set upserts the aggregate for its scope.
	Set(ctx context.Context, status *models.SyncStatus) error

	// Clear removes every aggregate. Used during sign-out cleanup.
	Clear(ctx context.Context) error
}
