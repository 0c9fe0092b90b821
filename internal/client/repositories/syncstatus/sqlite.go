package syncstatus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, scope string) (*models.SyncStatus, error) {
	var count int
	var lastUpdatedMs int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count, last_updated_ms FROM sync_status WHERE scope = ?`, scope).
		Scan(&count, &lastUpdatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status[%s]: %w", scope, err)
	}
	return &models.SyncStatus{
		Scope:       scope,
		Count:       count,
		LastUpdated: time.UnixMilli(lastUpdatedMs).UTC(),
	}, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, status *models.SyncStatus) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_status (scope, count, last_updated_ms) VALUES (?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET count = excluded.count, last_updated_ms = excluded.last_updated_ms
	`, status.Scope, status.Count, status.LastUpdated.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set sync status[%s]: %w", status.Scope, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_status`)
	if err != nil {
		return fmt.Errorf("failed to clear sync status: %w", err)
	}
	return nil
}
