package tombstones

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

func firstMissingArg(ts *models.Tombstone) any {
	if ts.FirstMissingFromRemote == nil {
		return nil
	}
	return ts.FirstMissingFromRemote.UnixMilli()
}

func (r *SQLiteRepository) Upsert(ctx context.Context, ts *models.Tombstone) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tombstones (chat_id, last_seen_locally_ms, first_missing_ms) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			last_seen_locally_ms = excluded.last_seen_locally_ms,
			first_missing_ms = excluded.first_missing_ms
	`, ts.ChatID, ts.LastSeenLocally.UnixMilli(), firstMissingArg(ts))
	if err != nil {
		return fmt.Errorf("failed to upsert tombstone: %w", err)
	}
	return nil
}

func scanTombstone(s interface{ Scan(dest ...any) error }) (*models.Tombstone, error) {
	ts := &models.Tombstone{}
	var lastSeenMs int64
	var firstMissingMs sql.NullInt64
	if err := s.Scan(&ts.ChatID, &lastSeenMs, &firstMissingMs); err != nil {
		return nil, err
	}
	ts.LastSeenLocally = time.UnixMilli(lastSeenMs).UTC()
	if firstMissingMs.Valid {
		v := time.UnixMilli(firstMissingMs.Int64).UTC()
		ts.FirstMissingFromRemote = &v
	}
	return ts, nil
}

func (r *SQLiteRepository) GetByChatID(ctx context.Context, chatID string) (*models.Tombstone, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT chat_id, last_seen_locally_ms, first_missing_ms FROM tombstones WHERE chat_id = ?`, chatID)
	ts, err := scanTombstone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tombstone: %w", err)
	}
	return ts, nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]*models.Tombstone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT chat_id, last_seen_locally_ms, first_missing_ms FROM tombstones ORDER BY chat_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to select tombstones: %w", err)
	}
	defer rows.Close()

	var result []*models.Tombstone
	for rows.Next() {
		ts, err := scanTombstone(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByChatID(ctx context.Context, chatID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tombstones WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete tombstone: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tombstones`)
	if err != nil {
		return fmt.Errorf("failed to clear tombstones: %w", err)
	}
	return nil
}
