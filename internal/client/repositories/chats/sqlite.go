package chats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const rowColumns = `id, ciphertext, nonce, created_at_ms, synced_at_ms, sync_version,
	locally_modified, has_temporary_id, decryption_failed, is_blank`

func scanRow(s interface{ Scan(dest ...any) error }) (*models.ChatRow, error) {
	row := &models.ChatRow{}
	var syncedAt sql.NullInt64
	err := s.Scan(&row.ID, &row.Ciphertext, &row.Nonce, &row.CreatedAtMs, &syncedAt,
		&row.SyncVersion, &row.LocallyModified, &row.HasTemporaryID,
		&row.DecryptionFailed, &row.IsBlank)
	if err != nil {
		return nil, err
	}
	if syncedAt.Valid {
		row.SyncedAtMs = &syncedAt.Int64
	}
	return row, nil
}

func syncedAtArg(row *models.ChatRow) any {
	if row.SyncedAtMs == nil {
		return nil
	}
	return *row.SyncedAtMs
}

// Upsert inserts or replaces a row by id. On conflict all mutable columns
// are updated.
func (r *SQLiteRepository) Upsert(ctx context.Context, row *models.ChatRow) error {
	query := `INSERT INTO chats (id, ciphertext, nonce, created_at_ms, synced_at_ms, sync_version,
			locally_modified, has_temporary_id, decryption_failed, is_blank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			synced_at_ms = excluded.synced_at_ms,
			sync_version = excluded.sync_version,
			locally_modified = excluded.locally_modified,
			has_temporary_id = excluded.has_temporary_id,
			decryption_failed = excluded.decryption_failed,
			is_blank = excluded.is_blank
	`
	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.Ciphertext, row.Nonce, row.CreatedAtMs, syncedAtArg(row), row.SyncVersion,
		row.LocallyModified, row.HasTemporaryID, row.DecryptionFailed, row.IsBlank)
	if err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.ChatRow, error) {
	query := `SELECT ` + rowColumns + ` FROM chats WHERE id = ?`
	row, err := scanRow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return row, nil
}

func (r *SQLiteRepository) queryRows(ctx context.Context, query string, args ...any) ([]*models.ChatRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select chats: %w", err)
	}
	defer rows.Close()

	var result []*models.ChatRow
	for rows.Next() {
		item, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]*models.ChatRow, error) {
	return r.queryRows(ctx, `SELECT `+rowColumns+` FROM chats ORDER BY id ASC`)
}

func (r *SQLiteRepository) ListPage(ctx context.Context, afterID string, limit int) ([]*models.ChatRow, bool, error) {
	// limit+1 to detect whether another page follows.
	result, err := r.queryRows(ctx,
		`SELECT `+rowColumns+` FROM chats WHERE id > ? ORDER BY id ASC LIMIT ?`,
		afterID, limit+1)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(result) > limit
	if hasMore {
		result = result[:limit]
	}
	return result, hasMore, nil
}

func (r *SQLiteRepository) ListLocallyModified(ctx context.Context) ([]*models.ChatRow, error) {
	return r.queryRows(ctx,
		`SELECT `+rowColumns+` FROM chats WHERE locally_modified = 1 ORDER BY id ASC`)
}

func (r *SQLiteRepository) ListSyncedIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM chats WHERE synced_at_ms IS NOT NULL ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to select synced ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Rename adopts a server-assigned ID. It expects exactly one row to be affected.
func (r *SQLiteRepository) Rename(ctx context.Context, from, to string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET id = ?, has_temporary_id = 0 WHERE id = ?`, to, from)
	if err != nil {
		return fmt.Errorf("failed to rename chat: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) UpdateAfterPush(ctx context.Context, id string, pushedCiphertext []byte, syncedAtMs, syncVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chats SET synced_at_ms = ?, sync_version = ?, has_temporary_id = 0,
			locally_modified = CASE WHEN ciphertext = ? THEN 0 ELSE locally_modified END
		WHERE id = ?`, syncedAtMs, syncVersion, pushedCiphertext, id)
	if err != nil {
		return fmt.Errorf("failed to update chat after push: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// DeleteByID removes a row. It expects exactly one row to be affected.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chats`)
	if err != nil {
		return fmt.Errorf("failed to clear chats: %w", err)
	}
	return nil
}
