package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/dbx"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/migrations"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/models"
)

// PostgresRepository implements Repository over a *sql.DB. Reads run
// directly on the pool; versioned writes go through dbx.WithTx so the
// counter increment and the row write land together.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository constructs a repository bound to the given pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OpenDB connects to PostgreSQL via the pgx stdlib driver and applies
// the embedded migrations.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func nextSyncVersion(ctx context.Context, tx dbx.DBTX, userID string) (int64, error) {
	query := `
		INSERT INTO sync_counters (user_id, version) VALUES ($1, 1)
		ON CONFLICT (user_id)
		DO UPDATE SET version = sync_counters.version + 1
		RETURNING version;
	`
	var version int64
	if err := tx.QueryRowContext(ctx, query, userID).Scan(&version); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func (r *PostgresRepository) StoreChat(ctx context.Context, chat *models.Chat) (int64, error) {
	err := dbx.WithTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		version, err := nextSyncVersion(ctx, tx, chat.UserID)
		if err != nil {
			return err
		}
		chat.SyncVersion = version
		return upsertChat(ctx, tx, chat)
	})
	if err != nil {
		return 0, err
	}
	return chat.SyncVersion, nil
}

func upsertChat(ctx context.Context, tx dbx.DBTX, chat *models.Chat) error {
	query := `
		INSERT INTO chats (id, user_id, ciphertext, nonce, created_at_ms, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			nonce = EXCLUDED.nonce,
			sync_version = EXCLUDED.sync_version
			WHERE chats.user_id = EXCLUDED.user_id;
	`
	res, err := tx.ExecContext(ctx, query,
		chat.ID, chat.UserID, chat.Ciphertext, chat.Nonce, chat.CreatedAtMs, chat.SyncVersion)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		// ID collision with another user's chat. The rollback also
		// returns the burned counter value.
		return common.ErrorUnauthorized
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) GetChat(ctx context.Context, userID, id string) (*models.Chat, error) {
	query := `
		SELECT id, user_id, ciphertext, nonce, created_at_ms, sync_version
		FROM chats WHERE user_id=$1 AND id=$2;
	`
	var chat models.Chat
	err := r.db.QueryRowContext(ctx, query, userID, id).Scan(
		&chat.ID, &chat.UserID, &chat.Ciphertext, &chat.Nonce, &chat.CreatedAtMs, &chat.SyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &chat, nil
}

func (r *PostgresRepository) ListChats(ctx context.Context, userID, afterID string, limit int) ([]*models.Chat, bool, error) {
	query := `
		SELECT id, user_id, ciphertext, nonce, created_at_ms, sync_version
		FROM chats WHERE user_id=$1 AND id>$2
		ORDER BY id ASC LIMIT $3;
	`
	// One extra row decides hasMore without a second query.
	rows, err := r.db.QueryContext(ctx, query, userID, afterID, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Chat
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(
			&chat.ID, &chat.UserID, &chat.Ciphertext, &chat.Nonce, &chat.CreatedAtMs, &chat.SyncVersion,
		); err != nil {
			return nil, false, err
		}
		result = append(result, &chat)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(result) > limit
	if hasMore {
		result = result[:limit]
	}
	return result, hasMore, nil
}

func (r *PostgresRepository) DeleteChat(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE user_id=$1 AND id=$2;`, userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := `SELECT user_id, ciphertext, nonce, sync_version FROM profiles WHERE user_id=$1;`

	var profile models.Profile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID, &profile.Ciphertext, &profile.Nonce, &profile.SyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &profile, nil
}

func (r *PostgresRepository) StoreProfile(ctx context.Context, profile *models.Profile) (int64, error) {
	query := `
		INSERT INTO profiles (user_id, ciphertext, nonce, sync_version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			nonce = EXCLUDED.nonce,
			sync_version = EXCLUDED.sync_version;
	`
	err := dbx.WithTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		version, err := nextSyncVersion(ctx, tx, profile.UserID)
		if err != nil {
			return err
		}
		profile.SyncVersion = version
		_, err = tx.ExecContext(ctx, query,
			profile.UserID, profile.Ciphertext, profile.Nonce, profile.SyncVersion)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return profile.SyncVersion, nil
}
