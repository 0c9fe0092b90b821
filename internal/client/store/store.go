// Package store implements the local persistent chat store. Encryption
// and decryption happen at this boundary: plaintext never crosses into
// the repositories below, which only ever hold ciphertext plus
// non-sensitive metadata (timestamps, flags, sync status).
//
// The store is backed by an on-disk SQLite database. When the database
// cannot be opened (quota, unsupported filesystem), callers fall back to
// a session-scoped in-memory store via OpenSession; the condition is
// reported, not swallowed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/migrations"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/repositories/chats"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/repositories/metadata"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/repositories/syncstatus"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/repositories/tombstones"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/keyring"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/logging"
)

// pendingDeletePrefix namespaces the queue of remote deletions that have
// not been acknowledged yet.
const pendingDeletePrefix = "pending_delete:"

// Store is the single source of truth for chat data on this device.
type Store struct {
	db       *sql.DB
	chats    chats.Repository
	status   syncstatus.Repository
	tombs    tombstones.Repository
	meta     metadata.Repository
	keys     *keyring.Keyring
	logger   logging.Logger
	degraded bool
}

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (or creates) the persistent store at dsn and migrates it.
// Failures are wrapped in common.ErrStoreUnavailable so callers can
// detect the condition and degrade to OpenSession.
func Open(ctx context.Context, dsn string, keys *keyring.Keyring, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	return &Store{
		db:     db,
		chats:  chats.NewSQLiteRepository(db),
		status: syncstatus.NewSQLiteRepository(db),
		tombs:  tombstones.NewSQLiteRepository(db),
		meta:   metadata.NewSQLiteRepository(db),
		keys:   keys,
		logger: logger,
	}, nil
}

// OpenSession returns a store backed by process memory. Used when Open
// fails; nothing survives the current session.
func OpenSession(keys *keyring.Keyring, logger logging.Logger) *Store {
	return &Store{
		chats:    chats.NewMemoryRepository(),
		status:   syncstatus.NewMemoryRepository(),
		tombs:    tombstones.NewMemoryRepository(),
		meta:     metadata.NewMemoryRepository(),
		keys:     keys,
		logger:   logger,
		degraded: true,
	}
}

// Degraded reports whether the store is running on the session fallback.
func (s *Store) Degraded() bool {
	return s.degraded
}

// Close releases the underlying database, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Chats exposes row-level chat operations for the sync engine, which
// works with ciphertext and never needs plaintext.
func (s *Store) Chats() chats.Repository { return s.chats }

// SyncStatus exposes the per-scope sync aggregates.
func (s *Store) SyncStatus() syncstatus.Repository { return s.status }

// Tombstones exposes the pending-deletion markers.
func (s *Store) Tombstones() tombstones.Repository { return s.tombs }

// Metadata exposes the key/value bookkeeping table.
func (s *Store) Metadata() metadata.Repository { return s.meta }

// SaveChat encrypts the chat's content under the active key and upserts
// the row.
func (s *Store) SaveChat(ctx context.Context, chat *models.Chat) error {
	content := models.ChatContent{Title: chat.Title, Messages: chat.Messages}
	ciphertext, nonce, err := s.keys.Encrypt(content)
	if err != nil {
		return fmt.Errorf("encryption error: %w", err)
	}

	row := &models.ChatRow{
		ID:              chat.ID,
		Ciphertext:      ciphertext,
		Nonce:           nonce,
		CreatedAtMs:     chat.CreatedAt.UnixMilli(),
		SyncVersion:     chat.SyncVersion,
		LocallyModified: chat.LocallyModified,
		HasTemporaryID:  chat.HasTemporaryID,
		IsBlank:         chat.IsBlank,
	}
	if chat.SyncedAt != nil {
		ms := chat.SyncedAt.UnixMilli()
		row.SyncedAtMs = &ms
	}

	if err := s.chats.Upsert(ctx, row); err != nil {
		return fmt.Errorf("saving error: %w", err)
	}
	return nil
}

// decodeRow decrypts a row into the chat aggregate. A record no key can
// decrypt is returned with DecryptionFailed set and empty content rather
// than an error: it stays visible but unreadable.
func (s *Store) decodeRow(row *models.ChatRow) *models.Chat {
	chat := &models.Chat{
		ID:               row.ID,
		CreatedAt:        time.UnixMilli(row.CreatedAtMs).UTC(),
		SyncVersion:      row.SyncVersion,
		LocallyModified:  row.LocallyModified,
		HasTemporaryID:   row.HasTemporaryID,
		DecryptionFailed: row.DecryptionFailed,
		IsBlank:          row.IsBlank,
	}
	if row.SyncedAtMs != nil {
		v := time.UnixMilli(*row.SyncedAtMs).UTC()
		chat.SyncedAt = &v
	}

	var content models.ChatContent
	if err := s.keys.Decrypt(row.Ciphertext, row.Nonce, &content); err != nil {
		chat.DecryptionFailed = true
		return chat
	}
	chat.Title = content.Title
	chat.Messages = content.Messages
	return chat
}

// GetChat returns one decrypted chat, or common.ErrorNotFound.
func (s *Store) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	row, err := s.chats.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decodeRow(row), nil
}

// ListChats returns every chat, decrypted, ordered by ID. Each call is a
// fresh read of the underlying table.
func (s *Store) ListChats(ctx context.Context) ([]*models.Chat, error) {
	rows, err := s.chats.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]*models.Chat, 0, len(rows))
	for _, row := range rows {
		result = append(result, s.decodeRow(row))
	}
	return result, nil
}

// ListChatsPage returns one page of decrypted chats ordered by ID, and
// whether more pages follow.
func (s *Store) ListChatsPage(ctx context.Context, afterID string, limit int) ([]*models.Chat, bool, error) {
	rows, hasMore, err := s.chats.ListPage(ctx, afterID, limit)
	if err != nil {
		return nil, false, err
	}
	result := make([]*models.Chat, 0, len(rows))
	for _, row := range rows {
		result = append(result, s.decodeRow(row))
	}
	return result, hasMore, nil
}

// UpsertRemote stores a row received from the remote listing, stamping
// the decryption-failed flag by attempting to decrypt it first.
func (s *Store) UpsertRemote(ctx context.Context, row *models.ChatRow) error {
	var content models.ChatContent
	row.DecryptionFailed = false
	if err := s.keys.Decrypt(row.Ciphertext, row.Nonce, &content); err != nil {
		if !errors.Is(err, common.ErrDecryptionFailed) {
			return err
		}
		row.DecryptionFailed = true
	}
	return s.chats.Upsert(ctx, row)
}

// DeleteChat removes a chat row immediately.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	return s.chats.DeleteByID(ctx, id)
}

// QueueRemoteDelete records that id must be deleted remotely once
// connectivity allows.
func (s *Store) QueueRemoteDelete(ctx context.Context, id string) error {
	ts := fmt.Sprintf("%d", time.Now().UnixMilli())
	return s.meta.Set(ctx, pendingDeletePrefix+id, []byte(ts))
}

// PendingRemoteDeletes returns the chat IDs queued for remote deletion.
func (s *Store) PendingRemoteDeletes(ctx context.Context) ([]string, error) {
	all, err := s.meta.List(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for key := range all {
		if strings.HasPrefix(key, pendingDeletePrefix) {
			ids = append(ids, strings.TrimPrefix(key, pendingDeletePrefix))
		}
	}
	return ids, nil
}

// AckRemoteDelete drops a queued remote deletion after it succeeded.
func (s *Store) AckRemoteDelete(ctx context.Context, id string) error {
	return s.meta.Delete(ctx, pendingDeletePrefix+id)
}

// Clear removes every record in every table. Called during explicit
// sign-out cleanup; a plain page reload keeps all data.
func (s *Store) Clear(ctx context.Context) error {
	for _, clear := range []func(context.Context) error{
		s.chats.Clear, s.status.Clear, s.tombs.Clear, s.meta.Clear,
	} {
		if err := clear(ctx); err != nil {
			return err
		}
	}
	return nil
}
