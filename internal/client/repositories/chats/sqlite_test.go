package chats

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE chats (
  id TEXT PRIMARY KEY,
  ciphertext BLOB NOT NULL,
  nonce BLOB NOT NULL,
  created_at_ms INTEGER NOT NULL,
  synced_at_ms INTEGER,
  sync_version INTEGER NOT NULL DEFAULT 0,
  locally_modified INTEGER NOT NULL DEFAULT 0,
  has_temporary_id INTEGER NOT NULL DEFAULT 0,
  decryption_failed INTEGER NOT NULL DEFAULT 0,
  is_blank INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)

	return db
}

func seedChat(t *testing.T, db *sql.DB, id string, modified, synced bool) {
	t.Helper()
	var syncedAt any
	if synced {
		syncedAt = int64(1700000000000)
	}
	_, err := db.Exec(`INSERT INTO chats (id, ciphertext, nonce, created_at_ms, synced_at_ms, locally_modified)
		VALUES (?, x'01', x'02', 1, ?, ?)`, id, syncedAt, modified)
	require.NoError(t, err)
}

func TestUpsert_InsertAndUpdate(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	row := &models.ChatRow{
		ID:              "0000000000001_aaaa",
		Ciphertext:      []byte("c1"),
		Nonce:           []byte("n1"),
		CreatedAtMs:     1000,
		LocallyModified: true,
		HasTemporaryID:  true,
	}
	require.NoError(t, r.Upsert(ctx, row))

	got, err := r.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("c1"), got.Ciphertext)
	assert.True(t, got.LocallyModified)
	assert.Nil(t, got.SyncedAtMs)

	syncedAt := int64(1700000000000)
	row.Ciphertext = []byte("c2")
	row.SyncedAtMs = &syncedAt
	row.SyncVersion = 7
	row.LocallyModified = false
	require.NoError(t, r.Upsert(ctx, row))

	got, err = r.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("c2"), got.Ciphertext)
	assert.False(t, got.LocallyModified)
	require.NotNil(t, got.SyncedAtMs)
	assert.Equal(t, syncedAt, *got.SyncedAtMs)
	assert.Equal(t, int64(7), got.SyncVersion)
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListAll_OrderedByID(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedChat(t, db, "b", false, false)
	seedChat(t, db, "a", false, false)
	seedChat(t, db, "c", false, false)

	r := NewSQLiteRepository(db)
	got, err := r.ListAll(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, row := range got {
		ids = append(ids, row.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestListPage_Pagination(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		seedChat(t, db, id, false, false)
	}

	r := NewSQLiteRepository(db)

	var all []string
	afterID := ""
	for {
		page, hasMore, err := r.ListPage(ctx, afterID, 2)
		require.NoError(t, err)
		require.NotEmpty(t, page)
		for _, row := range page {
			all = append(all, row.ID)
		}
		if !hasMore {
			break
		}
		afterID = page[len(page)-1].ID
	}

	// No duplicates, complete traversal.
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, all)
}

func TestListLocallyModified(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedChat(t, db, "m1", true, false)
	seedChat(t, db, "m2", true, true)
	seedChat(t, db, "clean", false, true)

	r := NewSQLiteRepository(db)
	got, err := r.ListLocallyModified(ctx)
	require.NoError(t, err)

	ids := make(map[string]struct{})
	for _, row := range got {
		ids[row.ID] = struct{}{}
	}
	assert.Equal(t, map[string]struct{}{"m1": {}, "m2": {}}, ids)
}

func TestListSyncedIDs(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedChat(t, db, "s1", false, true)
	seedChat(t, db, "local", true, false)

	r := NewSQLiteRepository(db)
	ids, err := r.ListSyncedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestRename_AdoptsServerID(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO chats (id, ciphertext, nonce, created_at_ms, has_temporary_id)
		VALUES ('temp', x'01', x'02', 1, 1)`)
	require.NoError(t, err)

	r := NewSQLiteRepository(db)
	require.NoError(t, r.Rename(ctx, "temp", "final"))

	_, err = r.GetByID(ctx, "temp")
	require.ErrorIs(t, err, common.ErrorNotFound)

	got, err := r.GetByID(ctx, "final")
	require.NoError(t, err)
	assert.False(t, got.HasTemporaryID)
	assert.Equal(t, []byte{0x01}, got.Ciphertext)

	require.ErrorIs(t, r.Rename(ctx, "temp", "other"), common.ErrorNotFound)
}

func TestUpdateAfterPush(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedChat(t, db, "x", true, false)

	r := NewSQLiteRepository(db)
	require.NoError(t, r.UpdateAfterPush(ctx, "x", []byte{1}, 1700000000123, 3))

	got, err := r.GetByID(ctx, "x")
	require.NoError(t, err)
	assert.False(t, got.LocallyModified)
	assert.False(t, got.HasTemporaryID)
	require.NotNil(t, got.SyncedAtMs)
	assert.Equal(t, int64(1700000000123), *got.SyncedAtMs)
	assert.Equal(t, int64(3), got.SyncVersion)

	require.ErrorIs(t, r.UpdateAfterPush(ctx, "nope", []byte{1}, 1, 1), common.ErrorNotFound)
}

func TestUpdateAfterPush_KeepsFlagWhenEditedMidFlight(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedChat(t, db, "x", true, false)

	// The row was edited after the uploaded ciphertext was read.
	_, err := db.Exec(`UPDATE chats SET ciphertext = x'ff' WHERE id = 'x'`)
	require.NoError(t, err)

	r := NewSQLiteRepository(db)
	require.NoError(t, r.UpdateAfterPush(ctx, "x", []byte{1}, 1700000000123, 3))

	got, err := r.GetByID(ctx, "x")
	require.NoError(t, err)
	assert.True(t, got.LocallyModified, "interleaved edit must stay queued")
	assert.False(t, got.HasTemporaryID)
	require.NotNil(t, got.SyncedAtMs)
	assert.Equal(t, int64(3), got.SyncVersion, "server confirmation for the base revision is still recorded")
	assert.Equal(t, []byte{0xff}, got.Ciphertext, "edited ciphertext is untouched")
}

func TestDeleteByID_SuccessAndNotFound(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedChat(t, db, "x", false, false)

	r := NewSQLiteRepository(db)
	require.NoError(t, r.DeleteByID(ctx, "x"))
	require.ErrorIs(t, r.DeleteByID(ctx, "x"), common.ErrorNotFound)
}

func TestClear_RemovesEverything(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedChat(t, db, "a", false, false)
	seedChat(t, db, "b", true, true)

	r := NewSQLiteRepository(db)
	require.NoError(t, r.Clear(ctx))

	got, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
