package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestStoreChat(t *testing.T) {
	newChat := func() *models.Chat {
		return &models.Chat{
			ID:          "8000000000000_a",
			UserID:      "u1",
			Ciphertext:  []byte("ct"),
			Nonce:       []byte("n"),
			CreatedAtMs: 100,
		}
	}

	t.Run("version allocation and upsert commit together", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		chat := newChat()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO sync_counters .* RETURNING version;`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(7)))
		mock.ExpectExec(`INSERT INTO chats .* ON CONFLICT .* WHERE chats\.user_id = EXCLUDED\.user_id;`).
			WithArgs(chat.ID, chat.UserID, chat.Ciphertext, chat.Nonce, chat.CreatedAtMs, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		version, err := repo.StoreChat(context.Background(), chat)
		require.NoError(t, err)
		assert.Equal(t, int64(7), version)
		assert.Equal(t, int64(7), chat.SyncVersion)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("id owned by another user rolls back", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		chat := newChat()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO sync_counters .* RETURNING version;`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(7)))
		mock.ExpectExec(`INSERT INTO chats .*;`).
			WithArgs(chat.ID, chat.UserID, chat.Ciphertext, chat.Nonce, chat.CreatedAtMs, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := repo.StoreChat(context.Background(), chat)
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("counter failure rolls back", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO sync_counters .* RETURNING version;`).
			WithArgs("u1").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := repo.StoreChat(context.Background(), newChat())
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetChat(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"id", "user_id", "ciphertext", "nonce", "created_at_ms", "sync_version"}).
			AddRow("c1", "u1", []byte("ct"), []byte("n"), int64(100), int64(2))
		mock.ExpectQuery(`SELECT .* FROM chats WHERE user_id=\$1 AND id=\$2;`).
			WithArgs("u1", "c1").
			WillReturnRows(rows)

		chat, err := repo.GetChat(context.Background(), "u1", "c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", chat.ID)
		assert.Equal(t, int64(2), chat.SyncVersion)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT .* FROM chats`).
			WithArgs("u1", "missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetChat(context.Background(), "u1", "missing")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestListChats(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// limit+1 rows returned means another page follows.
	rows := sqlmock.NewRows([]string{"id", "user_id", "ciphertext", "nonce", "created_at_ms", "sync_version"}).
		AddRow("c1", "u1", []byte("a"), []byte("n"), int64(1), int64(1)).
		AddRow("c2", "u1", []byte("b"), []byte("n"), int64(2), int64(2)).
		AddRow("c3", "u1", []byte("c"), []byte("n"), int64(3), int64(3))
	mock.ExpectQuery(`SELECT .* FROM chats WHERE user_id=\$1 AND id>\$2`).
		WithArgs("u1", "", 3).
		WillReturnRows(rows)

	chats, hasMore, err := repo.ListChats(context.Background(), "u1", "", 2)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.True(t, hasMore)
	assert.Equal(t, "c1", chats[0].ID)
	assert.Equal(t, "c2", chats[1].ID)
}

func TestDeleteChat(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(`DELETE FROM chats WHERE user_id=\$1 AND id=\$2;`).
			WithArgs("u1", "c1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.DeleteChat(context.Background(), "u1", "c1"))
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(`DELETE FROM chats`).
			WithArgs("u1", "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.DeleteChat(context.Background(), "u1", "missing")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestProfileQueries(t *testing.T) {
	t.Run("get ok", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"user_id", "ciphertext", "nonce", "sync_version"}).
			AddRow("u1", []byte("ct"), []byte("n"), int64(5))
		mock.ExpectQuery(`SELECT .* FROM profiles WHERE user_id=\$1;`).
			WithArgs("u1").
			WillReturnRows(rows)

		profile, err := repo.GetProfile(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), profile.SyncVersion)
	})

	t.Run("get absent", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT .* FROM profiles`).
			WithArgs("u1").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetProfile(context.Background(), "u1")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("store", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO sync_counters .* RETURNING version;`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(6)))
		mock.ExpectExec(`INSERT INTO profiles .* ON CONFLICT \(user_id\)`).
			WithArgs("u1", []byte("ct"), []byte("n"), int64(6)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		version, err := repo.StoreProfile(context.Background(), &models.Profile{
			UserID: "u1", Ciphertext: []byte("ct"), Nonce: []byte("n"),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(6), version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db failure surfaces", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT .* FROM profiles`).
			WithArgs("u1").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.GetProfile(context.Background(), "u1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}
