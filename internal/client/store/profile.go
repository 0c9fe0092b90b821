package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
)

// Profile state lives in the metadata table: one logical record, stored
// as individual keys so each write stays an atomic upsert.
const (
	profileCiphertextKey  = "profile:ciphertext"
	profileNonceKey       = "profile:nonce"
	profileSyncVersionKey = "profile:sync_version"
	profileModifiedKey    = "profile:modified"
)

// SaveProfile encrypts the profile content under the active key and
// marks it as locally modified for the next profile sync cycle.
func (s *Store) SaveProfile(ctx context.Context, content *models.ProfileContent) error {
	ciphertext, nonce, err := s.keys.Encrypt(content)
	if err != nil {
		return fmt.Errorf("encryption error: %w", err)
	}
	if err := s.meta.Set(ctx, profileCiphertextKey, ciphertext); err != nil {
		return err
	}
	if err := s.meta.Set(ctx, profileNonceKey, nonce); err != nil {
		return err
	}
	return s.meta.Set(ctx, profileModifiedKey, []byte("1"))
}

// GetProfile returns the decrypted profile, or common.ErrorNotFound when
// none was ever saved.
func (s *Store) GetProfile(ctx context.Context) (*models.ProfileContent, error) {
	row, err := s.ProfileRow(ctx)
	if err != nil {
		return nil, err
	}
	var content models.ProfileContent
	if err := s.keys.Decrypt(row.Ciphertext, row.Nonce, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// ProfileRow returns the persisted profile state, or common.ErrorNotFound
// when no profile exists yet.
func (s *Store) ProfileRow(ctx context.Context) (*models.ProfileRow, error) {
	ciphertext, err := s.meta.Get(ctx, profileCiphertextKey)
	if err != nil {
		return nil, err
	}
	if ciphertext == nil {
		return nil, common.ErrorNotFound
	}
	nonce, err := s.meta.Get(ctx, profileNonceKey)
	if err != nil {
		return nil, err
	}
	row := &models.ProfileRow{Ciphertext: ciphertext, Nonce: nonce}

	if v, err := s.meta.Get(ctx, profileSyncVersionKey); err != nil {
		return nil, err
	} else if v != nil {
		row.SyncVersion, _ = strconv.ParseInt(string(v), 10, 64)
	}
	if v, err := s.meta.Get(ctx, profileModifiedKey); err != nil {
		return nil, err
	} else if v != nil {
		row.Modified = string(v) == "1"
	}
	return row, nil
}

// ApplyRemoteProfile replaces the local profile with a remote record and
// clears the modified flag.
func (s *Store) ApplyRemoteProfile(ctx context.Context, ciphertext, nonce []byte, syncVersion int64) error {
	if err := s.meta.Set(ctx, profileCiphertextKey, ciphertext); err != nil {
		return err
	}
	if err := s.meta.Set(ctx, profileNonceKey, nonce); err != nil {
		return err
	}
	if err := s.meta.Set(ctx, profileSyncVersionKey, []byte(strconv.FormatInt(syncVersion, 10))); err != nil {
		return err
	}
	return s.meta.Delete(ctx, profileModifiedKey)
}

// MarkProfilePushed stamps the server-issued version after a successful
// upload and clears the modified flag.
func (s *Store) MarkProfilePushed(ctx context.Context, syncVersion int64) error {
	if err := s.meta.Set(ctx, profileSyncVersionKey, []byte(strconv.FormatInt(syncVersion, 10))); err != nil {
		return err
	}
	return s.meta.Delete(ctx, profileModifiedKey)
}
