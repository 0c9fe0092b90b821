package chats

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
)

// MemoryRepository is the session-scoped fallback used when the
// persistent store is unavailable. It does not survive process restarts.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]*models.ChatRow
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]*models.ChatRow)}
}

func cloneRow(row *models.ChatRow) *models.ChatRow {
	c := *row
	if row.SyncedAtMs != nil {
		v := *row.SyncedAtMs
		c.SyncedAtMs = &v
	}
	c.Ciphertext = append([]byte(nil), row.Ciphertext...)
	c.Nonce = append([]byte(nil), row.Nonce...)
	return &c
}

func (r *MemoryRepository) Upsert(ctx context.Context, row *models.ChatRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ID] = cloneRow(row)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.ChatRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneRow(row), nil
}

func (r *MemoryRepository) sortedLocked() []*models.ChatRow {
	result := make([]*models.ChatRow, 0, len(r.rows))
	for _, row := range r.rows {
		result = append(result, cloneRow(row))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (r *MemoryRepository) ListAll(ctx context.Context) ([]*models.ChatRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(), nil
}

func (r *MemoryRepository) ListPage(ctx context.Context, afterID string, limit int) ([]*models.ChatRow, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var page []*models.ChatRow
	for _, row := range r.sortedLocked() {
		if row.ID <= afterID {
			continue
		}
		if len(page) == limit {
			return page, true, nil
		}
		page = append(page, row)
	}
	return page, false, nil
}

func (r *MemoryRepository) ListLocallyModified(ctx context.Context) ([]*models.ChatRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.ChatRow
	for _, row := range r.sortedLocked() {
		if row.LocallyModified {
			result = append(result, row)
		}
	}
	return result, nil
}

func (r *MemoryRepository) ListSyncedIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, row := range r.sortedLocked() {
		if row.SyncedAtMs != nil {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

func (r *MemoryRepository) Rename(ctx context.Context, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[from]
	if !ok {
		return common.ErrorNotFound
	}
	delete(r.rows, from)
	row.ID = to
	row.HasTemporaryID = false
	r.rows[to] = row
	return nil
}

func (r *MemoryRepository) UpdateAfterPush(ctx context.Context, id string, pushedCiphertext []byte, syncedAtMs, syncVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	row.SyncedAtMs = &syncedAtMs
	row.SyncVersion = syncVersion
	if bytes.Equal(row.Ciphertext, pushedCiphertext) {
		row.LocallyModified = false
	}
	row.HasTemporaryID = false
	return nil
}

func (r *MemoryRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *MemoryRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = make(map[string]*models.ChatRow)
	return nil
}
