package tombstones

import (
	"context"
	"sort"
	"sync"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
)

// MemoryRepository is the session-scoped fallback implementation.
type MemoryRepository struct {
	mu         sync.RWMutex
	tombstones map[string]models.Tombstone
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tombstones: make(map[string]models.Tombstone)}
}

func (r *MemoryRepository) Upsert(ctx context.Context, ts *models.Tombstone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *ts
	if ts.FirstMissingFromRemote != nil {
		v := *ts.FirstMissingFromRemote
		copy.FirstMissingFromRemote = &v
	}
	r.tombstones[ts.ChatID] = copy
	return nil
}

func (r *MemoryRepository) GetByChatID(ctx context.Context, chatID string) (*models.Tombstone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.tombstones[chatID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &ts, nil
}

func (r *MemoryRepository) ListAll(ctx context.Context) ([]*models.Tombstone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Tombstone, 0, len(r.tombstones))
	for _, ts := range r.tombstones {
		copy := ts
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChatID < result[j].ChatID })
	return result, nil
}

func (r *MemoryRepository) DeleteByChatID(ctx context.Context, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tombstones, chatID)
	return nil
}

func (r *MemoryRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tombstones = make(map[string]models.Tombstone)
	return nil
}
