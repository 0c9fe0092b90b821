package syncstatus

import (
	"context"
	"sync"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
)

// MemoryRepository is the session-scoped fallback implementation.
type MemoryRepository struct {
	mu       sync.RWMutex
	statuses map[string]models.SyncStatus
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{statuses: make(map[string]models.SyncStatus)}
}

func (r *MemoryRepository) Get(ctx context.Context, scope string) (*models.SyncStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.statuses[scope]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &status, nil
}

func (r *MemoryRepository) Set(ctx context.Context, status *models.SyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[status.Scope] = *status
	return nil
}

func (r *MemoryRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = make(map[string]models.SyncStatus)
	return nil
}
