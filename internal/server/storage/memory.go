package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/models"
)

// MemoryRepository is a map-backed Repository used by handler tests.
type MemoryRepository struct {
	mu       sync.Mutex
	chats    map[string]*models.Chat
	profiles map[string]*models.Profile
	counters map[string]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		chats:    make(map[string]*models.Chat),
		profiles: make(map[string]*models.Profile),
		counters: make(map[string]int64),
	}
}

func (r *MemoryRepository) StoreChat(ctx context.Context, chat *models.Chat) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.chats[chat.ID]; ok && existing.UserID != chat.UserID {
		return 0, common.ErrorUnauthorized
	}
	r.counters[chat.UserID]++
	chat.SyncVersion = r.counters[chat.UserID]
	clone := *chat
	r.chats[chat.ID] = &clone
	return chat.SyncVersion, nil
}

func (r *MemoryRepository) GetChat(ctx context.Context, userID, id string) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[id]
	if !ok || chat.UserID != userID {
		return nil, common.ErrorNotFound
	}
	clone := *chat
	return &clone, nil
}

func (r *MemoryRepository) ListChats(ctx context.Context, userID, afterID string, limit int) ([]*models.Chat, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, chat := range r.chats {
		if chat.UserID == userID && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	hasMore := len(ids) > limit
	if hasMore {
		ids = ids[:limit]
	}

	result := make([]*models.Chat, 0, len(ids))
	for _, id := range ids {
		clone := *r.chats[id]
		result = append(result, &clone)
	}
	return result, hasMore, nil
}

func (r *MemoryRepository) DeleteChat(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[id]
	if !ok || chat.UserID != userID {
		return common.ErrorNotFound
	}
	delete(r.chats, id)
	return nil
}

func (r *MemoryRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	clone := *profile
	return &clone, nil
}

func (r *MemoryRepository) StoreProfile(ctx context.Context, profile *models.Profile) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[profile.UserID]++
	profile.SyncVersion = r.counters[profile.UserID]
	clone := *profile
	r.profiles[profile.UserID] = &clone
	return profile.SyncVersion, nil
}
