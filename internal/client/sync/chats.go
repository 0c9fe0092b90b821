package sync

import (
	"context"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
)

// CreateChat mints a new chat with a locally generated reverse-timestamp
// ID. The ID is temporary until the first push confirmation; the server
// may replace it, in which case an IDChange event fires.
func (e *Engine) CreateChat(ctx context.Context, title string, messages []models.Message) (*models.Chat, error) {
	gen := e.ids.Generate()

	chat := &models.Chat{
		ID:              gen.ID,
		Title:           title,
		Messages:        messages,
		CreatedAt:       time.UnixMilli(gen.CreatedAtMs).UTC(),
		LocallyModified: true,
		HasTemporaryID:  true,
		IsBlank:         title == "" && len(messages) == 0,
	}
	if err := e.store.SaveChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// UpdateChat persists edited chat content and flags the chat for the
// next push cycle.
func (e *Engine) UpdateChat(ctx context.Context, chat *models.Chat) error {
	chat.LocallyModified = true
	chat.IsBlank = chat.Title == "" && len(chat.Messages) == 0
	return e.store.SaveChat(ctx, chat)
}
