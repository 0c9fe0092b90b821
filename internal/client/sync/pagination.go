package sync

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/remote"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/reverseid"
)

// LoadChatsRequest asks for one page of the chat listing. Continuation
// tokens are opaque and forward-only; passing a token from a different
// source (local vs remote) yields InvalidContinuationToken.
type LoadChatsRequest struct {
	Limit             int
	ContinuationToken string

	// LoadLocal allows serving the page from the local store when no
	// authenticated session exists.
	LoadLocal bool
}

// LoadChatsResult is one decrypted page.
type LoadChatsResult struct {
	Chats                 []*models.Chat
	HasMore               bool
	NextContinuationToken string
}

// LoadChatsWithPagination serves a listing page: from the remote API when
// signed in (refreshing the local cache along the way), from the local
// store when signed out and LoadLocal is set, and empty otherwise.
func (e *Engine) LoadChatsWithPagination(ctx context.Context, req LoadChatsRequest) (*LoadChatsResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = e.opts.ChatsPerPage
	}

	if !e.tokens.SignedIn() {
		if !req.LoadLocal {
			return &LoadChatsResult{}, nil
		}
		return e.loadLocalPage(ctx, req.ContinuationToken, limit)
	}
	return e.loadRemotePage(ctx, req.ContinuationToken, limit)
}

func (e *Engine) loadLocalPage(ctx context.Context, token string, limit int) (*LoadChatsResult, error) {
	afterID, err := decodeLocalToken(token)
	if err != nil {
		return nil, err
	}

	chats, hasMore, err := e.store.ListChatsPage(ctx, afterID, limit)
	if err != nil {
		return nil, err
	}

	result := &LoadChatsResult{Chats: chats, HasMore: hasMore}
	if hasMore && len(chats) > 0 {
		result.NextContinuationToken = encodeLocalToken(chats[len(chats)-1].ID)
	}
	return result, nil
}

func (e *Engine) loadRemotePage(ctx context.Context, token string, limit int) (*LoadChatsResult, error) {
	var page *remote.ListResult
	err := e.withTransientRetry(ctx, func(ctx context.Context) error {
		return e.tokens.WithAuthRetry(ctx, func(ctx context.Context, tok string) error {
			var err error
			page, err = e.remote.ListChats(ctx, tok, limit, token)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	result := &LoadChatsResult{
		HasMore:               page.HasMore,
		NextContinuationToken: page.NextContinuationToken,
		Chats:                 make([]*models.Chat, 0, len(page.Chats)),
	}
	for _, rc := range page.Chats {
		// Same guarded upsert as the pull cycle: a page refresh must not
		// clobber rows holding pending local edits with stale remote state.
		if _, err := e.applyRemoteChat(ctx, rc); err != nil {
			return nil, err
		}
		chat, err := e.store.GetChat(ctx, rc.ID)
		if err != nil {
			return nil, err
		}
		result.Chats = append(result.Chats, chat)
	}
	return result, nil
}

// Local continuation tokens are the base64url-encoded ID of the last
// chat on the previous page.
func encodeLocalToken(lastID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(lastID))
}

func decodeLocalToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidContinuationToken, err)
	}
	if _, err := reverseid.Parse(string(raw)); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidContinuationToken, err)
	}
	return string(raw), nil
}
