package remote

import (
	"context"
	"net/http"
)

// Profile is the wire form of the user's encrypted profile record. There
// is one per user; it versions independently of chats.
type Profile struct {
	Ciphertext  []byte `json:"ciphertext"`
	Nonce       []byte `json:"nonce"`
	SyncVersion int64  `json:"syncVersion"`
}

// ProfilePutResult acknowledges a profile upload.
type ProfilePutResult struct {
	SyncVersion int64 `json:"syncVersion"`
}

// GetProfile fetches the user's profile record, or common.ErrorNotFound
// when none was ever uploaded.
func (c *Client) GetProfile(ctx context.Context, token string) (*Profile, error) {
	var result Profile
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/profile", token, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PutProfile uploads the user's profile record. The server stamps a new
// SyncVersion.
func (c *Client) PutProfile(ctx context.Context, token string, profile Profile) (*ProfilePutResult, error) {
	var result ProfilePutResult
	if err := c.do(ctx, http.MethodPut, c.baseURL+"/profile", token, profile, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
