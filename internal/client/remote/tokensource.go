package remote

import (
	"context"
	"net/http"
)

// TokenSource obtains bearer tokens from the server's token endpoint on
// behalf of a fixed user. It plugs into the auth token supplier as its
// backing source.
type TokenSource struct {
	client *Client
	userID string
}

// NewTokenSource returns a TokenSource requesting tokens for userID
// through client.
func NewTokenSource(client *Client, userID string) *TokenSource {
	return &TokenSource{client: client, userID: userID}
}

func (t *TokenSource) UserID() string { return t.userID }

func (t *TokenSource) SignedIn() bool { return t.userID != "" }

// GetToken requests a fresh bearer token for the configured user.
func (t *TokenSource) GetToken(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"userId": t.userID}
	if err := t.client.do(ctx, http.MethodPost, t.client.baseURL+"/auth/token", "", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}
