// Package remote implements the HTTP client for the cloud chat API.
// Payloads cross the wire as ciphertext; the client never sees plaintext.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/logging"
)

const defaultRequestTimeout = 30 * time.Second

// Chat is the wire form of an encrypted chat record. Byte fields travel
// as base64 strings over JSON.
type Chat struct {
	ID          string `json:"id"`
	Ciphertext  []byte `json:"ciphertext"`
	Nonce       []byte `json:"nonce"`
	CreatedAtMs int64  `json:"createdAtMs"`
	SyncVersion int64  `json:"syncVersion"`

	// HasTemporaryID marks an upload under a locally minted ID; the
	// server responds with the canonical one.
	HasTemporaryID bool `json:"hasTemporaryId,omitempty"`
}

// ListResult is one page of the remote chat listing.
type ListResult struct {
	Chats                 []Chat `json:"chats"`
	HasMore               bool   `json:"hasMore"`
	NextContinuationToken string `json:"nextContinuationToken,omitempty"`
}

// PutResult acknowledges an upload. ID is the canonical identifier: it
// differs from the uploaded one when the server replaced a temporary ID.
type PutResult struct {
	ID          string `json:"id"`
	SyncVersion int64  `json:"syncVersion"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client talks to one chat API endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient returns a Client for the given base URL, e.g.
// "https://chat.example.com".
func NewClient(baseURL string, logger logging.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger,
	}
}

// ListChats fetches one page of the remote listing. An empty
// continuation token starts from the beginning.
func (c *Client) ListChats(ctx context.Context, token string, limit int, continuationToken string) (*ListResult, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if continuationToken != "" {
		q.Set("continuationToken", continuationToken)
	}
	endpoint := c.baseURL + "/chats"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var result ListResult
	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PutChat uploads one encrypted chat. The server stamps a new SyncVersion
// and, for a first upload under a temporary ID, assigns the canonical ID.
func (c *Client) PutChat(ctx context.Context, token string, chat Chat) (*PutResult, error) {
	endpoint := c.baseURL + "/chats/" + url.PathEscape(chat.ID)

	var result PutResult
	if err := c.do(ctx, http.MethodPut, endpoint, token, chat, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteChat removes one chat remotely. Deleting an absent chat is not an
// error; the outcome is the same.
func (c *Client) DeleteChat(ctx context.Context, token string, id string) error {
	endpoint := c.baseURL + "/chats/" + url.PathEscape(id)
	err := c.do(ctx, http.MethodDelete, endpoint, token, nil, nil)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	c.logger.Debug(ctx, "remote request", "method", method, "url", endpoint, "status", resp.StatusCode)

	if resp.StatusCode >= 400 {
		return c.statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&eb)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrorNotFound
	case resp.StatusCode == http.StatusBadRequest && eb.Error == "invalid continuation token":
		return common.ErrInvalidContinuationToken
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server status %d", common.ErrNetworkFailure, resp.StatusCode)
	default:
		if eb.Error != "" {
			return fmt.Errorf("server status %d: %s", resp.StatusCode, eb.Error)
		}
		return fmt.Errorf("server status %d", resp.StatusCode)
	}
}
