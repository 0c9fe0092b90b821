package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/logging"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/reverseid"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/auth"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/storage"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T) (*httptest.Server, *storage.MemoryRepository) {
	t.Helper()

	repo := storage.NewMemoryRepository()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := NewHandler(repo, logger, testSecret, time.Hour)
	router := NewRouter(h, RouterOptions{
		SecretKey:      testSecret,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, repo
}

func bearerFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, method, url, authHeader string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestIssueToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/token", "", map[string]string{"userId": "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[tokenResponse](t, resp)
	userID, err := auth.GetUserIDFromToken(body.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestIssueTokenRejectsEmptyUser(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/token", "", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, tc := range []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer garbage"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodGet, srv.URL+"/chats", tc.header, nil)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestUpsertChat(t *testing.T) {
	srv, repo := newTestServer(t)
	authHeader := bearerFor(t, "u1")

	id := reverseid.Generate(1718000000000).ID

	t.Run("permanent id kept", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, srv.URL+"/chats/"+id, authHeader, chatUploadRequest{
			Ciphertext:  []byte("ct"),
			Nonce:       []byte("n"),
			CreatedAtMs: 1718000000000,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[map[string]any](t, resp)
		assert.Equal(t, id, body["id"])
		assert.Equal(t, float64(1), body["syncVersion"])

		stored, err := repo.GetChat(context.Background(), "u1", id)
		require.NoError(t, err)
		assert.Equal(t, []byte("ct"), stored.Ciphertext)
	})

	t.Run("version increases on every write", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, srv.URL+"/chats/"+id, authHeader, chatUploadRequest{
			Ciphertext:  []byte("ct2"),
			Nonce:       []byte("n2"),
			CreatedAtMs: 1718000000000,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[map[string]any](t, resp)
		assert.Equal(t, float64(2), body["syncVersion"])
	})

	t.Run("temporary id replaced with canonical", func(t *testing.T) {
		tempID := reverseid.Generate(1718000001000).ID
		resp := doJSON(t, http.MethodPut, srv.URL+"/chats/"+tempID, authHeader, chatUploadRequest{
			Ciphertext:     []byte("ct"),
			Nonce:          []byte("n"),
			CreatedAtMs:    1718000001000,
			HasTemporaryID: true,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[map[string]any](t, resp)
		canonical := body["id"].(string)
		assert.NotEqual(t, tempID, canonical)

		// Creation time survives the remap.
		createdAt, err := reverseid.Parse(canonical)
		require.NoError(t, err)
		assert.Equal(t, int64(1718000001000), createdAt)
	})

	t.Run("malformed id rejected", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, srv.URL+"/chats/not-an-id", authHeader, chatUploadRequest{
			Ciphertext: []byte("ct"), Nonce: []byte("n"),
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing payload rejected", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, srv.URL+"/chats/"+id, authHeader, chatUploadRequest{})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("id owned by another user conflicts", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, srv.URL+"/chats/"+id, bearerFor(t, "u2"), chatUploadRequest{
			Ciphertext: []byte("ct"), Nonce: []byte("n"), CreatedAtMs: 1718000000000,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestListChats(t *testing.T) {
	srv, repo := newTestServer(t)
	authHeader := bearerFor(t, "u1")

	for i := 0; i < 5; i++ {
		id := reverseid.Generate(1718000000000 + int64(i)).ID
		_, err := repo.StoreChat(context.Background(), &models.Chat{
			ID: id, UserID: "u1", Ciphertext: []byte(fmt.Sprintf("ct%d", i)), Nonce: []byte("n"),
			CreatedAtMs: 1718000000000 + int64(i),
		})
		require.NoError(t, err)
	}
	// Another user's chat never leaks into the listing.
	otherID := reverseid.Generate(1718000000000).ID
	_, err := repo.StoreChat(context.Background(), &models.Chat{
		ID: otherID, UserID: "u2", Ciphertext: []byte("x"), Nonce: []byte("n"),
	})
	require.NoError(t, err)

	var collected []chatResponse
	token := ""
	pages := 0
	for {
		url := srv.URL + "/chats?limit=2"
		if token != "" {
			url += "&continuationToken=" + token
		}
		resp := doJSON(t, http.MethodGet, url, authHeader, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		page := decodeBody[listChatsResponse](t, resp)
		collected = append(collected, page.Chats...)
		pages++
		if !page.HasMore {
			break
		}
		require.NotEmpty(t, page.NextContinuationToken)
		token = page.NextContinuationToken
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, collected, 5)
	for i := 1; i < len(collected); i++ {
		assert.Less(t, collected[i-1].ID, collected[i].ID, "listing must be ordered by id")
	}
}

func TestListChatsInvalidContinuationToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/chats?continuationToken=%21%21%21", bearerFor(t, "u1"), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "invalid continuation token", body["error"])
}

func TestDeleteChat(t *testing.T) {
	srv, repo := newTestServer(t)
	authHeader := bearerFor(t, "u1")

	id := reverseid.Generate(1718000000000).ID
	_, err := repo.StoreChat(context.Background(), &models.Chat{
		ID: id, UserID: "u1", Ciphertext: []byte("ct"), Nonce: []byte("n"),
	})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/chats/"+id, authHeader, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/chats/"+id, authHeader, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProfileRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	authHeader := bearerFor(t, "u1")

	resp := doJSON(t, http.MethodGet, srv.URL+"/profile", authHeader, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no profile uploaded yet")

	resp = doJSON(t, http.MethodPut, srv.URL+"/profile", authHeader, map[string]any{
		"ciphertext": []byte("sealed"),
		"nonce":      []byte("n"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	put := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(1), put["syncVersion"])

	resp = doJSON(t, http.MethodGet, srv.URL+"/profile", authHeader, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(1), got["syncVersion"])
}

func TestRateLimit(t *testing.T) {
	repo := storage.NewMemoryRepository()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := NewHandler(repo, logger, testSecret, time.Hour)
	router := NewRouter(h, RouterOptions{SecretKey: testSecret, RateLimitRPS: 1, RateLimitBurst: 2})
	srv := httptest.NewServer(router)
	defer srv.Close()

	limited := false
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst exhaustion must trip the limiter")
}
