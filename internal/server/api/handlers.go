package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/logging"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/reverseid"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/auth"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/server/storage"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	maxBodyBytes     = 10 << 20
)

// Handler serves the chat API endpoints.
type Handler struct {
	repo          storage.Repository
	logger        logging.Logger
	secretKey     []byte
	tokenValidity time.Duration
}

// NewHandler constructs a Handler over the given repository.
func NewHandler(repo storage.Repository, logger logging.Logger, secretKey []byte, tokenValidity time.Duration) *Handler {
	return &Handler{repo: repo, logger: logger, secretKey: secretKey, tokenValidity: tokenValidity}
}

type chatResponse struct {
	ID          string `json:"id"`
	Ciphertext  []byte `json:"ciphertext"`
	Nonce       []byte `json:"nonce"`
	CreatedAtMs int64  `json:"createdAtMs"`
	SyncVersion int64  `json:"syncVersion"`
}

type chatUploadRequest struct {
	Ciphertext     []byte `json:"ciphertext"`
	Nonce          []byte `json:"nonce"`
	CreatedAtMs    int64  `json:"createdAtMs"`
	HasTemporaryID bool   `json:"hasTemporaryId"`
}

type listChatsResponse struct {
	Chats                 []chatResponse `json:"chats"`
	HasMore               bool           `json:"hasMore"`
	NextContinuationToken string         `json:"nextContinuationToken,omitempty"`
}

type tokenRequest struct {
	UserID string `json:"userId"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// HandleIssueToken handles POST /auth/token. Development issuance only;
// production deployments verify identity with an external provider.
func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil || req.UserID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := auth.GenerateToken(req.UserID, h.secretKey, h.tokenValidity)
	if err != nil {
		h.logger.Error(r.Context(), "token generation failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// HandleListChats handles GET /chats. The listing is ordered by chat ID
// ascending, which is reverse-chronological by ID construction; the
// continuation token is the base64url-encoded last ID of the page.
func (h *Handler) HandleListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := defaultPageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxPageLimit {
			n = maxPageLimit
		}
		limit = n
	}

	afterID, err := decodeContinuationToken(r.URL.Query().Get("continuationToken"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid continuation token")
		return
	}

	chats, hasMore, err := h.repo.ListChats(r.Context(), userID, afterID, limit)
	if err != nil {
		h.logger.Error(r.Context(), "chat listing failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := listChatsResponse{Chats: make([]chatResponse, 0, len(chats)), HasMore: hasMore}
	for _, chat := range chats {
		resp.Chats = append(resp.Chats, chatResponse{
			ID:          chat.ID,
			Ciphertext:  chat.Ciphertext,
			Nonce:       chat.Nonce,
			CreatedAtMs: chat.CreatedAtMs,
			SyncVersion: chat.SyncVersion,
		})
	}
	if hasMore && len(chats) > 0 {
		resp.NextContinuationToken = encodeContinuationToken(chats[len(chats)-1].ID)
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleUpsertChat handles PUT /chats/{id}. The server stamps the user's
// next monotonic sync version on every write; a first upload under a
// temporary ID gets a canonical server-assigned one, preserving the
// original creation time in the new ID.
func (h *Handler) HandleUpsertChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := reverseid.Parse(id); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	var req chatUploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Ciphertext) == 0 || len(req.Nonce) == 0 {
		writeJSONError(w, http.StatusBadRequest, "missing payload")
		return
	}

	finalID := id
	if req.HasTemporaryID {
		// Re-uploads of an already adopted temporary ID keep their row;
		// only a genuinely unknown one gets a canonical replacement.
		if _, err := h.repo.GetChat(r.Context(), userID, id); errors.Is(err, common.ErrorNotFound) {
			finalID = reverseid.Generate(req.CreatedAtMs).ID
		} else if err != nil {
			h.logger.Error(r.Context(), "chat lookup failed", "error", err.Error())
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	version, err := h.repo.StoreChat(r.Context(), &models.Chat{
		ID:          finalID,
		UserID:      userID,
		Ciphertext:  req.Ciphertext,
		Nonce:       req.Nonce,
		CreatedAtMs: req.CreatedAtMs,
	})
	if errors.Is(err, common.ErrorUnauthorized) {
		writeJSONError(w, http.StatusConflict, "chat id already in use")
		return
	}
	if err != nil {
		h.logger.Error(r.Context(), "chat upsert failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": finalID, "syncVersion": version})
}

// HandleDeleteChat handles DELETE /chats/{id}.
func (h *Handler) HandleDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	err := h.repo.DeleteChat(r.Context(), userID, id)
	if errors.Is(err, common.ErrorNotFound) {
		writeJSONError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		h.logger.Error(r.Context(), "chat delete failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetProfile handles GET /profile.
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.repo.GetProfile(r.Context(), userID)
	if errors.Is(err, common.ErrorNotFound) {
		writeJSONError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		h.logger.Error(r.Context(), "profile lookup failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ciphertext":  profile.Ciphertext,
		"nonce":       profile.Nonce,
		"syncVersion": profile.SyncVersion,
	})
}

// HandleUpsertProfile handles PUT /profile.
func (h *Handler) HandleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Ciphertext []byte `json:"ciphertext"`
		Nonce      []byte `json:"nonce"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Ciphertext) == 0 || len(req.Nonce) == 0 {
		writeJSONError(w, http.StatusBadRequest, "missing payload")
		return
	}

	version, err := h.repo.StoreProfile(r.Context(), &models.Profile{
		UserID:     userID,
		Ciphertext: req.Ciphertext,
		Nonce:      req.Nonce,
	})
	if err != nil {
		h.logger.Error(r.Context(), "profile upsert failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"syncVersion": version})
}

func encodeContinuationToken(lastID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(lastID))
}

func decodeContinuationToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", common.ErrInvalidContinuationToken
	}
	if _, err := reverseid.Parse(string(raw)); err != nil {
		return "", common.ErrInvalidContinuationToken
	}
	return string(raw), nil
}
