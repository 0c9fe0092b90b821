package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions configures the assembled router.
type RouterOptions struct {
	SecretKey      []byte
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter assembles the chat API routes around the given handler.
func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/auth/token", h.HandleIssueToken)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.SecretKey))

		r.Get("/chats", h.HandleListChats)
		r.Put("/chats/{id}", h.HandleUpsertChat)
		r.Delete("/chats/{id}", h.HandleDeleteChat)

		r.Get("/profile", h.HandleGetProfile)
		r.Put("/profile", h.HandleUpsertProfile)
	})

	return r
}
