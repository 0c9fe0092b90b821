// Package authtoken wraps the identity provider's token getter. Tokens
// are opaque bearer strings: the client never inspects their contents,
// only their presence and 401 responses.
package authtoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
)

// TokenSource supplies identity data from the hosted identity provider.
// Implementations are expected to handle their own refresh and backoff;
// the supplier only retries once on an authorization failure.
type TokenSource interface {
	// UserID identifies the signed-in user, empty when signed out.
	UserID() string

	// SignedIn reports whether a user session exists. When false the
	// sync engine operates in local-only mode and GetToken is never
	// called.
	SignedIn() bool

	// GetToken resolves the current bearer token. An empty token with a
	// nil error means no token is available.
	GetToken(ctx context.Context) (string, error)
}

// DisabledSource is the capability-checked fallback selected at process
// start when no identity provider is configured. It reports signed-out
// and supplies no tokens.
type DisabledSource struct{}

func (DisabledSource) UserID() string { return "" }
func (DisabledSource) SignedIn() bool { return false }
func (DisabledSource) GetToken(ctx context.Context) (string, error) { return "", nil }

// Supplier mediates between the sync engine and a TokenSource.
type Supplier struct {
	mu     sync.RWMutex
	source TokenSource
}

// NewSupplier returns a Supplier with no source registered. Using it
// before SetSource yields common.ErrNotInitialized.
func NewSupplier() *Supplier {
	return &Supplier{}
}

// NewSupplierWithSource returns a Supplier bound to the given source.
func NewSupplierWithSource(source TokenSource) *Supplier {
	return &Supplier{source: source}
}

// SetSource installs or replaces the token source.
func (s *Supplier) SetSource(source TokenSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
}

func (s *Supplier) getSource() TokenSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// SignedIn reports whether an authenticated session exists. An
// unconfigured supplier reports signed-out.
func (s *Supplier) SignedIn() bool {
	source := s.getSource()
	return source != nil && source.SignedIn()
}

// UserID returns the signed-in user's ID, empty when signed out or
// unconfigured.
func (s *Supplier) UserID() string {
	source := s.getSource()
	if source == nil {
		return ""
	}
	return source.UserID()
}

// GetValidToken resolves a non-empty bearer token. It fails with
// common.ErrNotInitialized when no source was registered and with
// common.ErrNoToken when the source resolves to empty.
func (s *Supplier) GetValidToken(ctx context.Context) (string, error) {
	source := s.getSource()
	if source == nil {
		return "", common.ErrNotInitialized
	}
	token, err := source.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("token getter: %w", err)
	}
	if token == "" {
		return "", common.ErrNoToken
	}
	return token, nil
}

// IsAuthFailure reports whether err represents an authorization failure:
// the common.ErrorUnauthorized sentinel, or an error message carrying
// "401" or "unauthorized".
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, common.ErrorUnauthorized) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized")
}

// WithAuthRetry executes op with a valid token. On an authorization
// failure it fetches a fresh token once and retries op exactly once; a
// second authorization failure propagates. Non-auth failures propagate
// immediately.
func (s *Supplier) WithAuthRetry(ctx context.Context, op func(ctx context.Context, token string) error) error {
	token, err := s.GetValidToken(ctx)
	if err != nil {
		return err
	}

	err = op(ctx, token)
	if err == nil || !IsAuthFailure(err) {
		return err
	}

	token, terr := s.GetValidToken(ctx)
	if terr != nil {
		return terr
	}
	return op(ctx, token)
}
