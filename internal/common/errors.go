// Package common defines shared constants and sentinel errors used across
// client and server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth token supplier errors.
	ErrNotInitialized = errors.New("token source not initialized")
	ErrNoToken        = errors.New("no token available")
	ErrInvalidToken   = errors.New("invalid token")

	// Sync errors.
	ErrNetworkFailure           = errors.New("network failure")
	ErrInvalidContinuationToken = errors.New("invalid continuation token")

	// Crypto errors.
	ErrDecryptionFailed = errors.New("decryption failed")

	// Local store errors.
	ErrStoreUnavailable = errors.New("persistent store unavailable")
)
