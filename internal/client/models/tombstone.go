package models

import "time"

// Tombstone records that a chat known to be synced stopped appearing in
// remote listings. It defers the local delete until the absence has
// out-lived both the TTL window and the local quiescence grace period,
// so a chat that was just uploaded but has not yet propagated to an
// eventually consistent listing is never deleted.
type Tombstone struct {
	ChatID string

	// LastSeenLocally is the last time the chat was observed (written or
	// confirmed) on this device.
	LastSeenLocally time.Time

	// FirstMissingFromRemote is when the chat first failed to appear in a
	// complete pull pass, nil while it is still present remotely.
	FirstMissingFromRemote *time.Time
}

// EligibleForDeletion reports whether the tombstone may be promoted to a
// hard local delete. Both conditions must hold:
//
//	now - FirstMissingFromRemote > ttl
//	now - LastSeenLocally > grace
func (t Tombstone) EligibleForDeletion(now time.Time, grace, ttl time.Duration) bool {
	if t.FirstMissingFromRemote == nil {
		return false
	}
	return now.Sub(*t.FirstMissingFromRemote) > ttl && now.Sub(t.LastSeenLocally) > grace
}
