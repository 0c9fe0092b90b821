package models

import "time"

// Sync status scopes. Chats and profile data are reconciled by
// independent cycles, so each keeps its own aggregate.
const (
	ScopeChats   = "chats"
	ScopeProfile = "profile"
)

// SyncStatus is the per-scope aggregate updated after every successful
// cycle.
type SyncStatus struct {
	Scope       string
	Count       int
	LastUpdated time.Time
}
