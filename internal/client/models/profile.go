package models

// ProfileContent is the sensitive part of the user profile. Like chat
// content it only ever leaves the device as ciphertext.
type ProfileContent struct {
	DisplayName string            `json:"displayName"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// ProfileRow is the persisted form of the profile: ciphertext plus sync
// bookkeeping. There is at most one per device.
type ProfileRow struct {
	Ciphertext  []byte
	Nonce       []byte
	SyncVersion int64
	Modified    bool
}
