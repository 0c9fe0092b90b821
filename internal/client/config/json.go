package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/flagx"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies
// on timex.Duration so JSON can specify intervals either as strings like
// "30s" or as integer nanoseconds. After parsing, values are copied into
// the runtime Config.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DatabaseDSN         string         `json:"database_dsn"`
	SecretFile          string         `json:"secret_file"`
	UserID              string         `json:"user_id"`
	ChatSyncInterval    timex.Duration `json:"chat_sync_interval"`
	ProfileSyncInterval timex.Duration `json:"profile_sync_interval"`
	RetryDelay          timex.Duration `json:"retry_delay"`
	DeletionGrace       timex.Duration `json:"deletion_grace"`
	DeletionTTL         timex.Duration `json:"deletion_ttl"`
	ChatsPerPage        int            `json:"chats_per_page"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c or -config flag; when neither is set no JSON is
// loaded. Read or unmarshal errors panic; configuration is resolved once
// at startup and a malformed file should stop the process.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.SecretFile != "" {
		cfg.SecretFile = jc.SecretFile
	}
	if jc.UserID != "" {
		cfg.UserID = jc.UserID
	}
	if jc.ChatSyncInterval.Duration > 0 {
		cfg.ChatSyncInterval = time.Duration(jc.ChatSyncInterval.Duration)
	}
	if jc.ProfileSyncInterval.Duration > 0 {
		cfg.ProfileSyncInterval = time.Duration(jc.ProfileSyncInterval.Duration)
	}
	if jc.RetryDelay.Duration > 0 {
		cfg.RetryDelay = time.Duration(jc.RetryDelay.Duration)
	}
	if jc.DeletionGrace.Duration > 0 {
		cfg.DeletionGrace = time.Duration(jc.DeletionGrace.Duration)
	}
	if jc.DeletionTTL.Duration > 0 {
		cfg.DeletionTTL = time.Duration(jc.DeletionTTL.Duration)
	}
	if jc.ChatsPerPage > 0 {
		cfg.ChatsPerPage = jc.ChatsPerPage
	}
}
