// Package config loads runtime configuration for the chat sync client.
//
// Sources and precedence, later overriding earlier:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional .env file in the working directory (godotenv) plus
//     CHATSYNC_* environment variables.
//  3. Optional JSON file selected via -c or -config.
//  4. Command-line flags.
package config

import "time"

// Config holds runtime settings for the chat sync client.
type Config struct {
	// ServerEndpointAddr is the base URL of the remote chat API.
	ServerEndpointAddr string

	// DatabaseDSN locates the local SQLite database file.
	DatabaseDSN string

	// SecretFile optionally points to a file holding the key-derivation
	// secret. When empty the client prompts for a passphrase.
	SecretFile string

	// UserID identifies this device's user to the remote API. When empty
	// the client runs signed out and syncs nothing.
	UserID string

	ChatSyncInterval    time.Duration
	ProfileSyncInterval time.Duration

	// RetryDelay is the constant delay between in-cycle retries of
	// transient network failures.
	RetryDelay time.Duration

	// DeletionGrace is the minimum local quiescence before a tombstoned
	// chat may be removed.
	DeletionGrace time.Duration

	// DeletionTTL is the minimum remote absence before a tombstoned chat
	// may be removed.
	DeletionTTL time.Duration

	ChatsPerPage int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabaseDSN = "chatsync.db"
	c.ChatSyncInterval = 30 * time.Second
	c.ProfileSyncInterval = 5 * time.Minute
	c.RetryDelay = 5 * time.Second
	c.DeletionGrace = 15 * time.Minute
	c.DeletionTTL = 24 * time.Hour
	c.ChatsPerPage = 50
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from the environment, JSON (if present) and command-line flags. Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
