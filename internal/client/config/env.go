package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with CHATSYNC_* environment variables, loading
// a .env file from the working directory first when one exists. A missing
// .env file is not an error; malformed values are ignored in favor of the
// value already in place.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("CHATSYNC_SERVER_ADDR"); v != "" {
		cfg.ServerEndpointAddr = v
	}
	if v := os.Getenv("CHATSYNC_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("CHATSYNC_SECRET_FILE"); v != "" {
		cfg.SecretFile = v
	}
	if v := os.Getenv("CHATSYNC_USER_ID"); v != "" {
		cfg.UserID = v
	}
	overlayDuration(&cfg.ChatSyncInterval, "CHATSYNC_CHAT_SYNC_INTERVAL")
	overlayDuration(&cfg.ProfileSyncInterval, "CHATSYNC_PROFILE_SYNC_INTERVAL")
	overlayDuration(&cfg.RetryDelay, "CHATSYNC_RETRY_DELAY")
	overlayDuration(&cfg.DeletionGrace, "CHATSYNC_DELETION_GRACE")
	overlayDuration(&cfg.DeletionTTL, "CHATSYNC_DELETION_TTL")
	if v := os.Getenv("CHATSYNC_CHATS_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChatsPerPage = n
		}
	}
}

func overlayDuration(dst *time.Duration, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}
