package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with CHATSERVER_* environment variables,
// loading a .env file from the working directory first when one exists.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("CHATSERVER_ENDPOINT_ADDR"); v != "" {
		cfg.EndpointAddr = v
	}
	if v := os.Getenv("CHATSERVER_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("CHATSERVER_SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("CHATSERVER_TOKEN_VALIDITY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TokenValidityDuration = d
		}
	}
	if v := os.Getenv("CHATSERVER_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("CHATSERVER_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitBurst = n
		}
	}
}
