package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/flagx"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	EndpointAddr          string         `json:"endpoint_addr"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	RateLimitRPS          float64        `json:"rate_limit_rps"`
	RateLimitBurst        int            `json:"rate_limit_burst"`
}

// parseJson overlays Config with values loaded from the JSON file named
// by the -c or -config flag. Read or unmarshal errors panic; a malformed
// config file should stop the process at startup.
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

	if jc.EndpointAddr != "" {
		cfg.EndpointAddr = jc.EndpointAddr
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.SecretKey != "" {
		cfg.SecretKey = jc.SecretKey
	}
	if jc.TokenValidityDuration.Duration > 0 {
		cfg.TokenValidityDuration = time.Duration(jc.TokenValidityDuration.Duration)
	}
	if jc.RateLimitRPS > 0 {
		cfg.RateLimitRPS = jc.RateLimitRPS
	}
	if jc.RateLimitBurst > 0 {
		cfg.RateLimitBurst = jc.RateLimitBurst
	}
}
