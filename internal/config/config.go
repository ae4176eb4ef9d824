// Package config loads the coordinator's runtime configuration from the
// environment (or a .env file for local development), in the idiom of the
// pack's kshinn-umbra-gateway config package — the teacher's own
// internal/app/config.go is a JSON-encrypted local file appropriate to a CLI
// wallet, not a long-running server, so this follows the gateway's
// env-first shape instead (see SPEC_FULL.md §3.3).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every coordinator setting named in spec.md §6 "Configuration
// (enumerated options)". No other global state exists; one Config is built
// at startup and passed into CoordinatorContext.
type Config struct {
	MongoURL    string
	MongoDBName string

	Host string
	Port int

	Debug bool

	SecretKey string

	CORSOrigins []string

	SigningRoundTimeoutSeconds int
	TransactionTimeoutSeconds  int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MongoURL:                   getEnv("MONGODB_URL", "mongodb://localhost:27017"),
		MongoDBName:                getEnv("MONGODB_DB_NAME", "arcsign_custody"),
		Host:                       getEnv("HOST", "0.0.0.0"),
		Port:                       getEnvInt("PORT", 8080),
		Debug:                      getEnvBool("DEBUG", false),
		SecretKey:                  getEnv("SECRET_KEY", ""),
		CORSOrigins:                getEnvList("CORS_ORIGINS", nil),
		SigningRoundTimeoutSeconds: getEnvInt("SIGNING_ROUND_TIMEOUT_SECONDS", 300),
		TransactionTimeoutSeconds:  getEnvInt("TRANSACTION_TIMEOUT_SECONDS", 3600),
	}

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY env var is required (guardian session JWT signing key)")
	}
	if cfg.SigningRoundTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("SIGNING_ROUND_TIMEOUT_SECONDS must be positive")
	}
	if cfg.TransactionTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("TRANSACTION_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
