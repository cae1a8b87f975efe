// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env       string
	HTTPAddr  string // fleet-service
	AdminAddr string // admin-api-service

	// Dashboard auth (ordinary JWT middleware; org-specific override via provider)
	Issuer    string
	Audience  string
	JWKSURL   string
	ClockSkew time.Duration

	// Outbound calls to the STS and the rider platform
	UpstreamTimeout time.Duration

	// Master key for credential blobs at rest
	EncryptionKey string

	// Alert / KPI definition directory (yaml or json files)
	RulesDir string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:             env("FLEETGATE_ENV", "dev"),
		HTTPAddr:        env("FLEETGATE_HTTP_ADDR", ":8080"),
		AdminAddr:       env("FLEETGATE_ADMIN_ADDR", ":8082"),
		Issuer:          env("OIDC_ISSUER", ""),
		Audience:        env("OIDC_AUDIENCE", "fleetgate-dashboard"),
		JWKSURL:         env("JWKS_URL", ""),
		ClockSkew:       envDur("JWT_CLOCK_SKEW_SEC", 60) * time.Second,
		UpstreamTimeout: envDur("UPSTREAM_TIMEOUT_SEC", 30) * time.Second,
		EncryptionKey:   env("ENCRYPTION_KEY", ""),
		RulesDir:        env("RULES_DIR", ""),
		RedisURL:        env("REDIS_URL", ""),
		DatabaseURL:     env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; using in-memory organization provider for dev")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
