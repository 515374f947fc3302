package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevSecretKey signs sessions when SECRET_KEY is unset. Tokens signed with it
// can be forged by anyone who has read this file.
const DevSecretKey = "fallback-dev-secret-change-me"

type Config struct {
	Addr        string
	DatabaseURL string
	CORSOrigin  string
	LogLevel    string
	// Database pool
	CommandTimeout time.Duration
	MaxConns       int
	MinConns       int
	// Sessions issued after the identity provider login
	SecretKey     string
	SessionMaxAge time.Duration
	// Staff sources configured outside the database
	AdminIDs     []int64
	StaffRoleIDs []string
	// Redis - optional, enables idempotency keys on moderation requests
	RedisURL       string
	IdempotencyTTL time.Duration
}

// Load reads configuration from the environment, after merging a local .env
// file when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:           getenv("DASHBOARD_ADDR", ":8000"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		CORSOrigin:     getenv("CORS_ORIGIN", "*"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		CommandTimeout: time.Duration(getenvInt("DB_COMMAND_TIMEOUT_SECONDS", 15)) * time.Second,
		MaxConns:       getenvInt("DB_MAX_CONNS", 8),
		MinConns:       getenvNonNegativeInt("DB_MIN_CONNS", 2),
		SecretKey:      getenv("SECRET_KEY", DevSecretKey),
		SessionMaxAge:  time.Duration(getenvInt("SESSION_MAX_AGE_SECONDS", 604800)) * time.Second,
		AdminIDs:       ParseUserIDs(os.Getenv("ADMIN_IDS")),
		StaffRoleIDs:   ParseRoleIDs(os.Getenv("STAFF_ROLE_IDS")),
		RedisURL:       getenv("REDIS_URL", ""),
		IdempotencyTTL: time.Duration(getenvInt("IDEMPOTENCY_TTL_SECONDS", 86400)) * time.Second,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	return cfg, nil
}

// ParseUserIDs splits a comma separated list of numeric user IDs. Entries that
// are not valid IDs are skipped.
func ParseUserIDs(raw string) []int64 {
	ids := make([]int64, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ParseRoleIDs splits a comma separated list of role IDs.
func ParseRoleIDs(raw string) []string {
	ids := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ids = append(ids, part)
	}
	return ids
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

// UsesDevSecret reports whether sessions are signed with DevSecretKey.
func (c Config) UsesDevSecret() bool {
	return c.SecretKey == DevSecretKey
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getenvNonNegativeInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
