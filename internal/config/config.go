package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingSessionSecret = errors.New("SESSION_SECRET is required")
	ErrMissingJWTSecret     = errors.New("JWT_SECRET is required")
	ErrInvalidCORSOrigins   = errors.New("invalid CORS_ORIGINS")
)

// Session store backends
const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP Server Configuration
	Server ServerConfig

	// Database Configuration
	Database DatabaseConfig

	// Redis Configuration
	Redis RedisConfig

	// Authentication Configuration
	Auth AuthConfig

	// User lifecycle Configuration
	Users UsersConfig

	// Logging Configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address string // Redis address (host:port)
}

// AuthConfig holds secrets and lifetimes for sessions and tokens
type AuthConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
	SessionStore  string // redis, memory
	JWTSecret     string
	TokenTTL      time.Duration
	PolicyFile    string // optional YAML route policy overrides
}

// UsersConfig holds inactive user purge configuration
type UsersConfig struct {
	InactiveTTL   time.Duration
	PurgeSchedule string // cron expression
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	sessionTTL, err := durationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	tokenTTL, err := durationEnv("TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	inactiveTTL, err := durationEnv("INACTIVE_USER_TTL", 48*time.Hour)
	if err != nil {
		return nil, err
	}

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		return nil, ErrMissingSessionSecret
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	sessionStore := strings.ToLower(stringEnv("SESSION_STORE", SessionStoreRedis))
	if sessionStore != SessionStoreRedis && sessionStore != SessionStoreMemory {
		return nil, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreRedis, SessionStoreMemory, sessionStore)
	}

	corsOrigins := splitList(stringEnv("CORS_ORIGINS", "http://localhost:5173"))
	if err := validateOrigins(corsOrigins); err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port:        stringEnv("PORT", "8080"),
			CORSOrigins: corsOrigins,
		},
		Database: DatabaseConfig{
			URL: stringEnv("DATABASE_URL", "storefront.sqlite"),
		},
		Redis: RedisConfig{
			Address: stringEnv("REDIS_ADDRESS", "localhost:6379"),
		},
		Auth: AuthConfig{
			SessionSecret: sessionSecret,
			SessionTTL:    sessionTTL,
			SessionStore:  sessionStore,
			JWTSecret:     jwtSecret,
			TokenTTL:      tokenTTL,
			PolicyFile:    os.Getenv("ROUTE_POLICY_FILE"),
		},
		Users: UsersConfig{
			InactiveTTL:   inactiveTTL,
			PurgeSchedule: stringEnv("PURGE_SCHEDULE", "0 * * * *"),
		},
		Logging: LoggingConfig{
			Level:  stringEnv("LOG_LEVEL", "info"),
			Format: stringEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// splitList splits a comma separated list, dropping blanks
func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateOrigins accepts "*" or absolute http(s) origins without a path
func validateOrigins(origins []string) error {
	if len(origins) == 0 {
		return fmt.Errorf("%w: at least one origin is required", ErrInvalidCORSOrigins)
	}
	for _, origin := range origins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || strings.Trim(u.Path, "/") != "" {
			return fmt.Errorf("%w: %q must be \"*\" or scheme://host[:port]", ErrInvalidCORSOrigins, origin)
		}
	}
	return nil
}
