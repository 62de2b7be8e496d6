package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"medipos/backend/internal/store/memory"
)

const (
	MediumMemory   = "memory"
	MediumSQLite   = "sqlite"
	MediumPostgres = "postgres"
	MediumRedis    = "redis"
)

type Config struct {
	Port              string
	AllowedOrigin     string
	StorageMedium     string
	SQLitePath        string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	StorageQuotaBytes int
	AuthSecret        string
	RemoteBaseURL     string
	RemoteTimeout     time.Duration
	SyncInterval      time.Duration
	SyncMaxBackoff    time.Duration
	SeedDefaults      bool
	LogLevel          string
}

// Load reads the environment after pulling in an optional .env file from the
// working directory. Values already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	seed, err := strconv.ParseBool(getEnv("SEED_DEFAULTS", "true"))
	if err != nil {
		seed = true
	}

	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigin:     getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		StorageMedium:     strings.ToLower(getEnv("STORAGE_MEDIUM", MediumSQLite)),
		SQLitePath:        getEnv("SQLITE_PATH", "medipos.db"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		StorageQuotaBytes: positiveInt("STORAGE_QUOTA_BYTES", memory.DefaultQuotaBytes),
		AuthSecret:        strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		RemoteBaseURL:     strings.TrimSpace(os.Getenv("REMOTE_BASE_URL")),
		RemoteTimeout:     time.Duration(positiveInt("REMOTE_TIMEOUT_SECONDS", 10)) * time.Second,
		SyncInterval:      time.Duration(positiveInt("SYNC_INTERVAL_SECONDS", 30)) * time.Second,
		SyncMaxBackoff:    time.Duration(positiveInt("SYNC_MAX_BACKOFF_SECONDS", 300)) * time.Second,
		SeedDefaults:      seed,
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) SyncEnabled() bool {
	return c.RemoteBaseURL != ""
}

// Validate rejects medium selections that are missing their connection
// settings.
func (c Config) Validate() error {
	switch c.StorageMedium {
	case MediumMemory:
	case MediumSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite medium")
		}
	case MediumPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres medium")
		}
	case MediumRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis medium")
		}
	default:
		return fmt.Errorf("unknown STORAGE_MEDIUM %q", c.StorageMedium)
	}
	return nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
