package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backends for the durable pending queue.
const (
	StorageFile  = "file"
	StorageRedis = "redis"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Remote document datastore
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Durable KV store holding the pending queue
	StorageBackend  string
	StoragePath     string
	RedisURL        string
	QueueStorageKey string

	// Background work
	AutoProcessInterval time.Duration
	ProbeInterval       time.Duration
	ProbeTimeout        time.Duration

	// Replays per second per entity kind; 0 disables limiting
	ReplayRateLimit int
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		StorageBackend:  getEnv("STORAGE_BACKEND", StorageFile),
		StoragePath:     getEnv("STORAGE_PATH", "./data/offline-queue"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueStorageKey: getEnv("QUEUE_STORAGE_KEY", "offline_queue_v1"),

		AutoProcessInterval: getDuration("AUTO_PROCESS_INTERVAL", 15*time.Second),
		ProbeInterval:       getDuration("CONNECTIVITY_PROBE_INTERVAL", 5*time.Second),
		ProbeTimeout:        getDuration("CONNECTIVITY_PROBE_TIMEOUT", 2*time.Second),

		ReplayRateLimit: getInt("REPLAY_RATE_LIMIT", 20),
	}

	switch cfg.StorageBackend {
	case StorageFile, StorageRedis:
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageFile, StorageRedis, cfg.StorageBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
