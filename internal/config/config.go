package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

type AppConfig struct {
	Port int

	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	StockfishPath     string
	EngineThreads     int
	EngineHashMB      int
	EngineIdleTimeout time.Duration

	MessageDir         string
	LiveOutboundBuffer int
	ShutdownTimeout    time.Duration
}

func (c *AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads an optional .env file and then the environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		Port:               envIntOr("APP_PORT", 8080),
		StoreDriver:        strings.ToLower(envOr("STORE_DRIVER", "")),
		DatabaseURL:        envOr("DATABASE_URL", ""),
		SQLitePath:         envOr("SQLITE_PATH", "file:chess.db?_foreign_keys=on"),
		RedisURL:           envOr("REDIS_URL", ""),
		StockfishPath:      envOr("STOCKFISH_PATH", "stockfish"),
		EngineThreads:      envIntOr("ENGINE_THREADS", 1),
		EngineHashMB:       envIntOr("ENGINE_HASH_MB", 16),
		EngineIdleTimeout:  time.Duration(envIntOr("ENGINE_IDLE_TIMEOUT_SEC", 900)) * time.Second,
		MessageDir:         envOr("MESSAGE_DIR", ""),
		LiveOutboundBuffer: envIntOr("LIVE_OUTBOUND_BUFFER", 32),
		ShutdownTimeout:    time.Duration(envIntOr("SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = postgresURLFromParts()
	}
	if cfg.StoreDriver == "" {
		switch {
		case cfg.DatabaseURL != "":
			cfg.StoreDriver = DriverPostgres
		default:
			cfg.StoreDriver = DriverMemory
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("APP_PORT out of range: %d", c.Port)
	}
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL (or DB_HOST/DB_NAME) is required for postgres store")
		}
	case DriverRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.EngineThreads <= 0 {
		return fmt.Errorf("ENGINE_THREADS must be > 0: %d", c.EngineThreads)
	}
	if c.EngineIdleTimeout < 0 {
		return fmt.Errorf("ENGINE_IDLE_TIMEOUT_SEC must be >= 0: %d", int(c.EngineIdleTimeout/time.Second))
	}
	if c.LiveOutboundBuffer <= 0 {
		return fmt.Errorf("LIVE_OUTBOUND_BUFFER must be > 0: %d", c.LiveOutboundBuffer)
	}
	return nil
}

// postgresURLFromParts builds a DSN from DB_HOST, DB_PORT, DB_USER,
// DB_PASSWORD and DB_NAME. It returns "" when DB_HOST or DB_NAME is unset.
func postgresURLFromParts() string {
	host := envOr("DB_HOST", "")
	name := envOr("DB_NAME", "")
	if host == "" || name == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", host, envIntOr("DB_PORT", 5432)),
		Path:     "/" + name,
		RawQuery: "sslmode=" + envOr("DB_SSLMODE", "disable"),
	}
	if user := envOr("DB_USER", ""); user != "" {
		if pass, ok := os.LookupEnv("DB_PASSWORD"); ok {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
