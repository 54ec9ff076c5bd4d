package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment overrides, and returns the final
// Config. A missing file is not an error; the defaults are used instead. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set (i.e. not empty). The
// plain API_URL is honoured for compatibility; MARKETCLIENT_API_URL wins when
// both are set.
func applyEnvOverrides(cfg *Config) {
	// ── API ──
	setStr(&cfg.API.URL, "API_URL")
	setStr(&cfg.API.URL, "MARKETCLIENT_API_URL")
	setDuration(&cfg.API.Timeout, "MARKETCLIENT_API_TIMEOUT")

	// ── Stream ──
	setStr(&cfg.Stream.OrderBookPath, "MARKETCLIENT_STREAM_ORDER_BOOK_PATH")
	setStr(&cfg.Stream.PriceHistoryPath, "MARKETCLIENT_STREAM_PRICE_HISTORY_PATH")
	setStr(&cfg.Stream.Transport, "MARKETCLIENT_STREAM_TRANSPORT")
	setBool(&cfg.Stream.Reconnect, "MARKETCLIENT_STREAM_RECONNECT")
	setDuration(&cfg.Stream.ReconnectBase, "MARKETCLIENT_STREAM_RECONNECT_BASE")
	setDuration(&cfg.Stream.ReconnectMax, "MARKETCLIENT_STREAM_RECONNECT_MAX")
	setInt(&cfg.Stream.MaxAttempts, "MARKETCLIENT_STREAM_MAX_ATTEMPTS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKETCLIENT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETCLIENT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETCLIENT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETCLIENT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETCLIENT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETCLIENT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETCLIENT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.ChannelPrefix, "MARKETCLIENT_REDIS_CHANNEL_PREFIX")
	setDuration(&cfg.Redis.SnapshotTTL, "MARKETCLIENT_REDIS_SNAPSHOT_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETCLIENT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETCLIENT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETCLIENT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MARKETCLIENT_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETCLIENT_MODE")
	setStr(&cfg.LogLevel, "MARKETCLIENT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
