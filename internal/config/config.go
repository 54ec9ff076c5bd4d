// Package config defines the configuration of the market client and provides
// validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETCLIENT_* environment variables.
type Config struct {
	API      APIConfig    `toml:"api"`
	Stream   StreamConfig `toml:"stream"`
	Redis    RedisConfig  `toml:"redis"`
	Server   ServerConfig `toml:"server"`
	Mode     string       `toml:"mode"`
	LogLevel string       `toml:"log_level"`
}

// APIConfig locates the venue API.
type APIConfig struct {
	URL     string   `toml:"url"`
	Timeout duration `toml:"timeout"`
}

// StreamConfig holds the market-data stream settings.
type StreamConfig struct {
	OrderBookPath    string `toml:"order_book_path"`
	PriceHistoryPath string `toml:"price_history_path"`
	// Transport is "auto", "sse" or "ws".
	Transport string `toml:"transport"`

	// Reconnect enables redialing a dropped stream. When false a dropped
	// stream stays closed.
	Reconnect     bool     `toml:"reconnect"`
	ReconnectBase duration `toml:"reconnect_base"`
	ReconnectMax  duration `toml:"reconnect_max"`
	MaxAttempts   int      `toml:"max_attempts"`
}

// RedisConfig holds the optional Redis mirror parameters.
type RedisConfig struct {
	Enabled       bool     `toml:"enabled"`
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	ChannelPrefix string   `toml:"channel_prefix"`
	SnapshotTTL   duration `toml:"snapshot_ttl"`
}

// ServerConfig holds the relay server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		API: APIConfig{
			URL:     "http://localhost:8080",
			Timeout: duration{30 * time.Second},
		},
		Stream: StreamConfig{
			OrderBookPath:    "/order-book/stream",
			PriceHistoryPath: "/order-book/price-history",
			Transport:        "auto",
			Reconnect:        false,
			ReconnectBase:    duration{2 * time.Second},
			ReconnectMax:     duration{60 * time.Second},
			MaxAttempts:      5,
		},
		Redis: RedisConfig{
			Enabled:       false,
			Addr:          "localhost:6379",
			PoolSize:      10,
			MaxRetries:    3,
			ChannelPrefix: "marketclient:",
			SnapshotTTL:   duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8090,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// StreamURL joins the API base URL and a stream path. With the "ws"
// transport an http(s) base is rewritten to ws(s).
func (c *Config) StreamURL(path string) string {
	base := strings.TrimRight(c.API.URL, "/")
	if strings.EqualFold(c.Stream.Transport, "ws") {
		switch {
		case strings.HasPrefix(base, "https://"):
			base = "wss://" + strings.TrimPrefix(base, "https://")
		case strings.HasPrefix(base, "http://"):
			base = "ws://" + strings.TrimPrefix(base, "http://")
		}
	}
	return base + path
}

// OrderBookURL returns the order-book stream URL.
func (c *Config) OrderBookURL() string {
	return c.StreamURL(c.Stream.OrderBookPath)
}

// PriceHistoryURL returns the price-history stream URL.
func (c *Config) PriceHistoryURL() string {
	return c.StreamURL(c.Stream.PriceHistoryPath)
}

var validModes = map[string]bool{
	"server": true,
	"stream": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validTransports = map[string]bool{
	"auto": true,
	"sse":  true,
	"ws":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, stream)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// API
	if strings.TrimSpace(c.API.URL) == "" {
		errs = append(errs, "api: url must not be empty (set API_URL)")
	} else if u, err := url.Parse(c.API.URL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api: url %q is not an absolute URL", c.API.URL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Sprintf("api: url scheme must be http or https, got %q", u.Scheme))
	}
	if c.API.Timeout.Duration <= 0 {
		errs = append(errs, "api: timeout must be > 0")
	}

	// Stream
	if !strings.HasPrefix(c.Stream.OrderBookPath, "/") {
		errs = append(errs, "stream: order_book_path must start with /")
	}
	if !strings.HasPrefix(c.Stream.PriceHistoryPath, "/") {
		errs = append(errs, "stream: price_history_path must start with /")
	}
	if !validTransports[strings.ToLower(c.Stream.Transport)] {
		errs = append(errs, fmt.Sprintf("stream: unknown transport %q (valid: auto, sse, ws)", c.Stream.Transport))
	}
	if c.Stream.Reconnect {
		if c.Stream.ReconnectBase.Duration <= 0 {
			errs = append(errs, "stream: reconnect_base must be > 0 when reconnect is enabled")
		}
		if c.Stream.ReconnectMax.Duration < c.Stream.ReconnectBase.Duration {
			errs = append(errs, "stream: reconnect_max must not be less than reconnect_base")
		}
		if c.Stream.MaxAttempts < 1 {
			errs = append(errs, "stream: max_attempts must be >= 1 when reconnect is enabled")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.SnapshotTTL.Duration < 0 {
			errs = append(errs, "redis: snapshot_ttl must not be negative")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
