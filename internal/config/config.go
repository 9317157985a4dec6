// Package config loads the pairlink configuration from a JSON5 or YAML
// file, applies PAIRLINK_* environment overrides and watches the file for
// hot-reloadable changes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("30s",
// "2m") or as a number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json5.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(x * float64(time.Second))
	case int:
		*d = Duration(time.Duration(x) * time.Second)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Config is the root configuration.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Pairing   PairingConfig   `json:"pairing" yaml:"pairing"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	History   HistoryConfig   `json:"history" yaml:"history"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// GatewayConfig configures the websocket gateway.
type GatewayConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	Token        string `json:"token,omitempty" yaml:"token,omitempty" secret:"true"`
	RateLimitRPM int    `json:"rate_limit_rpm" yaml:"rate_limit_rpm"` // 0 disables
	Burst        int    `json:"burst" yaml:"burst"`
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// PairingConfig configures the session registry.
type PairingConfig struct {
	ConnectTimeout  Duration `json:"connect_timeout" yaml:"connect_timeout"`
	RequestTimeout  Duration `json:"request_timeout" yaml:"request_timeout"`
	SubscriberQueue int      `json:"subscriber_queue" yaml:"subscriber_queue"`
	RetiredTTL      Duration `json:"retired_ttl" yaml:"retired_ttl"`
	RetiredMax      int      `json:"retired_max" yaml:"retired_max"`
	DedupeTTL       Duration `json:"dedupe_ttl" yaml:"dedupe_ttl"`
	DedupeMax       int      `json:"dedupe_max" yaml:"dedupe_max"`
}

// DatabaseConfig selects the library and history store backend.
type DatabaseConfig struct {
	Mode        string `json:"mode" yaml:"mode"` // file | sqlite | managed
	Path        string `json:"path" yaml:"path"`
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty" secret:"true"`
}

// RedisConfig enables the status mirror when Addr is set.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" secret:"true"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty"` // grpc | http
	Insecure    bool              `json:"insecure" yaml:"insecure"`
	ServiceName string            `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" secret:"true"`
}

// HistoryConfig configures pruning of finished-pairing history.
type HistoryConfig struct {
	RetentionDays int    `json:"retention_days" yaml:"retention_days"` // 0 keeps everything
	PruneSchedule string `json:"prune_schedule" yaml:"prune_schedule"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format string `json:"format" yaml:"format"` // text | json
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "127.0.0.1",
			Port:         18790,
			RateLimitRPM: 600,
			Burst:        20,
		},
		Pairing: PairingConfig{
			ConnectTimeout:  Duration(30 * time.Second),
			RequestTimeout:  Duration(2 * time.Minute),
			SubscriberQueue: 16,
			RetiredTTL:      Duration(24 * time.Hour),
			RetiredMax:      10000,
			DedupeTTL:       Duration(10 * time.Minute),
			DedupeMax:       5000,
		},
		Database: DatabaseConfig{
			Mode: "file",
			Path: "~/.pairlink/pairlink.json",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "pairlink",
		},
		History: HistoryConfig{
			RetentionDays: 90,
			PruneSchedule: "0 3 * * *",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (JSON5 unless the extension is .yaml or .yml) over the
// defaults and applies environment overrides. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(ExpandHome(path))
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json5.Unmarshal(data, cfg)
	}
}

// ApplyEnv overrides fields from PAIRLINK_* environment variables.
func (c *Config) ApplyEnv() {
	envStr("PAIRLINK_GATEWAY_HOST", &c.Gateway.Host)
	envInt("PAIRLINK_GATEWAY_PORT", &c.Gateway.Port)
	envStr("PAIRLINK_GATEWAY_TOKEN", &c.Gateway.Token)
	envDuration("PAIRLINK_CONNECT_TIMEOUT", &c.Pairing.ConnectTimeout)
	envDuration("PAIRLINK_REQUEST_TIMEOUT", &c.Pairing.RequestTimeout)
	envStr("PAIRLINK_DATABASE_MODE", &c.Database.Mode)
	envStr("PAIRLINK_DATABASE_PATH", &c.Database.Path)
	envStr("PAIRLINK_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("PAIRLINK_REDIS_ADDR", &c.Redis.Addr)
	envStr("PAIRLINK_REDIS_PASSWORD", &c.Redis.Password)
	envStr("PAIRLINK_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("PAIRLINK_LOG_LEVEL", &c.Log.Level)
	envStr("PAIRLINK_LOG_FORMAT", &c.Log.Format)
	if c.Telemetry.Endpoint != "" && os.Getenv("PAIRLINK_OTLP_ENDPOINT") != "" {
		c.Telemetry.Enabled = true
	}
}

// Validate checks values that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	if c.Pairing.ConnectTimeout < 0 || c.Pairing.RequestTimeout < 0 {
		return fmt.Errorf("pairing timeouts must not be negative")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port %d", c.Gateway.Port)
	}
	switch c.Database.Mode {
	case "file", "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required in %s mode", c.Database.Mode)
		}
	case "managed":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required in managed mode")
		}
	default:
		return fmt.Errorf("unknown database mode %q", c.Database.Mode)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must not be negative")
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
