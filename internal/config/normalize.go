package config

import (
	"log/slog"
	"strings"
)

// normalize lowercases enumerated values and maps accepted aliases.
func (c *Config) normalize() {
	c.Database.Mode = strings.ToLower(strings.TrimSpace(c.Database.Mode))
	switch c.Database.Mode {
	case "", "standalone", "json":
		c.Database.Mode = "file"
	case "postgres", "pg":
		c.Database.Mode = "managed"
	}

	c.Telemetry.Protocol = strings.ToLower(strings.TrimSpace(c.Telemetry.Protocol))
	if c.Telemetry.Protocol != "http" {
		c.Telemetry.Protocol = "grpc"
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format != "json" {
		c.Log.Format = "text"
	}
}

// SlogLevel maps Log.Level to a slog level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
