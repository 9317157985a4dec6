package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Pairing.ConnectTimeout.Std(); got != 30*time.Second {
		t.Errorf("connect_timeout = %v, want 30s", got)
	}
	if got := cfg.Pairing.RequestTimeout.Std(); got != 2*time.Minute {
		t.Errorf("request_timeout = %v, want 2m", got)
	}
	if cfg.Database.Mode != "file" {
		t.Errorf("mode = %q, want file", cfg.Database.Mode)
	}
}

func TestLoad_JSON5(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pairlink.json5", `{
		// comments and trailing commas are fine
		gateway: { port: 9000, token: "secret", },
		pairing: { connect_timeout: "5s", request_timeout: 45 },
		database: { mode: "SQLite", path: "/tmp/p.db" },
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 9000 || cfg.Gateway.Token != "secret" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("host = %q, default should survive partial override", cfg.Gateway.Host)
	}
	if got := cfg.Pairing.ConnectTimeout.Std(); got != 5*time.Second {
		t.Errorf("connect_timeout = %v, want 5s", got)
	}
	if got := cfg.Pairing.RequestTimeout.Std(); got != 45*time.Second {
		t.Errorf("request_timeout = %v, want 45s", got)
	}
	if cfg.Database.Mode != "sqlite" {
		t.Errorf("mode = %q, want sqlite", cfg.Database.Mode)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pairlink.yaml", `
pairing:
  connect_timeout: 10s
  request_timeout: 1m
database:
  mode: postgres
  postgres_dsn: postgres://localhost/pairlink
log:
  level: DEBUG
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Pairing.ConnectTimeout.Std(); got != 10*time.Second {
		t.Errorf("connect_timeout = %v, want 10s", got)
	}
	if cfg.Database.Mode != "managed" {
		t.Errorf("mode = %q, want managed", cfg.Database.Mode)
	}
	if cfg.Log.Format != "json" || cfg.Log.SlogLevel().String() != "DEBUG" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAIRLINK_CONNECT_TIMEOUT", "3s")
	t.Setenv("PAIRLINK_GATEWAY_TOKEN", "from-env")
	t.Setenv("PAIRLINK_GATEWAY_PORT", "19000")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Pairing.ConnectTimeout.Std(); got != 3*time.Second {
		t.Errorf("connect_timeout = %v, want 3s", got)
	}
	if cfg.Gateway.Token != "from-env" || cfg.Gateway.Port != 19000 {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"bad duration", `{pairing: {connect_timeout: "soon"}}`},
		{"negative timeout", `{pairing: {request_timeout: "-1s"}}`},
		{"managed without dsn", `{database: {mode: "managed"}}`},
		{"unknown mode", `{database: {mode: "cassandra"}}`},
		{"bad port", `{gateway: {port: 70000}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "c.json5", tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pairlink.json5", `{pairing: {connect_timeout: "5s"}}`)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	w.debounce = 10 * time.Millisecond

	var got atomic.Int64
	w.OnChange(func(cfg *Config) { got.Store(int64(cfg.Pairing.ConnectTimeout)) })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, dir, "pairlink.json5", `{pairing: {connect_timeout: "7s"}}`)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if time.Duration(got.Load()) == 7*time.Second {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("connect_timeout after reload = %v, want 7s", time.Duration(got.Load()))
}
