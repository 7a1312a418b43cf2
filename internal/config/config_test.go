package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	def := Default()
	if cfg.BaseURL != def.BaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, def.BaseURL)
	}
	if cfg.APIVersion != "v1" {
		t.Errorf("APIVersion = %q, want v1", cfg.APIVersion)
	}
	if cfg.TimeoutSec != 30 {
		t.Errorf("TimeoutSec = %d, want 30", cfg.TimeoutSec)
	}
	if cfg.Mirror.IntervalSec != 120 {
		t.Errorf("Mirror.IntervalSec = %d, want 120", cfg.Mirror.IntervalSec)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `base_url: http://localhost:9000
api_version: v2
timeout_sec: 5
log_level: debug
user_id: 42
mirror:
  db_path: /tmp/mirror.db
  interval_sec: 10
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "http://localhost:9000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.APIVersion != "v2" {
		t.Errorf("APIVersion = %q", cfg.APIVersion)
	}
	if cfg.Timeout().Seconds() != 5 {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout())
	}
	if cfg.UserID != 42 {
		t.Errorf("UserID = %d, want 42", cfg.UserID)
	}
	if cfg.Mirror.DBPath != "/tmp/mirror.db" {
		t.Errorf("Mirror.DBPath = %q", cfg.Mirror.DBPath)
	}
	if cfg.MirrorInterval().Seconds() != 10 {
		t.Errorf("MirrorInterval = %v, want 10s", cfg.MirrorInterval())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PULSE_API_KEY", "from-env")
	t.Setenv("PULSE_BASE_URL", "http://env.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.APIKey)
	}
	if cfg.BaseURL != "http://env.example" {
		t.Errorf("BaseURL = %q, want http://env.example", cfg.BaseURL)
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: loud\n"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestSaveRoundTripOmitsAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.APIKey = "secret"
	cfg.UserID = 7
	cfg.LogLevel = "info"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved config: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("saved config contains the API key:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.UserID != 7 || loaded.LogLevel != "info" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.name)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
