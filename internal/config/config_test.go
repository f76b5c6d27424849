package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := Defaults(dir)

	if cfg.Server.Port != 8787 {
		t.Errorf("expected port 8787, got %d", cfg.Server.Port)
	}
	if cfg.Server.Address != "127.0.0.1" {
		t.Errorf("expected loopback address, got %s", cfg.Server.Address)
	}
	if cfg.Storage.SQLitePath != filepath.Join(dir, "medipal.db") {
		t.Errorf("unexpected sqlite path %s", cfg.Storage.SQLitePath)
	}
	if !cfg.Reminders.DailyRollover {
		t.Error("expected daily rollover on by default")
	}
	if cfg.Expiry.WarnDays != 3 {
		t.Errorf("expected 3 warn days, got %d", cfg.Expiry.WarnDays)
	}
	if cfg.Remote.BreakerMaxFailures != 5 {
		t.Errorf("expected 5 breaker failures, got %d", cfg.Remote.BreakerMaxFailures)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medipal.yaml")
	content := `server:
  port: 9001
remote:
  base_url: http://file.example
  timeout_seconds: 15
expiry:
  warn_days: 7
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEDIPAL_TELEGRAM_CHAT_ID", "42")
	t.Setenv("MEDIPAL_SOS_API_KEY", "sms-key")

	cfg, err := Load(path, dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("expected port 9001, got %d", cfg.Server.Port)
	}
	if cfg.Remote.BaseURL != "http://file.example" {
		t.Errorf("expected file base url, got %s", cfg.Remote.BaseURL)
	}
	if cfg.Remote.TimeoutSeconds != 15 {
		t.Errorf("expected timeout 15, got %d", cfg.Remote.TimeoutSeconds)
	}
	if cfg.Expiry.WarnDays != 7 {
		t.Errorf("expected 7 warn days, got %d", cfg.Expiry.WarnDays)
	}
	if cfg.Telegram.ChatID != 42 {
		t.Errorf("expected chat id 42, got %d", cfg.Telegram.ChatID)
	}
	if cfg.SOS.APIKey != "sms-key" {
		t.Errorf("expected sos api key from env, got %q", cfg.SOS.APIKey)
	}
	if cfg.Security.JWTSecret == "" {
		t.Error("expected a generated jwt secret")
	}
	if cfg.Storage.DataDir != dir {
		t.Errorf("expected data dir %s, got %s", dir, cfg.Storage.DataDir)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"bad timeout", "remote:\n  timeout_seconds: 0\n"},
		{"telegram without token", "telegram:\n  enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "medipal.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			t.Setenv("MEDIPAL_TELEGRAM_BOT_TOKEN", "")
			t.Setenv("TELEGRAM_BOT_TOKEN", "")
			if _, err := Load(path, dir); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRequireRemote(t *testing.T) {
	cfg := Defaults(t.TempDir())
	if err := cfg.RequireRemote(); err == nil {
		t.Error("expected error without base url")
	}
	cfg.Remote.BaseURL = "http://localhost"
	if err := cfg.RequireRemote(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "medipal.yaml")

	if err := WriteDefault(path, dir); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}

	cfg, err := Load(path, dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.Schedule != "@every 30m" {
		t.Errorf("expected default sync schedule, got %q", cfg.Sync.Schedule)
	}
}

func TestGetDefaultDataDir_Env(t *testing.T) {
	t.Setenv("MEDIPAL_DATA_DIR", "/tmp/medipal-test")
	if got := GetDefaultDataDir(); got != "/tmp/medipal-test" {
		t.Errorf("expected env data dir, got %s", got)
	}
}

func TestWatch_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medipal.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}

	got := make(chan string, 4)
	Watch(path, func(cfg *Config) { got <- cfg.Log.Level }, func(err error) {})

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case level := <-got:
			if level == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("expected reload with debug level")
		}
	}
}
