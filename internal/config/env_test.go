package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line  string
		key   string
		value string
		ok    bool
	}{
		{"MEDIPAL_API_URL=https://api.medipal.example", "MEDIPAL_API_URL", "https://api.medipal.example", true},
		{`MEDIPAL_JWT_SECRET="s3cr3t # not a comment"`, "MEDIPAL_JWT_SECRET", "s3cr3t # not a comment", true},
		{"TELEGRAM_BOT_TOKEN='123:abc'", "TELEGRAM_BOT_TOKEN", "123:abc", true},
		{"export SMS_GATEWAY_API_KEY=sms-key", "SMS_GATEWAY_API_KEY", "sms-key", true},
		{"MEDIPAL_SERVER_PORT=8090 # local only", "MEDIPAL_SERVER_PORT", "8090", true},
		{"MEDIPAL_TELEGRAM_CHAT_ID=", "MEDIPAL_TELEGRAM_CHAT_ID", "", true},
		{"# MEDIPAL_API_URL=https://commented.out", "", "", false},
		{"   ", "", "", false},
		{"not a pair", "", "", false},
		{"=orphan", "", "", false},
	}

	for _, tt := range tests {
		key, value, ok := parseEnvLine(tt.line)
		if ok != tt.ok || key != tt.key || value != tt.value {
			t.Errorf("parseEnvLine(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.line, key, value, ok, tt.key, tt.value, tt.ok)
		}
	}
}

func TestLoadEnvFile_KeepsExistingValues(t *testing.T) {
	path := writeEnvFile(t, "MEDIPAL_API_URL=https://from-dotenv\nMEDIPAL_SOS_API_KEY=dotenv-key\n")

	t.Setenv("MEDIPAL_API_URL", "https://from-shell")
	t.Setenv("MEDIPAL_SOS_API_KEY", "")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile failed: %v", err)
	}
	if got := os.Getenv("MEDIPAL_API_URL"); got != "https://from-shell" {
		t.Errorf("shell value should win, got %s", got)
	}
	if got := os.Getenv("MEDIPAL_SOS_API_KEY"); got != "dotenv-key" {
		t.Errorf("expected dotenv-key, got %s", got)
	}
}

func TestLoadEnvFiles_ExplicitFileFeedsRemoteAlias(t *testing.T) {
	path := writeEnvFile(t, "export MEDIPAL_API_URL=https://api.medipal.example\nTELEGRAM_BOT_TOKEN='123:abc'\n")

	t.Setenv("MEDIPAL_ENV_FILE", path)
	t.Setenv("MEDIPAL_REMOTE_BASE_URL", "")
	t.Setenv("MEDIPAL_API_URL", "")
	t.Setenv("MEDIPAL_BACKEND_URL", "")
	t.Setenv("MEDIPAL_TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	if err := LoadEnvFiles(); err != nil {
		t.Fatalf("LoadEnvFiles failed: %v", err)
	}

	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.BaseURL != "https://api.medipal.example" {
		t.Errorf("expected remote.base_url from MEDIPAL_API_URL, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Errorf("expected telegram token from TELEGRAM_BOT_TOKEN, got %q", cfg.Telegram.BotToken)
	}
}

func TestEnvFilePaths(t *testing.T) {
	t.Setenv("MEDIPAL_ENV_FILE", "")
	paths := envFilePaths()
	if len(paths) == 0 || paths[0] != ".env" {
		t.Errorf("expected working directory .env first, got %v", paths)
	}

	t.Setenv("MEDIPAL_ENV_FILE", "/etc/medipal/env")
	paths = envFilePaths()
	if len(paths) != 1 || paths[0] != "/etc/medipal/env" {
		t.Errorf("expected only the explicit file, got %v", paths)
	}
}

func TestResolveEnvWithAliases_RemoteBaseURL(t *testing.T) {
	t.Setenv("MEDIPAL_REMOTE_BASE_URL", "")
	t.Setenv("MEDIPAL_API_URL", "")
	t.Setenv("MEDIPAL_BACKEND_URL", "")

	if got := ResolveEnvWithAliases("MEDIPAL_REMOTE_BASE_URL", "http://from-file"); got != "http://from-file" {
		t.Errorf("expected file value, got %s", got)
	}

	t.Setenv("MEDIPAL_BACKEND_URL", "http://backend")
	if got := ResolveEnvWithAliases("MEDIPAL_REMOTE_BASE_URL", "http://from-file"); got != "http://backend" {
		t.Errorf("expected second alias, got %s", got)
	}

	t.Setenv("MEDIPAL_API_URL", "http://api")
	if got := ResolveEnvWithAliases("MEDIPAL_REMOTE_BASE_URL", ""); got != "http://api" {
		t.Errorf("expected first alias, got %s", got)
	}

	t.Setenv("MEDIPAL_REMOTE_BASE_URL", "http://canonical")
	if got := ResolveEnvWithAliases("MEDIPAL_REMOTE_BASE_URL", ""); got != "http://canonical" {
		t.Errorf("expected canonical variable, got %s", got)
	}
}

func TestResolveEnvWithAliases_Secrets(t *testing.T) {
	tests := []struct {
		canonical string
		alias     string
	}{
		{"MEDIPAL_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		{"MEDIPAL_SOS_API_KEY", "SMS_GATEWAY_API_KEY"},
		{"MEDIPAL_SECURITY_JWT_SECRET", "MEDIPAL_JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			t.Setenv(tt.canonical, "")
			t.Setenv(tt.alias, "from-alias")
			if got := ResolveEnvWithAliases(tt.canonical, ""); got != "from-alias" {
				t.Errorf("%s should resolve through %s, got %q", tt.canonical, tt.alias, got)
			}
		})
	}
}

func TestGetDefaultDataDir_ExpandsEnv(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("MEDIPAL_DATA_DIR", "~/medipal-data")

	if got := GetDefaultDataDir(); got != filepath.Join(home, "medipal-data") {
		t.Errorf("expected expanded data dir, got %s", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/.medipal/medipal.yaml", filepath.Join(home, ".medipal", "medipal.yaml")},
		{"/var/lib/medipal", "/var/lib/medipal"},
		{"data/medipal.db", "data/medipal.db"},
	}

	for _, test := range tests {
		if result := expandPath(test.input); result != test.expected {
			t.Errorf("expandPath(%s) = %s, expected %s", test.input, result, test.expected)
		}
	}
}
