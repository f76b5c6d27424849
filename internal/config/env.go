package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadEnvFiles copies KEY=value pairs from the MediPal dotenv files into the
// process environment. MEDIPAL_ENV_FILE names a single file and skips the
// search. Variables already set are never overwritten.
func LoadEnvFiles() error {
	for _, path := range envFilePaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := loadEnvFile(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func envFilePaths() []string {
	if path := os.Getenv("MEDIPAL_ENV_FILE"); path != "" {
		return []string{expandPath(path)}
	}

	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".medipal", ".env"),
			filepath.Join(home, ".config", "medipal", ".env"),
		)
	}
	return paths
}

func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// parseEnvLine accepts KEY=value, an optional "export " prefix, matching
// quotes and trailing " #" comments on unquoted values
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, ok := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", false
	}

	value = strings.TrimSpace(value)
	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		return key, value[1 : n-1], true
	}
	if i := strings.Index(value, " #"); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	return key, value, true
}

func GetEnvWithFallback(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func GetEnvDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

var envAliases = map[string][]string{
	"MEDIPAL_REMOTE_BASE_URL":     {"MEDIPAL_API_URL", "MEDIPAL_BACKEND_URL"},
	"MEDIPAL_TELEGRAM_BOT_TOKEN":  {"TELEGRAM_BOT_TOKEN"},
	"MEDIPAL_SOS_API_KEY":         {"SMS_GATEWAY_API_KEY"},
	"MEDIPAL_SECURITY_JWT_SECRET": {"MEDIPAL_JWT_SECRET"},
}

// ResolveEnvWithAliases returns the canonical variable, then the first set
// alias, then fallback.
func ResolveEnvWithAliases(canonicalKey, fallback string) string {
	keys := append([]string{canonicalKey}, envAliases[canonicalKey]...)
	if val := GetEnvWithFallback(keys...); val != "" {
		return val
	}
	return fallback
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
