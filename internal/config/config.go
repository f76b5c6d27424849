package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for MediPal
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Reminders RemindersConfig `mapstructure:"reminders" yaml:"reminders"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Expiry    ExpiryConfig    `mapstructure:"expiry" yaml:"expiry"`
	Telegram  TelegramConfig  `mapstructure:"telegram" yaml:"telegram"`
	SOS       SOSConfig       `mapstructure:"sos" yaml:"sos"`
	Security  SecurityConfig  `mapstructure:"security" yaml:"security"`
}

// ServerConfig holds local control API settings
type ServerConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json or console
}

// RemoteConfig holds the prescription backend settings
type RemoteConfig struct {
	BaseURL            string  `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	RatePerSecond      float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst              int     `mapstructure:"burst" yaml:"burst"`
	BreakerMaxFailures uint32  `mapstructure:"breaker_max_failures" yaml:"breaker_max_failures"`
	BreakerOpenSeconds int     `mapstructure:"breaker_open_seconds" yaml:"breaker_open_seconds"`
}

// RemindersConfig holds reminder scheduling behaviour
type RemindersConfig struct {
	DailyRollover     bool `mapstructure:"daily_rollover" yaml:"daily_rollover"`
	InteractionBuffer int  `mapstructure:"interaction_buffer" yaml:"interaction_buffer"`
}

// SyncConfig controls periodic prescription sync
type SyncConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// ExpiryConfig controls the prescription expiry check
type ExpiryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	WarnDays int    `mapstructure:"warn_days" yaml:"warn_days"`
}

// TelegramConfig holds Telegram reminder channel settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id" yaml:"chat_id"`
}

// SOSConfig holds the SMS gateway used for emergency alerts
type SOSConfig struct {
	GatewayURL string `mapstructure:"gateway_url" yaml:"gateway_url"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	Sender     string `mapstructure:"sender" yaml:"sender"`
}

// SecurityConfig holds local API security settings
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTLHours int      `mapstructure:"token_ttl_hours" yaml:"token_ttl_hours"`
	AllowOrigins  []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = GetDefaultDataDir()
	}
	dataDir = expandPath(dataDir)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "medipal.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = DefaultConfigPath(dataDir)
	}
	configPath = expandPath(configPath)

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (MEDIPAL_SERVER_PORT, MEDIPAL_REMOTE_BASE_URL, etc.)
	v.SetEnvPrefix("MEDIPAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Defaults returns the configuration produced by defaults alone.
func Defaults(dataDir string) *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("storage.data_dir", dataDir)
	v.Set("storage.sqlite_path", filepath.Join(dataDir, "medipal.db"))
	v.Set("storage.badger_path", filepath.Join(dataDir, "badger"))

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.timeout_seconds", 60)
	v.SetDefault("remote.rate_per_second", 5.0)
	v.SetDefault("remote.burst", 10)
	v.SetDefault("remote.breaker_max_failures", 5)
	v.SetDefault("remote.breaker_open_seconds", 30)

	v.SetDefault("reminders.daily_rollover", true)
	v.SetDefault("reminders.interaction_buffer", 64)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.schedule", "@every 30m")

	v.SetDefault("expiry.enabled", true)
	v.SetDefault("expiry.schedule", "0 9 * * *")
	v.SetDefault("expiry.warn_days", 3)

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("security.token_ttl_hours", 24*7)
	v.SetDefault("security.allow_origins", []string{"*"})
}

// GetDefaultDataDir returns the XDG-style data directory
func GetDefaultDataDir() string {
	if dir := GetEnvDefault("MEDIPAL_DATA_DIR", ""); dir != "" {
		return expandPath(dir)
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medipal")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "medipal")
}

// DefaultConfigPath returns the config file location inside dataDir
func DefaultConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "medipal.yaml")
}

// loadEnvOverrides loads env vars that Viper misses for keys absent from the file
func loadEnvOverrides(cfg *Config) {
	cfg.Remote.BaseURL = ResolveEnvWithAliases("MEDIPAL_REMOTE_BASE_URL", cfg.Remote.BaseURL)
	cfg.Telegram.BotToken = ResolveEnvWithAliases("MEDIPAL_TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.SOS.APIKey = ResolveEnvWithAliases("MEDIPAL_SOS_API_KEY", cfg.SOS.APIKey)
	cfg.Security.JWTSecret = ResolveEnvWithAliases("MEDIPAL_SECURITY_JWT_SECRET", cfg.Security.JWTSecret)

	if chatID := os.Getenv("MEDIPAL_TELEGRAM_CHAT_ID"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if port := os.Getenv("MEDIPAL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Remote.TimeoutSeconds <= 0 {
		return fmt.Errorf("remote.timeout_seconds must be positive")
	}
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}

	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

// RequireRemote reports an error when no backend URL is configured
func (c *Config) RequireRemote() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required (set MEDIPAL_REMOTE_BASE_URL)")
	}
	return nil
}

// WriteDefault writes the default configuration as YAML to path
func WriteDefault(path, dataDir string) error {
	cfg := Defaults(dataDir)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// Watch re-reads the config file on change and hands the result to fn.
// Invalid intermediate files are reported to onError and ignored.
func Watch(path string, fn func(*Config), onError func(error)) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		onError(fmt.Errorf("failed to read config for watching: %w", err))
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			onError(fmt.Errorf("failed to reload %s: %w", e.Name, err))
			return
		}
		fn(&cfg)
	})
	v.WatchConfig()
}

func generateRandomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = letters[i%len(letters)]
		}
		return string(b)
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
