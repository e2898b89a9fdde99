package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/concord-chat/livechat/internal/models"
)

// Config holds the client configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Chat    ChatConfig    `toml:"chat"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Retry   RetryConfig   `toml:"retry"`
	UI      UIConfig      `toml:"ui"`
}

// ServerConfig holds backend connection settings
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
}

// ChatConfig holds chat session settings
type ChatConfig struct {
	DefaultChannel   string   `toml:"default_channel"`
	Channels         []string `toml:"channels"`
	DropEmpty        bool     `toml:"drop_empty"`         // Skip inbound messages whose text normalizes to ""
	MaxMessageLength int      `toml:"max_message_length"` // Characters per outbound message
}

// StorageConfig holds durable client storage settings
type StorageConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Env   string `toml:"env"`
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// UIConfig holds terminal front end settings
type UIConfig struct {
	Theme     string `toml:"theme"`
	ThemesDir string `toml:"themes_dir"` // Extra .toml themes; empty uses the bundled set only
}

// RetryConfig controls REST retries on network failures
type RetryConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	BaseDelay   time.Duration `toml:"-"`
	MaxDelay    time.Duration `toml:"-"`

	// Raw string values for TOML unmarshaling
	BaseDelayRaw string `toml:"base_delay"`
	MaxDelayRaw  string `toml:"max_delay"`
}

// DefaultConfig returns the default client configuration
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:8000",
		},
		Chat: ChatConfig{
			DefaultChannel:   models.ChannelGeneral,
			Channels:         models.DefaultChannels(),
			MaxMessageLength: 500,
		},
		Storage: StorageConfig{
			Path: filepath.Join(dataDir, "livechat.db"),
		},
		Logging: LoggingConfig{
			Env:   "development",
			Level: "info",
			File:  filepath.Join(dataDir, "livechat.log"),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		UI: UIConfig{
			Theme: "dracula",
		},
	}
}

// SearchPaths returns the config files tried when none is given
func SearchPaths() []string {
	return []string{
		"./livechat.toml",
		"./config/livechat.toml",
		os.ExpandEnv("$HOME/.config/livechat/livechat.toml"),
	}
}

// Find returns the first existing file from SearchPaths, or ""
func Find() string {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads a configuration file over the defaults, then applies
// environment overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(config)

	if err := config.parseDurations(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// parseDurations converts raw duration strings into time.Duration values
func (c *Config) parseDurations() error {
	if c.Retry.BaseDelayRaw != "" {
		d, err := time.ParseDuration(c.Retry.BaseDelayRaw)
		if err != nil {
			return fmt.Errorf("invalid retry.base_delay: %w", err)
		}
		c.Retry.BaseDelay = d
	}
	if c.Retry.MaxDelayRaw != "" {
		d, err := time.ParseDuration(c.Retry.MaxDelayRaw)
		if err != nil {
			return fmt.Errorf("invalid retry.max_delay: %w", err)
		}
		c.Retry.MaxDelay = d
	}
	return nil
}

// Validate checks the configuration for values the client cannot run with
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("server.base_url must start with http:// or https://")
	}
	if len(c.Chat.Channels) == 0 {
		c.Chat.Channels = models.DefaultChannels()
	}
	if c.Chat.DefaultChannel == "" {
		c.Chat.DefaultChannel = c.Chat.Channels[0]
	}
	if !slices.Contains(c.Chat.Channels, c.Chat.DefaultChannel) {
		return fmt.Errorf("chat.default_channel %q is not one of chat.channels", c.Chat.DefaultChannel)
	}
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("chat.max_message_length must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 <= base_delay <= max_delay")
	}
	return nil
}

// applyEnv overrides settings from LIVECHAT_* environment variables
func applyEnv(c *Config) {
	c.Server.BaseURL = GetEnv("LIVECHAT_SERVER", c.Server.BaseURL)
	c.Logging.Env = GetEnv("LIVECHAT_ENV", c.Logging.Env)
	c.Logging.Level = GetEnv("LIVECHAT_LOG_LEVEL", c.Logging.Level)
	c.Storage.Path = GetEnv("LIVECHAT_STORAGE", c.Storage.Path)
	c.UI.Theme = GetEnv("LIVECHAT_THEME", c.UI.Theme)
}

// GetEnv returns the environment value for key, or defaultValue if unset
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "livechat")
	}
	return ".livechat"
}
