package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livechat.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "general", cfg.Chat.DefaultChannel)
	assert.Equal(t, []string{"general", "random"}, cfg.Chat.Channels)
	assert.Equal(t, 500, cfg.Chat.MaxMessageLength)
	assert.False(t, cfg.Chat.DropEmpty)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, "dracula", cfg.UI.Theme)
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
base_url = "https://chat.example.com"

[chat]
default_channel = "random"
channels = ["general", "random", "staff"]
drop_empty = true
max_message_length = 280

[storage]
path = "/tmp/livechat-test.db"

[logging]
env = "production"
level = "debug"

[retry]
max_attempts = 5
base_delay = "250ms"
max_delay = "4s"

[ui]
theme = "daylight"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "random", cfg.Chat.DefaultChannel)
	assert.Equal(t, []string{"general", "random", "staff"}, cfg.Chat.Channels)
	assert.True(t, cfg.Chat.DropEmpty)
	assert.Equal(t, 280, cfg.Chat.MaxMessageLength)
	assert.Equal(t, "/tmp/livechat-test.db", cfg.Storage.Path)
	assert.Equal(t, "production", cfg.Logging.Env)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 4*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, "daylight", cfg.UI.Theme)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LIVECHAT_SERVER", "http://10.0.0.5:8000")
	t.Setenv("LIVECHAT_LOG_LEVEL", "warn")

	path := writeConfig(t, `
[server]
base_url = "http://ignored:1"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:8000", cfg.Server.BaseURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", "[server\nbase_url="},
		{"bad scheme", "[server]\nbase_url = \"ws://x\""},
		{"bad duration", "[retry]\nbase_delay = \"soon\""},
		{"zero attempts", "[retry]\nmax_attempts = 0"},
		{"inverted delays", "[retry]\nbase_delay = \"10s\"\nmax_delay = \"1s\""},
		{"negative length", "[chat]\nmax_message_length = -1"},
		{"unknown default channel", "[chat]\ndefault_channel = \"staff\""},
		{"default channel not listed", "[chat]\nchannels = [\"ops\", \"dev\"]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
