package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("WEBEX_BOT_TOKEN", "test-token")
	t.Setenv("OPENWEBUI_API_KEY", "test-key")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "https://webexapis.com/v1", cfg.Webex.APIBaseURL)
	assert.Equal(t, "http://localhost:3002/api", cfg.OpenWebUI.BaseURL)
	assert.Equal(t, "haiku-4.5", cfg.OpenWebUI.Model)
	assert.Equal(t, 2048, cfg.OpenWebUI.MaxTokens)
	assert.Equal(t, 3500, cfg.OpenWebUI.TokenBudget)
	assert.Equal(t, 20, cfg.Conversation.MaxTurns)
	assert.Equal(t, StorageBackendMemory, cfg.Storage.Backend)
	assert.Equal(t, ListenerModePoll, cfg.Listener.Mode)
	assert.Equal(t, 2*time.Second, cfg.Listener.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Listener.ErrorBackoff)
	assert.Equal(t, 50, cfg.Listener.RoomLimit)
	assert.Equal(t, 5, cfg.Listener.MessageLimit)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AI_MODEL", "gpt-4o-mini")
	t.Setenv("ALLOWED_EMAILS", "a@example.com,b@example.com")
	t.Setenv("POLL_INTERVAL", "10s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.OpenWebUI.Model)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Webex.AllowedEmails)
	assert.Equal(t, 10*time.Second, cfg.Listener.PollInterval)
}

func TestLoadConfigFromFile(t *testing.T) {
	setRequiredEnv(t)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
open_webui:
  model: llama3
conversation:
  max_turns: 6
listener:
  poll_interval: 7s
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := LoadConfig(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "llama3", cfg.OpenWebUI.Model)
	assert.Equal(t, 6, cfg.Conversation.MaxTurns)
	assert.Equal(t, 7*time.Second, cfg.Listener.PollInterval)
	assert.Equal(t, 2048, cfg.OpenWebUI.MaxTokens)
}

func TestLoadConfigMissingToken(t *testing.T) {
	t.Setenv("WEBEX_BOT_TOKEN", "placeholder")
	require.NoError(t, os.Unsetenv("WEBEX_BOT_TOKEN"))
	t.Setenv("OPENWEBUI_API_KEY", "test-key")

	_, err := LoadConfig("")
	require.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Run("webhook mode requires target url", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("LISTENER_MODE", "webhook")

		_, err := LoadConfig("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target URL")
	})

	t.Run("redis backend requires endpoint", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("STORAGE_BACKEND", "redis")

		_, err := LoadConfig("")
		require.Error(t, err)
	})

	t.Run("unknown listener mode", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("LISTENER_MODE", "carrier-pigeon")

		_, err := LoadConfig("")
		require.Error(t, err)
	})
}
