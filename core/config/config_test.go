package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // 32 bytes

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		MiniBots: MiniBotsConfig{EncryptionKey: testKey},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 500*time.Millisecond, cfg.MiniBots.StartupDelay())
	assert.Equal(t, 20*time.Second, cfg.MiniBots.StartupTimeout())
	assert.Equal(t, 90*time.Second, cfg.MiniBots.HandlerTimeout())
	assert.Equal(t, 30*time.Minute, cfg.MiniBots.SessionTTL())
	assert.True(t, cfg.MiniBots.DropPending())
	assert.Equal(t, 10, cfg.Broadcast.ProgressEvery)
	assert.Equal(t, 25, cfg.Broadcast.PauseEvery)
	assert.Equal(t, time.Second, cfg.Broadcast.Pause())
}

func TestNormalizeRejectsBadKey(t *testing.T) {
	cfg := validConfig()
	cfg.MiniBots.EncryptionKey = "c2hvcnQ="
	err := Normalize(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")

	cfg.MiniBots.EncryptionKey = "%%%"
	require.Error(t, Normalize(cfg))
}

func TestNormalizeWebhookRequiresURL(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "webhook"
	require.Error(t, Normalize(cfg))

	cfg.Webhook = WebhookConfig{URL: "https://example.org/hook", Listen: "0.0.0.0", Port: 8443}
	require.NoError(t, Normalize(cfg))
}

func TestNormalizeRateLimitExcludes(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.ExcludeUpdates = []string{" Callback ", "message"}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, []string{"callback", "message"}, cfg.RateLimit.ExcludeUpdates)

	cfg.RateLimit.ExcludeUpdates = []string{"poll"}
	require.Error(t, Normalize(cfg))
}

func TestSessionTTLCanBeDisabled(t *testing.T) {
	cfg := validConfig()
	zero := 0
	cfg.MiniBots.SessionTTLMinutes = &zero
	require.NoError(t, Normalize(cfg))
	assert.Zero(t, cfg.MiniBots.SessionTTL())
}

func TestLoadOverlaysEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "telegram:\n  token: from-file\nminibots:\n  encryption_key: " + testKey + "\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}
