package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds settings of the main platform bot.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings for the main bot.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level     string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format    string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder string `yaml:"keys_order"`
	Dir       string `yaml:"dir"`
	BotFile   string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// MiniBotsConfig tunes the mini-bot connection pool and dispatch runtime.
type MiniBotsConfig struct {
	EncryptionKey          string `yaml:"encryption_key" envconfig:"ENCRYPTION_KEY"`
	StartupDelayMS         int    `yaml:"startup_delay_ms" envconfig:"MINIBOTS_STARTUP_DELAY_MS"`
	StartupTimeoutSeconds  int    `yaml:"startup_timeout_seconds" envconfig:"MINIBOTS_STARTUP_TIMEOUT_SECONDS"`
	HandlerTimeoutSeconds  int    `yaml:"handler_timeout_seconds" envconfig:"MINIBOTS_HANDLER_TIMEOUT_SECONDS"`
	LongPollTimeoutSeconds int    `yaml:"longpoll_timeout_seconds" envconfig:"MINIBOTS_LONGPOLL_TIMEOUT_SECONDS"`
	DropPendingUpdates     *bool  `yaml:"drop_pending_updates" envconfig:"MINIBOTS_DROP_PENDING_UPDATES"`
	SessionTTLMinutes      *int   `yaml:"session_ttl_minutes" envconfig:"MINIBOTS_SESSION_TTL_MINUTES"`
}

// BroadcastConfig controls pacing of broadcast runs.
type BroadcastConfig struct {
	ProgressEvery int     `yaml:"progress_every" envconfig:"BROADCAST_PROGRESS_EVERY"`
	PauseEvery    int     `yaml:"pause_every" envconfig:"BROADCAST_PAUSE_EVERY"`
	PauseMS       int     `yaml:"pause_ms" envconfig:"BROADCAST_PAUSE_MS"`
	RatePerSecond float64 `yaml:"rate_per_second" envconfig:"BROADCAST_RATE_PER_SECOND"`
}

// AdminAPIConfig configures the operator HTTP surface.
type AdminAPIConfig struct {
	Listen string `yaml:"listen" envconfig:"ADMIN_API_LISTEN"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for inbound per-user rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the whole platform configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	MiniBots  MiniBotsConfig  `yaml:"minibots"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	AdminAPI  AdminAPIConfig  `yaml:"admin_api"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}

	if err := normalizeMiniBots(&cfg.MiniBots); err != nil {
		return err
	}
	normalizeBroadcast(&cfg.Broadcast)
	return nil
}

func normalizeMiniBots(mb *MiniBotsConfig) error {
	key := strings.TrimSpace(mb.EncryptionKey)
	if key == "" {
		return fmt.Errorf("minibots.encryption_key is required")
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return fmt.Errorf("minibots.encryption_key must be base64: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("minibots.encryption_key must decode to 32 bytes, got %d", len(raw))
	}
	mb.EncryptionKey = key

	if mb.StartupDelayMS < 0 {
		return fmt.Errorf("minibots.startup_delay_ms must be >= 0")
	}
	if mb.StartupDelayMS == 0 {
		mb.StartupDelayMS = 500
	}
	if mb.StartupTimeoutSeconds <= 0 {
		mb.StartupTimeoutSeconds = 20
	}
	if mb.HandlerTimeoutSeconds <= 0 {
		mb.HandlerTimeoutSeconds = 90
	}
	if mb.LongPollTimeoutSeconds <= 0 {
		mb.LongPollTimeoutSeconds = 10
	}
	if mb.DropPendingUpdates == nil {
		v := true
		mb.DropPendingUpdates = &v
	}
	if mb.SessionTTLMinutes == nil {
		v := 30
		mb.SessionTTLMinutes = &v
	}
	if *mb.SessionTTLMinutes < 0 {
		return fmt.Errorf("minibots.session_ttl_minutes must be >= 0")
	}
	return nil
}

func normalizeBroadcast(b *BroadcastConfig) {
	if b.ProgressEvery <= 0 {
		b.ProgressEvery = 10
	}
	if b.PauseEvery <= 0 {
		b.PauseEvery = 25
	}
	if b.PauseMS < 0 {
		b.PauseMS = 0
	} else if b.PauseMS == 0 {
		b.PauseMS = 1000
	}
	if b.RatePerSecond <= 0 {
		b.RatePerSecond = 25
	}
}

// StartupDelay returns the pause inserted between two mini-bot startups.
func (m MiniBotsConfig) StartupDelay() time.Duration {
	return time.Duration(m.StartupDelayMS) * time.Millisecond
}

// StartupTimeout bounds how long the sweep waits for one handshake.
func (m MiniBotsConfig) StartupTimeout() time.Duration {
	return time.Duration(m.StartupTimeoutSeconds) * time.Second
}

// HandlerTimeout is the ceiling for a single inbound event.
func (m MiniBotsConfig) HandlerTimeout() time.Duration {
	return time.Duration(m.HandlerTimeoutSeconds) * time.Second
}

// SessionTTL returns the session expiry; zero disables expiry.
func (m MiniBotsConfig) SessionTTL() time.Duration {
	if m.SessionTTLMinutes == nil {
		return 0
	}
	return time.Duration(*m.SessionTTLMinutes) * time.Minute
}

// DropPending reports whether queued updates are discarded on connect.
func (m MiniBotsConfig) DropPending() bool {
	return m.DropPendingUpdates == nil || *m.DropPendingUpdates
}

// Pause returns the broadcast pause duration.
func (b BroadcastConfig) Pause() time.Duration {
	return time.Duration(b.PauseMS) * time.Millisecond
}
