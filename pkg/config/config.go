// Package config provides configuration management for chatrelay.
// It uses Viper for flexible configuration loading with support for
// multiple formats (JSON, YAML, TOML), environment variables, and
// default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents the complete chatrelay configuration.
type Config struct {
	Forum     ForumConfig     `mapstructure:"forum" json:"forum"`
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch" json:"dispatch"`
	Queue     QueueConfig     `mapstructure:"queue" json:"queue"`
	Storage   StorageConfig   `mapstructure:"storage" json:"storage"`
	Admin     AdminConfig     `mapstructure:"admin" json:"admin"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
}

// ForumConfig describes the host forum the relay reads from.
type ForumConfig struct {
	// BaseURL is the forum's root URL, e.g. https://forum.example.com.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// APIKey and APIUsername authenticate the relay actor. Posts the
	// relay actor cannot see are never relayed.
	APIKey      string `mapstructure:"api_key" json:"api_key"`
	APIUsername string `mapstructure:"api_username" json:"api_username"`

	// WebhookSecret authenticates post-created webhooks from the forum.
	WebhookSecret string `mapstructure:"webhook_secret" json:"webhook_secret"`

	// TaggingEnabled mirrors the forum's site-wide tagging setting.
	// When false, rule tag restrictions are ignored.
	TaggingEnabled bool `mapstructure:"tagging_enabled" json:"tagging_enabled"`

	// TimeoutSeconds bounds forum API calls.
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// ProvidersConfig contains all provider configurations.
type ProvidersConfig struct {
	Slack      SlackConfig      `mapstructure:"slack" json:"slack"`
	Discord    DiscordConfig    `mapstructure:"discord" json:"discord"`
	Telegram   TelegramConfig   `mapstructure:"telegram" json:"telegram"`
	Teams      TeamsConfig      `mapstructure:"teams" json:"teams"`
	Mattermost MattermostConfig `mapstructure:"mattermost" json:"mattermost"`
	Zulip      ZulipConfig      `mapstructure:"zulip" json:"zulip"`
}

// SlackConfig for the Slack provider.
type SlackConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	BotToken string `mapstructure:"bot_token" json:"bot_token"`
}

// DiscordConfig for the Discord provider.
type DiscordConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	BotToken string `mapstructure:"bot_token" json:"bot_token"`
}

// TelegramConfig for the Telegram provider.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Token   string `mapstructure:"token" json:"token"`
}

// TeamsConfig for the Microsoft Teams provider. Channels carry their own
// incoming-webhook URLs; only the site-level toggle lives here.
type TeamsConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// MattermostConfig for the Mattermost provider.
type MattermostConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// ZulipConfig for the Zulip provider.
type ZulipConfig struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled"`
	ServerURL string `mapstructure:"server_url" json:"server_url"`
	BotUser   string `mapstructure:"bot_user" json:"bot_user"`
	APIKey    string `mapstructure:"api_key" json:"api_key"`
}

// DispatchConfig tunes the notification dispatcher.
type DispatchConfig struct {
	// DelaySeconds defers dispatch after post creation so rapid edits
	// settle before the notification goes out.
	DelaySeconds int `mapstructure:"delay_seconds" json:"delay_seconds"`

	// Workers bounds concurrent per-channel deliveries within one dispatch.
	Workers int `mapstructure:"workers" json:"workers"`

	// ProviderTimeoutSeconds is the hard per-delivery timeout. A hanging
	// provider never blocks the remaining channels past this bound.
	ProviderTimeoutSeconds int `mapstructure:"provider_timeout_seconds" json:"provider_timeout_seconds"`
}

// QueueConfig selects and tunes the deferred-dispatch queue backend.
type QueueConfig struct {
	// Backend is "local" (in-process) or "redis".
	Backend    string `mapstructure:"backend" json:"backend"`
	BufferSize int    `mapstructure:"buffer_size" json:"buffer_size"`

	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix" json:"redis_prefix"`
}

// StorageConfig locates the embedded rule/channel store.
type StorageConfig struct {
	// DataDir is the badger database directory.
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// InMemory runs the store without disk persistence. For tests.
	InMemory bool `mapstructure:"in_memory" json:"in_memory"`

	// GCSchedule is a cron expression for value-log garbage collection.
	GCSchedule string `mapstructure:"gc_schedule" json:"gc_schedule"`
}

// AdminConfig for the admin HTTP API.
type AdminConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Port     int    `mapstructure:"port" json:"port"`
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"password"`

	// JWTSecret signs admin session tokens.
	JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret"`
}

// LoggingConfig for the structured logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	File        string `mapstructure:"file" json:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days" json:"max_age_days"`
	Compress    bool   `mapstructure:"compress" json:"compress"`
	Development bool   `mapstructure:"development" json:"development"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".chatrelay")

	return &Config{
		Forum: ForumConfig{
			TaggingEnabled: true,
			TimeoutSeconds: 15,
		},
		Dispatch: DispatchConfig{
			DelaySeconds:           20,
			Workers:                4,
			ProviderTimeoutSeconds: 20,
		},
		Queue: QueueConfig{
			Backend:     "local",
			BufferSize:  256,
			RedisPrefix: "chatrelay:queue:",
		},
		Storage: StorageConfig{
			DataDir:    filepath.Join(base, "data"),
			GCSchedule: "@every 10m",
		},
		Admin: AdminConfig{
			Enabled:  true,
			Port:     8090,
			Username: "admin",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(base, "logs", "chatrelay.log"),
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Forum.BaseURL) == "" {
		return fmt.Errorf("forum.base_url is required")
	}
	if !strings.HasPrefix(c.Forum.BaseURL, "http://") && !strings.HasPrefix(c.Forum.BaseURL, "https://") {
		return fmt.Errorf("forum.base_url must be an http(s) URL")
	}
	if c.Dispatch.DelaySeconds < 0 {
		return fmt.Errorf("dispatch.delay_seconds must not be negative")
	}
	if c.Dispatch.ProviderTimeoutSeconds <= 0 {
		return fmt.Errorf("dispatch.provider_timeout_seconds must be positive")
	}
	switch c.Queue.Backend {
	case "", "local":
	case "redis":
		if strings.TrimSpace(c.Queue.RedisAddr) == "" {
			return fmt.Errorf("queue.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown queue backend: %s", c.Queue.Backend)
	}
	if c.Admin.Enabled {
		if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
			return fmt.Errorf("admin.port must be a valid port")
		}
		if strings.TrimSpace(c.Admin.Password) == "" {
			return fmt.Errorf("admin.password is required when the admin API is enabled")
		}
	}
	if !c.Storage.InMemory && strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Providers.Slack.Enabled && strings.TrimSpace(c.Providers.Slack.BotToken) == "" {
		return fmt.Errorf("providers.slack.bot_token is required when slack is enabled")
	}
	if c.Providers.Discord.Enabled && strings.TrimSpace(c.Providers.Discord.BotToken) == "" {
		return fmt.Errorf("providers.discord.bot_token is required when discord is enabled")
	}
	if c.Providers.Telegram.Enabled && strings.TrimSpace(c.Providers.Telegram.Token) == "" {
		return fmt.Errorf("providers.telegram.token is required when telegram is enabled")
	}
	if c.Providers.Zulip.Enabled {
		if strings.TrimSpace(c.Providers.Zulip.ServerURL) == "" ||
			strings.TrimSpace(c.Providers.Zulip.BotUser) == "" ||
			strings.TrimSpace(c.Providers.Zulip.APIKey) == "" {
			return fmt.Errorf("providers.zulip.server_url, bot_user and api_key are required when zulip is enabled")
		}
	}
	return nil
}
