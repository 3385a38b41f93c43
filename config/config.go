package config

import (
	"time"

	"github.com/franksops/gfupload/engine"
	"github.com/franksops/gfupload/protocol"
)

// Config holds all application configuration.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Progress     ProgressConfig     `mapstructure:"progress"`
	Service      ServiceConfig      `mapstructure:"service"`
	Journal      JournalConfig      `mapstructure:"journal"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	API          APIConfig          `mapstructure:"api"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error fatal"`
	Format string `mapstructure:"format" validate:"required,oneof=text json logfmt"`
	Caller bool   `mapstructure:"caller"`
}

// RetryConfig contains the backoff parameters of every task.
type RetryConfig struct {
	InitialWait  time.Duration `mapstructure:"initial_wait" validate:"gt=0"`
	Multiplier   float64       `mapstructure:"multiplier" validate:"gte=1"`
	MaxWait      time.Duration `mapstructure:"max_wait" validate:"gtefield=InitialWait"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	// MaxRetries is used by tasks that do not set their own.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`
}

// ProgressConfig controls progress reporting.
type ProgressConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

// ServiceConfig contains scheduler settings.
type ServiceConfig struct {
	MaxConcurrentUploads int `mapstructure:"max_concurrent_uploads" validate:"gte=1"`
	QueueSize            int `mapstructure:"queue_size" validate:"gte=1"`
}

// JournalConfig selects the task journal backend.
type JournalConfig struct {
	Driver             string        `mapstructure:"driver" validate:"required,oneof=bolt sqlite"`
	Path               string        `mapstructure:"path" validate:"required"`
	CheckpointBytes    int64         `mapstructure:"checkpoint_bytes" validate:"gte=0"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval" validate:"gte=0"`
}

// HTTPConfig contains the settings of the upload HTTP client.
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxBytesPerSecond int64         `mapstructure:"max_bytes_per_second" validate:"gte=0"`
	TokenURL          string        `mapstructure:"token_url" validate:"omitempty,url"`
	ClientID          string        `mapstructure:"client_id" validate:"required_with=TokenURL"`
	ClientSecret      string        `mapstructure:"client_secret"`
	Scopes            []string      `mapstructure:"scopes"`
	GCSCredentials    string        `mapstructure:"gcs_credentials"`
}

// APIConfig contains the control API settings.
type APIConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

// NotificationConfig is the default presentation of tasks.
type NotificationConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	RingTone    bool           `mapstructure:"ring_tone"`
	HighChannel string         `mapstructure:"high_channel"`
	LowChannel  string         `mapstructure:"low_channel"`
	Progress    TemplateConfig `mapstructure:"progress"`
	Completed   TemplateConfig `mapstructure:"completed"`
	Error       TemplateConfig `mapstructure:"error"`
	Cancelled   TemplateConfig `mapstructure:"cancelled"`
}

// TemplateConfig is the presentation of one task state. Title and message
// may contain placeholders such as [[PROGRESS]].
type TemplateConfig struct {
	Title     string `mapstructure:"title"`
	Message   string `mapstructure:"message"`
	Icon      string `mapstructure:"icon"`
	LargeIcon string `mapstructure:"large_icon"`
	AutoClear bool   `mapstructure:"auto_clear"`
}

// RetryPolicy returns the engine backoff parameters.
func (c *Config) RetryPolicy() engine.RetryPolicy {
	return engine.RetryPolicy{
		InitialWait:  c.Retry.InitialWait,
		Multiplier:   c.Retry.Multiplier,
		MaxWait:      c.Retry.MaxWait,
		PollInterval: c.Retry.PollInterval,
	}
}

// EngineService returns the engine service configuration.
func (c *Config) EngineService() engine.ServiceConfig {
	return engine.ServiceConfig{
		MaxConcurrentUploads: c.Service.MaxConcurrentUploads,
		QueueSize:            c.Service.QueueSize,
		Retry:                c.RetryPolicy(),
		ProgressInterval:     c.Progress.Interval,
	}
}

// Checkpoint returns the journal checkpoint thresholds.
func (c *Config) Checkpoint() engine.CheckpointConfig {
	return engine.CheckpointConfig{
		BytesInterval: c.Journal.CheckpointBytes,
		TimeInterval:  c.Journal.CheckpointInterval,
	}
}

// HTTPClient returns the protocol HTTP client configuration.
func (c *Config) HTTPClient() protocol.HTTPConfig {
	return protocol.HTTPConfig{
		Timeout:      c.HTTP.Timeout,
		TokenURL:     c.HTTP.TokenURL,
		ClientID:     c.HTTP.ClientID,
		ClientSecret: c.HTTP.ClientSecret,
		Scopes:       c.HTTP.Scopes,
	}
}

func (t TemplateConfig) status() engine.StatusConfig {
	return engine.StatusConfig{
		Title:     t.Title,
		Message:   t.Message,
		Icon:      t.Icon,
		LargeIcon: t.LargeIcon,
		LargeIconSize: engine.Dimensions{
			Width:  256,
			Height: 256,
		},
		AutoClear: t.AutoClear,
	}
}

// Notifications returns the default notification configuration of new
// tasks, or nil when notifications are disabled.
func (c *Config) Notifications() *engine.NotificationConfig {
	if !c.Notification.Enabled {
		return nil
	}
	n := c.Notification
	return &engine.NotificationConfig{
		Progress:        n.Progress.status(),
		Completed:       n.Completed.status(),
		Error:           n.Error.status(),
		Cancelled:       n.Cancelled.status(),
		RingToneEnabled: n.RingTone,
		HighChannel:     n.HighChannel,
		LowChannel:      n.LowChannel,
	}
}
