package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables overriding configuration
// keys, e.g. GFUPLOAD_SERVICE_MAX_CONCURRENT_UPLOADS.
const EnvPrefix = "GFUPLOAD"

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "gfupload.toml"

// ErrConfigExists is returned by WriteDefault when the file is already there.
var ErrConfigExists = errors.New("config file already exists")

// Defaults returns the default configuration as nested sections.
func Defaults() map[string]any {
	return map[string]any{
		"log": map[string]any{
			"level":  "info",
			"format": "text",
			"caller": false,
		},
		"retry": map[string]any{
			"initial_wait":  "1s",
			"multiplier":    2.0,
			"max_wait":      "1m40s",
			"poll_interval": "2s",
			"max_retries":   3,
		},
		"progress": map[string]any{
			"interval": "166ms",
		},
		"service": map[string]any{
			"max_concurrent_uploads": 2,
			"queue_size":             128,
		},
		"journal": map[string]any{
			"driver":              "bolt",
			"path":                "gfupload.db",
			"checkpoint_bytes":    10 * 1024 * 1024,
			"checkpoint_interval": "5s",
		},
		"http": map[string]any{
			"timeout":              "0s",
			"max_bytes_per_second": 0,
			"token_url":            "",
			"client_id":            "",
			"client_secret":        "",
			"scopes":               []string{},
			"gcs_credentials":      "",
		},
		"api": map[string]any{
			"addr": "127.0.0.1:8080",
		},
		"notification": map[string]any{
			"enabled":      true,
			"ring_tone":    false,
			"high_channel": "uploads-starting",
			"low_channel":  "uploads",
			"progress": map[string]any{
				"title":   "Upload [[CURRENT_TASK_INDEX]]/[[TOTAL_TASKS]]",
				"message": "[[PROGRESS]] at [[UPLOAD_RATE]], [[ELAPSED_TIME]] elapsed",
			},
			"completed": map[string]any{
				"title":   "Upload finished",
				"message": "[[UPLOADED_FILES]] files in [[ELAPSED_TIME]]",
			},
			"error": map[string]any{
				"title":   "Upload failed",
				"message": "Stopped at [[PROGRESS]] after [[ELAPSED_TIME]]",
			},
			"cancelled": map[string]any{
				"title":      "Upload cancelled",
				"message":    "Stopped at [[PROGRESS]]",
				"auto_clear": true,
			},
		},
	}
}

// flatten turns nested sections into dotted viper keys.
func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}

// Load reads the configuration from defaults, the optional TOML file at path
// and GFUPLOAD_* environment variables, in increasing precedence. The result
// is validated.
func Load(path string) (*Config, error) {
	v := viper.New()

	keys := make(map[string]any)
	flatten("", Defaults(), keys)
	for k, val := range keys {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// WriteDefault writes the default configuration as TOML to path. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w at %s", ErrConfigExists, path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(Defaults()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}
