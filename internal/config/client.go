package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds addonup settings.
//
// Values come from, in increasing priority: built-in defaults, the YAML
// file, ADDONUP_* environment variables, and command-line flags.
type ClientConfig struct {
	// Server is the base URL of the validator service.
	Server string `yaml:"server" env:"ADDONUP_SERVER"`

	// ContentAccess enables local content sniffing and the in-memory upload
	// path. When false, only the extension is checked and the package is
	// submitted as a plain form post.
	ContentAccess bool `yaml:"content_access" env:"ADDONUP_CONTENT_ACCESS"`

	// Wait follows the validation job until the result is available.
	Wait bool `yaml:"wait" env:"ADDONUP_WAIT"`

	// PollInterval is the delay between status polls.
	PollInterval time.Duration `yaml:"poll_interval" env:"ADDONUP_POLL_INTERVAL"`

	// Timeout bounds every HTTP request made by the client. Zero disables it.
	Timeout time.Duration `yaml:"timeout" env:"ADDONUP_TIMEOUT"`

	Log ClientLogConfig `yaml:"log"`
}

// ClientLogConfig holds client logging settings.
type ClientLogConfig struct {
	Level  string `yaml:"level" env:"ADDONUP_LOG_LEVEL"`
	Format string `yaml:"format" env:"ADDONUP_LOG_FORMAT"`
}

// DefaultClientConfig returns the built-in client settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Server:        "http://localhost:8080",
		ContentAccess: true,
		PollInterval:  3 * time.Second,
		Log: ClientLogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultClientConfigPath is $XDG_CONFIG_HOME/addonup/config.yaml.
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "addonup", "config.yaml")
}

// LoadClient reads the YAML file at path (a missing file is fine), then
// applies environment overrides and validates the result.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read client config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse client config %s: %w", path, err)
			}
		}
	}

	if err := readEnv(reflect.ValueOf(&cfg).Elem(), false); err != nil {
		return nil, fmt.Errorf("client config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the client settings.
func (c *ClientConfig) Validate() error {
	var errs []string

	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("server (%q) must be an http(s) URL", c.Server))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "poll_interval must be positive")
	}
	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level (%q) must be one of: debug, info, warn, error", c.Log.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Sprintf("log.format (%q) must be one of: text, json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("client config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// UploadPageURL is the service's upload form.
func (c *ClientConfig) UploadPageURL() string {
	return strings.TrimRight(c.Server, "/") + "/validator/"
}
