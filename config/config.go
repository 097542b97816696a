// Package config loads the relay configuration from raktradar.yml with
// RAKT_* environment overrides.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/raktradar/relay/errors"
	"gopkg.in/yaml.v3"
)

// Default values applied when raktradar.yml is absent or partial.
const (
	DefaultBackendURL      = "http://localhost:8000"
	DefaultPollInterval    = 5 * time.Second
	DefaultRelevanceWindow = 60 * time.Second
	DefaultNavigateDelay   = 2 * time.Second
)

// Config holds the runtime configuration for the relay library.
type Config struct {
	// BackendURL is the base URL of the coordination REST API.
	BackendURL string `yaml:"backend_url"`

	// BrokerURL is the optional websocket broadcast broker, e.g.
	// "ws://localhost:7420/ws". Empty disables the broadcast channel.
	BrokerURL string `yaml:"broker_url"`

	// ProfileDir is the directory holding the persisted fact store and logs.
	ProfileDir string `yaml:"profile_dir"`

	// PollInterval is the fixed interval between backend refreshes.
	PollInterval Duration `yaml:"poll_interval"`

	// RelevanceWindow bounds how long a notification stays actionable.
	RelevanceWindow Duration `yaml:"relevance_window"`

	// NavigateDelay is the pause before an admitted event triggers its
	// one-shot navigation side effect.
	NavigateDelay Duration `yaml:"navigate_delay"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.ConfigInvalid("invalid duration: " + raw)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads and parses a relay configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration data and applies defaults and
// environment overrides.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config file")
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadDefault looks for raktradar.yml in the current directory, then in
// ~/.config/raktradar/. A missing file is not an error; defaults apply.
func LoadDefault() (*Config, error) {
	candidates := []string{"raktradar.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "raktradar", "raktradar.yml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RAKT_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("RAKT_BROKER_URL"); v != "" {
		c.BrokerURL = v
	}
	if v := os.Getenv("RAKT_PROFILE_DIR"); v != "" {
		c.ProfileDir = v
	}
	if v := os.Getenv("RAKT_POLL_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.PollInterval = Duration(parsed)
		}
	}
	if v := os.Getenv("RAKT_RELEVANCE_WINDOW"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.RelevanceWindow = Duration(parsed)
		}
	}
	if v := os.Getenv("RAKT_NAVIGATE_DELAY"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.NavigateDelay = Duration(parsed)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}
	if c.ProfileDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.ProfileDir = filepath.Join(home, ".raktradar")
		} else {
			c.ProfileDir = ".raktradar"
		}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.RelevanceWindow <= 0 {
		c.RelevanceWindow = Duration(DefaultRelevanceWindow)
	}
	if c.NavigateDelay <= 0 {
		c.NavigateDelay = Duration(DefaultNavigateDelay)
	}
}
