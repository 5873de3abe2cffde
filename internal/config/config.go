package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIBaseURL is the public REST API root.
	DefaultAPIBaseURL = "https://mixer.com/api/v1"
	// DefaultTokenFile is where the login command stores the token blob, relative to the home directory.
	DefaultTokenFile = "~/.mixplay/auth.json"
)

// Environment variables that override the corresponding config keys.
const (
	EnvClientID     = "MIXPLAY_CLIENT_ID"
	EnvClientSecret = "MIXPLAY_CLIENT_SECRET"
	EnvExperienceID = "MIXPLAY_EXPERIENCE_ID"
	EnvShareCode    = "MIXPLAY_SHARE_CODE"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	SDKConfig `yaml:",inline"`

	// ClientID is the OAuth client id registered for this application.
	ClientID string `yaml:"client-id" json:"client-id"`

	// ClientSecret is the optional OAuth client secret.
	ClientSecret string `yaml:"client-secret" json:"client-secret"`

	// ExperienceID is the interactive version to join.
	ExperienceID string `yaml:"experience-id" json:"experience-id"`

	// ShareCode is required when joining a version that is not published.
	ShareCode string `yaml:"share-code" json:"share-code"`

	// SetReady marks the participant controls ready right after connecting.
	SetReady bool `yaml:"set-ready" json:"set-ready"`

	// TokenFile is the path of the persisted token blob. A leading "~" expands to the home directory.
	TokenFile string `yaml:"token-file" json:"token-file"`

	// HostsURL overrides the host discovery endpoint.
	HostsURL string `yaml:"hosts-url" json:"hosts-url"`

	// SocketAddress skips host discovery and dials this websocket URL directly.
	SocketAddress string `yaml:"socket-address" json:"socket-address"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile writes logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir overrides the directory used when LoggingToFile is set.
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// RunLoop tunes the background worker.
	RunLoop RunLoopConfig `yaml:"run-loop" json:"run-loop"`
}

// LoadConfig reads and parses the YAML configuration file. The file must exist.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads the YAML configuration file. When optional is true a missing
// or empty file yields the defaults instead of an error.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configFile)
	if err != nil {
		if !optional || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		data = nil
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyEnv overlays the MIXPLAY_* environment variables that are set.
func (c *Config) ApplyEnv() {
	if c == nil {
		return
	}
	overlay := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	overlay(&c.ClientID, EnvClientID)
	overlay(&c.ClientSecret, EnvClientSecret)
	overlay(&c.ExperienceID, EnvExperienceID)
	overlay(&c.ShareCode, EnvShareCode)
}

// ApplyDefaults fills unset fields and trims stray whitespace.
func (c *Config) ApplyDefaults() {
	if c == nil {
		return
	}
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.ExperienceID = strings.TrimSpace(c.ExperienceID)
	c.ShareCode = strings.TrimSpace(c.ShareCode)
	c.ProxyURL = strings.TrimSpace(c.ProxyURL)

	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if strings.TrimSpace(c.TokenFile) == "" {
		c.TokenFile = DefaultTokenFile
	}
	if c.RunLoop.BatchSize < 0 {
		c.RunLoop.BatchSize = 0
	}
	if c.RunLoop.IntervalMS < 0 {
		c.RunLoop.IntervalMS = 0
	}
	if c.RunLoop.MaxConsecutiveFailures < 0 {
		c.RunLoop.MaxConsecutiveFailures = 0
	}
	if c.RunLoop.BackoffMaxMS < 0 {
		c.RunLoop.BackoffMaxMS = 0
	}
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client-id is required (or set %s)", EnvClientID)
	}
	return nil
}

// ResolveTokenFile returns TokenFile with a leading "~" expanded.
func (c *Config) ResolveTokenFile() (string, error) {
	path := DefaultTokenFile
	if c != nil && strings.TrimSpace(c.TokenFile) != "" {
		path = strings.TrimSpace(c.TokenFile)
	}
	return ExpandHome(path)
}

// ExpandHome expands a leading "~" to the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
