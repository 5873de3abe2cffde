// Package config provides configuration management for the MixPlay client.
// It handles loading and parsing YAML configuration files, applying defaults and
// environment overrides, and provides structured access to OAuth client settings,
// the experience to join, proxy configuration and run-loop tuning.
package config

// SDKConfig holds the settings shared by every outbound network component.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	// Supported schemes are socks5, http and https.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// APIBaseURL is the root of the REST API (short-code OAuth, token endpoint, host discovery).
	APIBaseURL string `yaml:"api-base-url" json:"api-base-url"`
}

// RunLoopConfig tunes the background worker that pumps protocol events.
type RunLoopConfig struct {
	// BatchSize caps the number of events processed per pump. <= 0 uses the default.
	BatchSize int `yaml:"batch-size,omitempty" json:"batch-size,omitempty"`

	// IntervalMS is the pause between pumps in milliseconds. <= 0 uses the default.
	IntervalMS int `yaml:"interval-ms,omitempty" json:"interval-ms,omitempty"`

	// MaxConsecutiveFailures stops the worker after that many failed pumps in a row.
	// 0 keeps pumping and only reports failures.
	MaxConsecutiveFailures int `yaml:"max-consecutive-failures,omitempty" json:"max-consecutive-failures,omitempty"`

	// BackoffMaxMS enables exponential backoff after failed pumps, capped at this many
	// milliseconds. 0 keeps the fixed interval.
	BackoffMaxMS int `yaml:"backoff-max-ms,omitempty" json:"backoff-max-ms,omitempty"`
}
