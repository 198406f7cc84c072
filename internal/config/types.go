package config

import (
	"time"
)

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config represents the root configuration structure
type Config struct {
	Host                    string                `koanf:"host" yaml:"host"`
	Port                    int                   `koanf:"port" yaml:"port"`
	HTTPS                   *HTTPSConfig          `koanf:"https" yaml:"https,omitempty"`
	BehindProxy             bool                  `koanf:"behind_proxy" yaml:"behind_proxy"`
	LogLevel                string                `koanf:"log_level" yaml:"log_level"`
	LogFile                 string                `koanf:"log_file" yaml:"log_file,omitempty"`
	MaxBodySize             string                `koanf:"max_body_size" yaml:"max_body_size"`
	DeliveryTimeout         Duration              `koanf:"delivery_timeout" yaml:"delivery_timeout"`
	DispatchTimeout         Duration              `koanf:"dispatch_timeout" yaml:"dispatch_timeout"`
	MaxConcurrentDeliveries int64                 `koanf:"max_concurrent_deliveries" yaml:"max_concurrent_deliveries"`
	Tracing                 TracingConfig         `koanf:"tracing" yaml:"tracing"`
	Metrics                 MetricsConfig         `koanf:"metrics" yaml:"metrics"`
	Journal                 JournalConfig         `koanf:"journal" yaml:"journal"`
	Hooks                   map[string]HookConfig `koanf:"hooks" yaml:"hooks"`

	path        string
	fingerprint string
	warnings    []string
}

// HTTPSConfig enables TLS on the listener.
type HTTPSConfig struct {
	Cert string `koanf:"cert" yaml:"cert"`
	Key  string `koanf:"key" yaml:"key"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled" yaml:"enabled"`
	ServiceName string `koanf:"service_name" yaml:"service_name"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
}

// JournalConfig enables the SQLite delivery journal when Path is set.
type JournalConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// HookConfig is one route: what comes in and where it goes.
type HookConfig struct {
	In  HookIn    `koanf:"in" yaml:"in"`
	Out []HookOut `koanf:"out" yaml:"out"`
}

// HookIn is the incoming contract.
type HookIn struct {
	// ContentType must equal the request's Content-Type exactly
	ContentType string `koanf:"content_type" yaml:"content_type"`
	// Secret256 enables X-Hub-Signature-256 verification
	Secret256 string `koanf:"secret_256" yaml:"secret_256,omitempty"`
}

// HookOut is one destination.
type HookOut struct {
	Href      string `koanf:"href" yaml:"href"`
	Secret256 string `koanf:"secret_256" yaml:"secret_256,omitempty"`
	// KeepHeaders lists inbound headers to relay, case-insensitive.
	// X-Hub-Signature and X-Hub-Signature-256 are always dropped.
	KeepHeaders []string    `koanf:"keep_headers" yaml:"keep_headers,omitempty"`
	Reword      *HookReword `koanf:"reword" yaml:"reword,omitempty"`
}

// HookReword replaces the relayed body with a rendered template.
type HookReword struct {
	ContentType string `koanf:"content_type" yaml:"content_type"`
	Content     string `koanf:"content" yaml:"content"`
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Fingerprint returns the BLAKE3 digest of the config file.
func (c *Config) Fingerprint() string {
	return c.fingerprint
}

// Warnings returns the non-fatal findings from Audit at load time.
func (c *Config) Warnings() []string {
	return c.warnings
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return joinHostPort(c.Host, c.Port)
}
