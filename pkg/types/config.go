// Package types - Configuration data structures
package types

import (
	"time"
)

// Config represents the complete application configuration structure.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Input     InputConfig     `yaml:"input"`
	Firebase  FirebaseConfig  `yaml:"firebase"`
	HotReload HotReloadConfig `yaml:"hot_reload"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name        string `yaml:"name"`        // Application name for identification
	Version     string `yaml:"version"`     // Application version
	Environment string `yaml:"environment"` // Deployment environment (dev, staging, prod)
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Exporter       string            `yaml:"exporter"` // "otlp", "jaeger"
	Endpoint       string            `yaml:"endpoint"`
	SampleRate     float64           `yaml:"sample_rate"`
	BatchTimeout   string            `yaml:"batch_timeout"`
	Headers        map[string]string `yaml:"headers"`
}

// InputConfig selects where the host reads events from.
type InputConfig struct {
	Type     string `yaml:"type"`      // "stdin", "file", "http"
	Path     string `yaml:"path"`      // file input only
	FromHead bool   `yaml:"from_head"` // file input: read existing content first
	Poll     bool   `yaml:"poll"`      // file input: poll instead of inotify
}

// HotReloadConfig controls watching the config file for changes. Only the
// logging block is applied live; other changes need a restart.
type HotReloadConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DebounceInterval string `yaml:"debounce_interval"`
	WatchInterval    string `yaml:"watch_interval"` // periodic hash check as a fallback to fsnotify
}

// FirebaseConfig is the output stage configuration.
//
// Retries and AuthTTL are pointers so that an explicit zero can be told
// apart from an omitted value.
type FirebaseConfig struct {
	URL     string   `yaml:"url"`
	Secret  string   `yaml:"secret"`
	Target  string   `yaml:"target"`
	Timeout float64  `yaml:"firebase_timeout"`
	Retries *int     `yaml:"firebase_retries"`
	AuthTTL *float64 `yaml:"firebase_auth_ttl"`
	Verb    string   `yaml:"verb"`
	Path    string   `yaml:"path"`

	AuthData  map[string]interface{} `yaml:"auth_data"`
	Silent    bool                   `yaml:"silent"`
	Async     *bool                  `yaml:"async"`
	Workers   int                    `yaml:"workers"`
	QueueSize int                    `yaml:"queue_size"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig represents circuit breaker configuration.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold int    `yaml:"failure_threshold"` // Consecutive failures before opening
	SuccessThreshold int    `yaml:"success_threshold"` // Half-open successes before closing
	Timeout          string `yaml:"timeout"`           // Time spent open before probing
}

const (
	DefaultTimeoutSeconds = 10
	DefaultRetries        = 3
	DefaultAuthTTLSeconds = 82800
	DefaultVerb           = "put"
	AuthRefreshDisabled   = -1
)

// RequestTimeout returns the per-request timeout.
func (c FirebaseConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.Timeout * float64(time.Second))
}

// MaxRetries returns the number of retries after the first attempt.
func (c FirebaseConfig) MaxRetries() int {
	if c.Retries == nil {
		return DefaultRetries
	}
	return *c.Retries
}

// AuthRefreshInterval returns the token lifetime, or false when refresh is
// disabled.
func (c FirebaseConfig) AuthRefreshInterval() (time.Duration, bool) {
	if c.AuthTTL == nil {
		return DefaultAuthTTLSeconds * time.Second, true
	}
	if *c.AuthTTL == AuthRefreshDisabled {
		return 0, false
	}
	return time.Duration(*c.AuthTTL * float64(time.Second)), true
}

// AsyncWrites reports whether writes run on the worker pool.
func (c FirebaseConfig) AsyncWrites() bool {
	return c.Async == nil || *c.Async
}
