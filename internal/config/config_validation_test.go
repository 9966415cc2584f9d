package config

import (
	"testing"

	apperrors "firebase-output/pkg/errors"
	"firebase-output/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *types.Config {
	config := &types.Config{
		Firebase: types.FirebaseConfig{
			URL:  "https://example.firebaseio.com",
			Path: "/events/%{id}",
		},
	}
	applyDefaults(config)
	return config
}

// TestValidConfigPasses tests that a minimal configuration passes validation
func TestValidConfigPasses(t *testing.T) {
	require.NoError(t, ValidateConfig(validConfig()))
}

// TestInvalidConfigs covers each rejected field
func TestInvalidConfigs(t *testing.T) {
	negative := -2
	zeroTTL := 0.0

	tests := []struct {
		name    string
		mutate  func(c *types.Config)
		message string
	}{
		{"missing url", func(c *types.Config) { c.Firebase.URL = "" }, "firebase url cannot be empty"},
		{"url without scheme", func(c *types.Config) { c.Firebase.URL = "example.firebaseio.com" }, "invalid firebase url"},
		{"ftp url", func(c *types.Config) { c.Firebase.URL = "ftp://example.com" }, "invalid firebase url"},
		{"missing path", func(c *types.Config) { c.Firebase.Path = "  " }, "firebase path cannot be empty"},
		{"malformed path template", func(c *types.Config) { c.Firebase.Path = "/%{[a}" }, "invalid firebase path"},
		{"malformed verb template", func(c *types.Config) { c.Firebase.Verb = "%{[a]b}" }, "invalid firebase verb"},
		{"malformed target", func(c *types.Config) { c.Firebase.Target = "[a" }, "invalid firebase target"},
		{"negative timeout", func(c *types.Config) { c.Firebase.Timeout = -1 }, "firebase_timeout"},
		{"negative retries", func(c *types.Config) { c.Firebase.Retries = &negative }, "firebase_retries"},
		{"zero auth ttl", func(c *types.Config) { c.Firebase.AuthTTL = &zeroTTL }, "firebase_auth_ttl"},
		{"bad breaker timeout", func(c *types.Config) {
			c.Firebase.CircuitBreaker.Enabled = true
			c.Firebase.CircuitBreaker.Timeout = "later"
		}, "circuit_breaker.timeout"},
		{"bad log level", func(c *types.Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad log format", func(c *types.Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad api port", func(c *types.Config) {
			c.Server.Enabled = true
			c.Server.Port = 70000
		}, "invalid API port"},
		{"bad read timeout", func(c *types.Config) { c.Server.ReadTimeout = "fast" }, "server.read_timeout"},
		{"bad metrics port", func(c *types.Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = -1
		}, "invalid metrics port"},
		{"port conflict", func(c *types.Config) {
			c.Server.Enabled = true
			c.Metrics.Enabled = true
			c.Metrics.Port = c.Server.Port
		}, "conflicts"},
		{"bad sample rate", func(c *types.Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}, "sample_rate"},
		{"file input without path", func(c *types.Config) { c.Input.Type = "file" }, "input path"},
		{"http input without server", func(c *types.Config) { c.Input.Type = "http" }, "server.enabled"},
		{"unknown input", func(c *types.Config) { c.Input.Type = "kafka" }, "unsupported input type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := ValidateConfig(config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigInvalid))
		})
	}
}

// TestAuthTTLDisabledIsValid tests the -1 sentinel
func TestAuthTTLDisabledIsValid(t *testing.T) {
	config := validConfig()
	disabled := float64(types.AuthRefreshDisabled)
	config.Firebase.AuthTTL = &disabled

	assert.NoError(t, ValidateConfig(config))
}

// TestStaticUnknownVerbIsValid tests that verbs are only checked per event
func TestStaticUnknownVerbIsValid(t *testing.T) {
	config := validConfig()
	config.Firebase.Verb = "get"

	assert.NoError(t, ValidateConfig(config))
}
