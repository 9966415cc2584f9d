package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"firebase-output/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestApplyDefaults checks the values used when nothing is configured
func TestApplyDefaults(t *testing.T) {
	config := &types.Config{}
	applyDefaults(config)

	assert.Equal(t, "firebase-output", config.App.Name)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, 8401, config.Server.Port)
	assert.Equal(t, 8001, config.Metrics.Port)
	assert.Equal(t, "/metrics", config.Metrics.Path)
	assert.Equal(t, "stdin", config.Input.Type)
	assert.Equal(t, "firebase-output", config.Tracing.ServiceName)

	assert.Equal(t, "put", config.Firebase.Verb)
	assert.Equal(t, 4, config.Firebase.Workers)
	assert.Equal(t, 1000, config.Firebase.QueueSize)
	assert.True(t, config.Firebase.AsyncWrites())
	assert.Equal(t, types.DefaultRetries, config.Firebase.MaxRetries())
	assert.Equal(t, float64(types.DefaultTimeoutSeconds), config.Firebase.RequestTimeout().Seconds())

	ttl, refresh := config.Firebase.AuthRefreshInterval()
	assert.True(t, refresh)
	assert.Equal(t, float64(types.DefaultAuthTTLSeconds), ttl.Seconds())
}

// TestApplyDefaultsKeepsExplicitValues checks that configured values win
func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	retries := 0
	config := &types.Config{
		Logging:  types.LoggingConfig{Level: "debug", Format: "text"},
		Firebase: types.FirebaseConfig{Verb: "%{[verb]}", Workers: 9, Retries: &retries},
	}
	applyDefaults(config)

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "%{[verb]}", config.Firebase.Verb)
	assert.Equal(t, 9, config.Firebase.Workers)
	assert.Equal(t, 0, config.Firebase.MaxRetries())
}

// TestEnvironmentOverrides checks the FIREBASE_* and ambient variables
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("FIREBASE_URL", "https://env.firebaseio.com")
	t.Setenv("FIREBASE_SECRET", "env-secret")
	t.Setenv("FIREBASE_PATH", "/env/%{id}")
	t.Setenv("FIREBASE_VERB", "patch")
	t.Setenv("FIREBASE_TARGET", "[payload]")
	t.Setenv("FIREBASE_RETRIES", "0")
	t.Setenv("FIREBASE_AUTH_TTL", "-1")
	t.Setenv("FIREBASE_ASYNC", "false")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("API_PORT", "9000")
	t.Setenv("INPUT_TYPE", "file")
	t.Setenv("INPUT_PATH", "/tmp/events.log")

	config := &types.Config{Firebase: types.FirebaseConfig{URL: "https://file.firebaseio.com"}}
	applyDefaults(config)
	applyEnvironmentOverrides(config)

	assert.Equal(t, "https://env.firebaseio.com", config.Firebase.URL)
	assert.Equal(t, "env-secret", config.Firebase.Secret)
	assert.Equal(t, "/env/%{id}", config.Firebase.Path)
	assert.Equal(t, "patch", config.Firebase.Verb)
	assert.Equal(t, "[payload]", config.Firebase.Target)
	assert.Equal(t, 0, config.Firebase.MaxRetries())
	assert.False(t, config.Firebase.AsyncWrites())

	_, refresh := config.Firebase.AuthRefreshInterval()
	assert.False(t, refresh)

	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "file", config.Input.Type)
	assert.Equal(t, "/tmp/events.log", config.Input.Path)
}

// TestLoadConfigFromFile checks the YAML layout of the firebase block
func TestLoadConfigFromFile(t *testing.T) {
	content := `
app:
  environment: staging
logging:
  level: debug
firebase:
  url: https://example.firebaseio.com
  secret: abc
  path: /users/%{[user][id]}
  verb: "%{action}"
  target: "[user]"
  firebase_timeout: 2.5
  firebase_retries: 0
  firebase_auth_ttl: -1
  silent: true
  async: false
  auth_data:
    uid: pipeline
    claims:
      role: writer
  circuit_breaker:
    enabled: true
    failure_threshold: 3
`
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	config, err := LoadConfig(file)
	require.NoError(t, err)

	fb := config.Firebase
	assert.Equal(t, "https://example.firebaseio.com", fb.URL)
	assert.Equal(t, "/users/%{[user][id]}", fb.Path)
	assert.Equal(t, "%{action}", fb.Verb)
	assert.Equal(t, "[user]", fb.Target)
	assert.Equal(t, 2500*time.Millisecond, fb.RequestTimeout())
	assert.Equal(t, 0, fb.MaxRetries())
	assert.True(t, fb.Silent)
	assert.False(t, fb.AsyncWrites())
	assert.Equal(t, "pipeline", fb.AuthData["uid"])
	assert.Equal(t, map[string]interface{}{"role": "writer"}, fb.AuthData["claims"])
	assert.Equal(t, 3, fb.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 2, fb.CircuitBreaker.SuccessThreshold)

	assert.Equal(t, "staging", config.App.Environment)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.NoError(t, ValidateConfig(config))
}

// TestLoadConfigMissingFile checks that an unreadable file is an error
func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

// TestLoadConfigInvalidYAML checks that a malformed file is an error
func TestLoadConfigInvalidYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("firebase: [unterminated"), 0o600))

	_, err := LoadConfig(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadConfigData(t *testing.T) {
	config, err := LoadConfigData([]byte("firebase:\n  url: https://example.firebaseio.com\n  path: /events\n"))
	require.NoError(t, err)
	assert.Equal(t, "/events", config.Firebase.Path)
	assert.Equal(t, "firebase-output", config.App.Name)

	_, err = LoadConfigData([]byte("firebase: [unclosed"))
	assert.Error(t, err)
}
