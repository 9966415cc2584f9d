package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "firebase-output/pkg/errors"
	"firebase-output/pkg/template"
	"firebase-output/pkg/types"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// LoadConfig carrega a configuração a partir de arquivo YAML e variáveis de ambiente
func LoadConfig(configFile string) (*types.Config, error) {
	config := &types.Config{}

	if configFile != "" {
		if err := loadConfigFile(configFile, config); err != nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Loaded configuration from file: %s\n", configFile)
	}

	applyDefaults(config)
	applyEnvironmentOverrides(config)

	return config, nil
}

// LoadConfigData builds a configuration from YAML already read into memory.
// Defaults and environment overrides apply as in LoadConfig.
func LoadConfigData(data []byte) (*types.Config, error) {
	config := &types.Config{}
	if err := parseConfigData(data, config); err != nil {
		return nil, err
	}

	applyDefaults(config)
	applyEnvironmentOverrides(config)

	return config, nil
}

// applyDefaults aplica valores padrão à configuração
func applyDefaults(config *types.Config) {
	// App defaults
	if config.App.Name == "" {
		config.App.Name = "firebase-output"
	}
	if config.App.Version == "" {
		config.App.Version = "v0.1.0"
	}
	if config.App.Environment == "" {
		config.App.Environment = "production"
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}

	// Server defaults
	if config.Server.Port == 0 {
		config.Server.Port = 8401
	}
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.ReadTimeout == "" {
		config.Server.ReadTimeout = "15s"
	}
	if config.Server.WriteTimeout == "" {
		config.Server.WriteTimeout = "15s"
	}

	// Metrics defaults
	if config.Metrics.Port == 0 {
		config.Metrics.Port = 8001
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}

	// Tracing defaults
	if config.Tracing.ServiceName == "" {
		config.Tracing.ServiceName = config.App.Name
	}
	if config.Tracing.ServiceVersion == "" {
		config.Tracing.ServiceVersion = config.App.Version
	}
	if config.Tracing.Exporter == "" {
		config.Tracing.Exporter = "otlp"
	}
	if config.Tracing.BatchTimeout == "" {
		config.Tracing.BatchTimeout = "5s"
	}

	// Hot reload defaults
	if config.HotReload.DebounceInterval == "" {
		config.HotReload.DebounceInterval = "1s"
	}
	if config.HotReload.WatchInterval == "" {
		config.HotReload.WatchInterval = "30s"
	}

	// Input defaults
	if config.Input.Type == "" {
		config.Input.Type = "stdin"
	}

	// Firebase defaults; timeout, retries and auth ttl resolve their own
	// defaults so that an explicit zero survives
	if config.Firebase.Verb == "" {
		config.Firebase.Verb = types.DefaultVerb
	}
	if config.Firebase.Workers <= 0 {
		config.Firebase.Workers = 4
	}
	if config.Firebase.QueueSize <= 0 {
		config.Firebase.QueueSize = 1000
	}
	if config.Firebase.CircuitBreaker.FailureThreshold <= 0 {
		config.Firebase.CircuitBreaker.FailureThreshold = 5
	}
	if config.Firebase.CircuitBreaker.SuccessThreshold <= 0 {
		config.Firebase.CircuitBreaker.SuccessThreshold = 2
	}
	if config.Firebase.CircuitBreaker.Timeout == "" {
		config.Firebase.CircuitBreaker.Timeout = "30s"
	}
}

// applyEnvironmentOverrides aplica sobrescritas de variáveis de ambiente
func applyEnvironmentOverrides(config *types.Config) {
	// Firebase overrides
	if u := getEnvString("FIREBASE_URL", ""); u != "" {
		config.Firebase.URL = u
	}
	if secret := getEnvString("FIREBASE_SECRET", ""); secret != "" {
		config.Firebase.Secret = secret
	}
	if path := getEnvString("FIREBASE_PATH", ""); path != "" {
		config.Firebase.Path = path
	}
	if verb := getEnvString("FIREBASE_VERB", ""); verb != "" {
		config.Firebase.Verb = verb
	}
	if target := getEnvString("FIREBASE_TARGET", ""); target != "" {
		config.Firebase.Target = target
	}
	if timeout := getEnvFloat("FIREBASE_TIMEOUT", 0); timeout > 0 {
		config.Firebase.Timeout = timeout
	}
	if retries := getEnvInt("FIREBASE_RETRIES", -1); retries >= 0 {
		config.Firebase.Retries = &retries
	}
	if value := os.Getenv("FIREBASE_AUTH_TTL"); value != "" {
		if ttl, err := strconv.ParseFloat(value, 64); err == nil {
			config.Firebase.AuthTTL = &ttl
		}
	}
	if value := os.Getenv("FIREBASE_ASYNC"); value != "" {
		async := getEnvBool("FIREBASE_ASYNC", config.Firebase.AsyncWrites())
		config.Firebase.Async = &async
	}

	// Server/API overrides
	if port := getEnvInt("API_PORT", 0); port != 0 {
		config.Server.Port = port
	}
	if host := getEnvString("API_HOST", ""); host != "" {
		config.Server.Host = host
	}
	if enabled := getEnvBool("API_ENABLED", config.Server.Enabled); enabled != config.Server.Enabled {
		config.Server.Enabled = enabled
	}

	// Metrics overrides
	if port := getEnvInt("METRICS_PORT", 0); port != 0 {
		config.Metrics.Port = port
	}
	if path := getEnvString("METRICS_PATH", ""); path != "" {
		config.Metrics.Path = path
	}
	if enabled := getEnvBool("METRICS_ENABLED", config.Metrics.Enabled); enabled != config.Metrics.Enabled {
		config.Metrics.Enabled = enabled
	}

	// Tracing overrides
	if enabled := getEnvBool("TRACING_ENABLED", config.Tracing.Enabled); enabled != config.Tracing.Enabled {
		config.Tracing.Enabled = enabled
	}
	if endpoint := getEnvString("TRACING_ENDPOINT", ""); endpoint != "" {
		config.Tracing.Endpoint = endpoint
	}

	// Input overrides
	if inputType := getEnvString("INPUT_TYPE", ""); inputType != "" {
		config.Input.Type = inputType
	}
	if path := getEnvString("INPUT_PATH", ""); path != "" {
		config.Input.Path = path
	}

	// Logging overrides
	if level := getEnvString("LOG_LEVEL", ""); level != "" {
		config.Logging.Level = level
	}
	if format := getEnvString("LOG_FORMAT", ""); format != "" {
		config.Logging.Format = format
	}
}

// loadConfigFile carrega configuração de um arquivo YAML
func loadConfigFile(filename string, config *types.Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return parseConfigData(data, config)
}

func parseConfigData(data []byte, config *types.Config) error {
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// yaml.v2 decodifica mapas aninhados como map[interface{}]interface{}
	if config.Firebase.AuthData != nil {
		config.Firebase.AuthData = normalizeMap(config.Firebase.AuthData)
	}

	return nil
}

// normalizeMap converts nested YAML maps into JSON-encodable values.
func normalizeMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch value := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(value))
		for k, inner := range value {
			out[fmt.Sprint(k)] = normalizeValue(inner)
		}
		return out
	case map[string]interface{}:
		return normalizeMap(value)
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, inner := range value {
			out[i] = normalizeValue(inner)
		}
		return out
	default:
		return v
	}
}

// Funções auxiliares para variáveis de ambiente

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// ValidateConfig valida a configuração. Failures carry the CONFIG_INVALID code.
func ValidateConfig(config *types.Config) error {
	if err := validate(config); err != nil {
		return apperrors.ConfigError("validate", "invalid configuration").Wrap(err)
	}
	return nil
}

func validate(config *types.Config) error {
	if err := validateFirebase(config.Firebase); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(config.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", config.Logging.Level, err)
	}
	if config.Logging.Format != "json" && config.Logging.Format != "text" {
		return fmt.Errorf("invalid log format %q, expected json or text", config.Logging.Format)
	}

	if config.Server.Enabled && (config.Server.Port <= 0 || config.Server.Port > 65535) {
		return fmt.Errorf("invalid API port: %d", config.Server.Port)
	}
	for name, value := range map[string]string{
		"server.read_timeout":          config.Server.ReadTimeout,
		"server.write_timeout":         config.Server.WriteTimeout,
		"hot_reload.debounce_interval": config.HotReload.DebounceInterval,
		"hot_reload.watch_interval":    config.HotReload.WatchInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}

	if config.Metrics.Enabled && (config.Metrics.Port <= 0 || config.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", config.Metrics.Port)
	}
	if config.Metrics.Enabled && config.Server.Enabled && config.Metrics.Port == config.Server.Port {
		return fmt.Errorf("metrics port %d conflicts with API port", config.Metrics.Port)
	}

	if config.Tracing.Enabled {
		if config.Tracing.SampleRate < 0 || config.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing sample_rate must be between 0 and 1, got %v", config.Tracing.SampleRate)
		}
	}

	switch config.Input.Type {
	case "stdin":
	case "file":
		if config.Input.Path == "" {
			return fmt.Errorf("input path cannot be empty when input type is file")
		}
	case "http":
		if !config.Server.Enabled {
			return fmt.Errorf("http input requires server.enabled")
		}
	default:
		return fmt.Errorf("unsupported input type %q, expected stdin, file or http", config.Input.Type)
	}

	return nil
}

func validateFirebase(fb types.FirebaseConfig) error {
	if fb.URL == "" {
		return fmt.Errorf("firebase url cannot be empty")
	}
	u, err := url.Parse(fb.URL)
	if err != nil {
		return fmt.Errorf("invalid firebase url %q: %w", fb.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid firebase url %q: expected http(s)://host", fb.URL)
	}

	if strings.TrimSpace(fb.Path) == "" {
		return fmt.Errorf("firebase path cannot be empty")
	}
	if _, err := template.Compile(fb.Path); err != nil {
		return fmt.Errorf("invalid firebase path: %w", err)
	}
	if _, err := template.Compile(fb.Verb); err != nil {
		return fmt.Errorf("invalid firebase verb: %w", err)
	}
	if fb.Target != "" {
		if _, err := types.ParseFieldRef(fb.Target); err != nil {
			return fmt.Errorf("invalid firebase target: %w", err)
		}
	}

	if fb.Timeout < 0 {
		return fmt.Errorf("firebase_timeout cannot be negative: %v", fb.Timeout)
	}
	if fb.Retries != nil && *fb.Retries < 0 {
		return fmt.Errorf("firebase_retries cannot be negative: %d", *fb.Retries)
	}
	if fb.AuthTTL != nil && *fb.AuthTTL != types.AuthRefreshDisabled && *fb.AuthTTL <= 0 {
		return fmt.Errorf("firebase_auth_ttl must be positive or %d, got %v", types.AuthRefreshDisabled, *fb.AuthTTL)
	}

	if fb.CircuitBreaker.Enabled && fb.CircuitBreaker.Timeout != "" {
		if _, err := time.ParseDuration(fb.CircuitBreaker.Timeout); err != nil {
			return fmt.Errorf("invalid circuit_breaker.timeout %q: %w", fb.CircuitBreaker.Timeout, err)
		}
	}

	return nil
}
