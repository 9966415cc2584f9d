// Package secrets resolves credential references found in configuration.
//
// A value of the form "<scheme>:<key>" whose scheme names a registered backend
// is looked up in that backend; anything else is returned unchanged. The
// built-in schemes are "env" (environment variable) and "file" (file
// contents, trailing newlines trimmed).
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Backend looks up a secret by key.
type Backend interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// Resolver dispatches references to backends by scheme.
type Resolver struct {
	backends map[string]Backend
	mutex    sync.RWMutex
	logger   *logrus.Logger
}

// NewResolver returns a resolver with the env and file backends registered.
func NewResolver(logger *logrus.Logger) *Resolver {
	r := &Resolver{
		backends: make(map[string]Backend),
		logger:   logger,
	}
	r.Register("env", EnvBackend{})
	r.Register("file", FileBackend{})
	return r
}

// Register adds or replaces the backend for scheme.
func (r *Resolver) Register(scheme string, backend Backend) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.backends[scheme] = backend
}

// Resolve returns the secret a value refers to, or the value itself when it
// is not a reference.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	scheme, key, ok := strings.Cut(value, ":")
	if !ok {
		return value, nil
	}

	r.mutex.RLock()
	backend, found := r.backends[scheme]
	r.mutex.RUnlock()
	if !found {
		return value, nil
	}

	if key == "" {
		return "", fmt.Errorf("empty %s secret reference", scheme)
	}

	secret, err := backend.GetSecret(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s secret: %w", scheme, err)
	}
	if r.logger != nil {
		r.logger.WithField("backend", scheme).Debug("Secret resolved")
	}
	return secret, nil
}

// EnvBackend reads secrets from environment variables.
type EnvBackend struct{}

// GetSecret returns the value of the variable named key.
func (EnvBackend) GetSecret(_ context.Context, key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("environment variable not found: %s", key)
	}
	return value, nil
}

// FileBackend reads secrets from files, e.g. mounted Kubernetes secrets.
type FileBackend struct{}

// GetSecret returns the contents of the file at key.
func (FileBackend) GetSecret(_ context.Context, key string) (string, error) {
	data, err := os.ReadFile(key)
	if err != nil {
		return "", err
	}
	value := strings.TrimRight(string(data), "\r\n")
	if value == "" {
		return "", fmt.Errorf("secret file is empty: %s", key)
	}
	return value, nil
}
