// Package firebase is a small REST client for a Firebase Realtime Database
// style endpoint: JSON documents addressed by <base>/<path>.json, written
// with PUT, PATCH, POST and DELETE.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apperrors "firebase-output/pkg/errors"
	"firebase-output/pkg/types"
	"firebase-output/pkg/validation"

	"github.com/cenkalti/backoff/v5"
)

const maxErrorBody = 4096

// Config holds the client setup parameters.
type Config struct {
	URL         string
	Secret      string
	AuthData    map[string]interface{}
	Timeout     time.Duration
	MaxRetries  int
	AuthTTL     time.Duration
	AuthRefresh bool
	Silent      bool

	// RetryInterval is the first backoff delay; it grows exponentially.
	RetryInterval time.Duration
	Transport     http.RoundTripper
}

// Hooks observe the client. Every hook is optional and may be called from
// several goroutines at once.
type Hooks struct {
	Info        func(msg string, fields map[string]interface{})
	Error       func(err error, fields map[string]interface{})
	Retry       func(op types.Operation, attempt int, err error, wait time.Duration)
	AuthRefresh func()
}

// Result describes a successful write.
type Result struct {
	StatusCode int
	Attempts   int
	// Key is the child name generated by the server for Append.
	Key string
}

// Client performs writes against one database. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	tokens     *TokenSource
	maxRetries int
	silent     bool
	retryBase  time.Duration
	hooks      Hooks

	closeOnce sync.Once
}

// NewClient validates cfg and builds a client. It performs no network I/O.
func NewClient(cfg Config, hooks Hooks) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, apperrors.SetupError("parse_url", fmt.Sprintf("invalid url %q", cfg.URL)).Wrap(err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, apperrors.SetupError("parse_url", fmt.Sprintf("url %q must use http or https", cfg.URL))
	}
	if base.Host == "" {
		return nil, apperrors.SetupError("parse_url", fmt.Sprintf("url %q has no host", cfg.URL))
	}
	if cfg.MaxRetries < 0 {
		return nil, apperrors.SetupError("configure_retries", fmt.Sprintf("retries must be >= 0, got %d", cfg.MaxRetries))
	}
	if cfg.AuthRefresh && cfg.AuthTTL <= 0 {
		return nil, apperrors.SetupError("configure_auth", fmt.Sprintf("auth ttl must be positive or -1, got %s", cfg.AuthTTL))
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = types.DefaultTimeoutSeconds * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		tokens:     NewTokenSource(cfg.Secret, cfg.AuthData, cfg.AuthTTL, cfg.AuthRefresh),
		maxRetries: cfg.MaxRetries,
		silent:     cfg.Silent,
		retryBase:  cfg.RetryInterval,
		hooks:      hooks,
	}
	c.tokens.onRefresh = func(issuedAt time.Time) {
		c.logInfo("Auth token generated", map[string]interface{}{"issued_at": issuedAt})
		if c.hooks.AuthRefresh != nil {
			c.hooks.AuthRefresh()
		}
	}

	return c, nil
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Put replaces the data at path.
func (c *Client) Put(ctx context.Context, path string, payload interface{}) (Result, error) {
	return c.Do(ctx, types.Replace, path, payload)
}

// Patch updates the given keys at path.
func (c *Client) Patch(ctx context.Context, path string, payload interface{}) (Result, error) {
	return c.Do(ctx, types.Merge, path, payload)
}

// Post appends payload as a new child of path.
func (c *Client) Post(ctx context.Context, path string, payload interface{}) (Result, error) {
	return c.Do(ctx, types.Append, path, payload)
}

// Delete removes the data at path.
func (c *Client) Delete(ctx context.Context, path string) (Result, error) {
	return c.Do(ctx, types.Delete, path, nil)
}

// Do performs op at path, retrying transient failures up to the configured
// retry count with exponential backoff. Non-2xx responses are returned as
// REMOTE_REJECTED without retry.
func (c *Client) Do(ctx context.Context, op types.Operation, path string, payload interface{}) (Result, error) {
	var body []byte
	if op != types.Delete {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Result{}, apperrors.New(apperrors.CodeRemoteRejected, "firebase", op.Verb(), "payload is not JSON encodable").Wrap(err)
		}
		body = encoded
	}

	attempts := 0
	result, err := backoff.Retry[Result](ctx, func() (Result, error) {
		attempts++
		res, err := c.attempt(ctx, op, path, body)
		if err != nil && !isTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logInfo("Retrying write after transient failure", map[string]interface{}{
				"verb":    op.Verb(),
				"path":    path,
				"attempt": attempts,
				"wait":    wait,
				"error":   err.Error(),
			})
			if c.hooks.Retry != nil {
				c.hooks.Retry(op, attempts, err, wait)
			}
		}),
	)
	result.Attempts = attempts

	if err != nil {
		if _, ok := apperrors.AsAppError(err); !ok {
			if isTransient(err) {
				err = apperrors.TransportError(op.Verb(), err).
					WithMetadata("attempts", attempts)
			} else {
				err = apperrors.New(apperrors.CodeRemoteRejected, "firebase", op.Verb(), "request failed").Wrap(err)
			}
		}
		c.logError(err, map[string]interface{}{
			"url":      c.base.String(),
			"verb":     op.Verb(),
			"path":     path,
			"attempts": attempts,
		})
		return result, err
	}

	return result, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxInterval = 10 * c.retryBase
	return b
}

func (c *Client) attempt(ctx context.Context, op types.Operation, path string, body []byte) (Result, error) {
	target, err := c.requestURL(path)
	if err != nil {
		return Result{}, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method(), target, reader)
	if err != nil {
		return Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactAuth(urlErr.URL)
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return Result{}, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{StatusCode: resp.StatusCode}, apperrors.RemoteError(op.Verb(), resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	result := Result{StatusCode: resp.StatusCode}
	if op == types.Append {
		var created struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(respBody, &created) == nil {
			result.Key = created.Name
		}
	}
	return result, nil
}

// requestURL joins path onto the base URL, appends ".json" and carries the
// query of both plus the auth token and print=silent when configured.
func (c *Client) requestURL(path string) (string, error) {
	if err := validation.ValidateDatabasePath(path); err != nil {
		return "", apperrors.InvalidPathError(path, err.Error())
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", apperrors.InvalidPathError(path, "path is not a valid URI reference").Wrap(err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		if errors.Is(err, ErrTokenSourceClosed) {
			return "", apperrors.New(apperrors.CodeWriterUnavailable, "firebase", "write", "client is closed")
		}
		return "", apperrors.New(apperrors.CodeRemoteRejected, "firebase", "auth", "could not sign auth token").Wrap(err)
	}

	// Escaped form so that %2F stays inside its segment.
	escaped := strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.Trim(ref.EscapedPath(), "/") + ".json"
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return "", apperrors.InvalidPathError(path, "path is not a valid URI reference").Wrap(err)
	}

	u := *c.base
	u.Path = unescaped
	u.RawPath = escaped
	u.Fragment = ""

	query := c.base.Query()
	for key, values := range ref.Query() {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	if token != "" {
		query.Set("auth", token)
	}
	if c.silent {
		query.Set("print", "silent")
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// redactAuth hides the token in URLs that end up in error messages.
func redactAuth(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := u.Query()
	if query.Has("auth") {
		query.Set("auth", "REDACTED")
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// RefreshAuth drops the current token; the next request signs a new one.
func (c *Client) RefreshAuth() {
	c.tokens.Invalidate()
	c.logInfo("Auth token invalidated", nil)
}

// Close invalidates the token and releases idle connections. Requests made
// after Close fail with WRITER_UNAVAILABLE.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.tokens.Close()
		c.httpClient.CloseIdleConnections()
		c.logInfo("Client closed", map[string]interface{}{"url": c.base.String()})
	})
	return nil
}

func (c *Client) logInfo(msg string, fields map[string]interface{}) {
	if c.hooks.Info != nil {
		c.hooks.Info(msg, fields)
	}
}

func (c *Client) logError(err error, fields map[string]interface{}) {
	if c.hooks.Error != nil {
		c.hooks.Error(err, fields)
	}
}
