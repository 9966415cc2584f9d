package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"firebase-output/internal/firebase"
	"firebase-output/internal/metrics"
	"firebase-output/pkg/circuit"
	apperrors "firebase-output/pkg/errors"
	"firebase-output/pkg/tracing"
	"firebase-output/pkg/types"
	"firebase-output/pkg/workerpool"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	// ErrSinkClosed is reported to the completion callback of writes issued
	// after Shutdown.
	ErrSinkClosed = errors.New("firebase sink is closed")
	// ErrQueueFull is reported when the async write queue has no room.
	ErrQueueFull = errors.New("firebase sink write queue is full")
)

// Option customizes a FirebaseSink.
type Option func(*sinkOptions)

type sinkOptions struct {
	tracer        oteltrace.Tracer
	clientConfig  func(*firebase.Config)
	retryInterval time.Duration
}

// WithTracer sets the tracer used for write spans.
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(o *sinkOptions) { o.tracer = tracer }
}

// WithRetryInterval overrides the first backoff delay between retries.
func WithRetryInterval(d time.Duration) Option {
	return func(o *sinkOptions) { o.retryInterval = d }
}

// WithClientConfig lets callers adjust the REST client setup, e.g. to swap
// the HTTP transport.
func WithClientConfig(fn func(*firebase.Config)) Option {
	return func(o *sinkOptions) { o.clientConfig = fn }
}

// FirebaseSink owns the single client handle shared by every write. Writes
// run inline or on a bounded worker pool depending on config.
type FirebaseSink struct {
	config  types.FirebaseConfig
	logger  *logrus.Logger
	client  *firebase.Client
	breaker *circuit.Breaker
	pool    *workerpool.WorkerPool
	tracer  oteltrace.Tracer

	succeeded int64
	failed    int64
	dropped   int64

	isRunning bool
	mutex     sync.RWMutex
	closeOnce sync.Once
}

// SinkStats is a snapshot for the stats endpoint.
type SinkStats struct {
	URL       string                      `json:"url"`
	Async     bool                        `json:"async"`
	Running   bool                        `json:"running"`
	Succeeded int64                       `json:"succeeded"`
	Failed    int64                       `json:"failed"`
	Dropped   int64                       `json:"dropped"`
	Pool      *workerpool.WorkerPoolStats `json:"pool,omitempty"`
	Breaker   *circuit.Stats              `json:"circuit_breaker,omitempty"`
}

// NewFirebaseSink builds the client from config. Any error is a setup
// failure and must abort startup.
func NewFirebaseSink(config types.FirebaseConfig, logger *logrus.Logger, opts ...Option) (*FirebaseSink, error) {
	options := sinkOptions{tracer: otel.Tracer("firebase-output/sink")}
	for _, opt := range opts {
		opt(&options)
	}

	if config.URL == "" {
		return nil, apperrors.SetupError("new_sink", "firebase url is required")
	}

	ttl, refresh := config.AuthRefreshInterval()
	authData := config.AuthData
	if authData == nil {
		authData = map[string]interface{}{"uid": "firebase-output"}
	}

	fs := &FirebaseSink{
		config: config,
		logger: logger,
		tracer: options.tracer,
	}

	clientConfig := firebase.Config{
		URL:           config.URL,
		Secret:        config.Secret,
		AuthData:      authData,
		Timeout:       config.RequestTimeout(),
		MaxRetries:    config.MaxRetries(),
		AuthTTL:       ttl,
		AuthRefresh:   refresh,
		Silent:        config.Silent,
		RetryInterval: options.retryInterval,
	}
	if options.clientConfig != nil {
		options.clientConfig(&clientConfig)
	}

	client, err := firebase.NewClient(clientConfig, firebase.Hooks{
		Info: func(msg string, fields map[string]interface{}) {
			logger.WithFields(fields).Info(msg)
		},
		Error: func(err error, fields map[string]interface{}) {
			logger.WithFields(fields).WithError(err).Warn("Firebase request failed")
		},
		Retry: func(op types.Operation, attempt int, err error, wait time.Duration) {
			metrics.RecordRetry(op.Verb())
		},
		AuthRefresh: metrics.RecordAuthRefresh,
	})
	if err != nil {
		return nil, err
	}
	fs.client = client

	if config.CircuitBreaker.Enabled {
		timeout := 30 * time.Second
		if config.CircuitBreaker.Timeout != "" {
			d, err := time.ParseDuration(config.CircuitBreaker.Timeout)
			if err != nil {
				client.Close()
				return nil, apperrors.SetupError("new_sink", fmt.Sprintf("invalid circuit_breaker.timeout %q", config.CircuitBreaker.Timeout)).Wrap(err)
			}
			timeout = d
		}
		fs.breaker = circuit.NewBreaker(circuit.BreakerConfig{
			Name:             "firebase_sink",
			FailureThreshold: config.CircuitBreaker.FailureThreshold,
			SuccessThreshold: config.CircuitBreaker.SuccessThreshold,
			Timeout:          timeout,
			HalfOpenMaxCalls: 1,
		}, logger)
		fs.breaker.SetStateChangeCallback(func(from, to circuit.State) {
			metrics.SetCircuitBreakerState("firebase_sink", string(to))
		})
		metrics.SetCircuitBreakerState("firebase_sink", string(circuit.StateClosed))
	}

	if config.AsyncWrites() {
		perWrite := config.RequestTimeout() * time.Duration(config.MaxRetries()+1)
		fs.pool = workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{
			Name:            "firebase_writes",
			MaxWorkers:      config.Workers,
			QueueSize:       config.QueueSize,
			WorkerTimeout:   perWrite + 30*time.Second,
			ShutdownTimeout: perWrite + 5*time.Second,
		}, logger)
		if err := fs.pool.Start(); err != nil {
			client.Close()
			return nil, apperrors.SetupError("new_sink", "could not start write workers").Wrap(err)
		}
	}

	fs.isRunning = true

	logger.WithFields(logrus.Fields{
		"url":          config.URL,
		"timeout":      config.RequestTimeout(),
		"retries":      config.MaxRetries(),
		"auth_ttl":     ttl,
		"auth_refresh": refresh,
		"async":        config.AsyncWrites(),
	}).Info("Firebase sink initialized")

	return fs, nil
}

// URL returns the endpoint the sink writes to.
func (fs *FirebaseSink) URL() string {
	return fs.client.BaseURL()
}

// Write performs op at path and reports the outcome to onComplete, either
// before returning (sync mode) or later from a worker goroutine.
//
// The write is detached from ctx cancellation; ctx only contributes its
// trace span.
func (fs *FirebaseSink) Write(ctx context.Context, path string, op types.Operation, payload interface{}, onComplete types.CompletionFunc) {
	if onComplete == nil {
		onComplete = func(error) {}
	}

	fs.mutex.RLock()
	running := fs.isRunning
	fs.mutex.RUnlock()
	if !running {
		atomic.AddInt64(&fs.dropped, 1)
		onComplete(ErrSinkClosed)
		return
	}

	parent := oteltrace.SpanFromContext(ctx)

	if fs.pool == nil {
		onComplete(fs.execute(context.WithoutCancel(ctx), path, op, payload))
		return
	}

	err := fs.pool.SubmitTask(workerpool.Task{
		ID: uuid.NewString(),
		Execute: func(taskCtx context.Context) error {
			err := fs.execute(oteltrace.ContextWithSpan(taskCtx, parent), path, op, payload)
			onComplete(err)
			return err
		},
	})
	metrics.SetWriteQueueSize(fs.pool.GetStats().QueuedTasks)

	switch {
	case err == nil:
	case errors.Is(err, workerpool.ErrQueueFull):
		atomic.AddInt64(&fs.dropped, 1)
		metrics.RecordError("firebase_sink", "queue_full")
		onComplete(ErrQueueFull)
	default:
		atomic.AddInt64(&fs.dropped, 1)
		onComplete(ErrSinkClosed)
	}
}

func (fs *FirebaseSink) execute(ctx context.Context, path string, op types.Operation, payload interface{}) error {
	start := time.Now()

	ctx, span := fs.tracer.Start(ctx, "firebase.write", oteltrace.WithAttributes(
		attribute.String("firebase.verb", op.Verb()),
		attribute.String("firebase.path", path),
	))
	defer span.End()

	var err error
	if fs.breaker == nil {
		_, err = fs.client.Do(ctx, op, path, payload)
	} else {
		// Only transport failures count against the breaker.
		var writeErr error
		breakerErr := fs.breaker.Execute(func() error {
			_, writeErr = fs.client.Do(ctx, op, path, payload)
			if errors.Is(writeErr, apperrors.ErrTransientTransport) {
				return writeErr
			}
			return nil
		})
		err = writeErr
		if errors.Is(breakerErr, circuit.ErrOpen) {
			err = apperrors.New(apperrors.CodeWriterUnavailable, "firebase_sink", op.Verb(), "circuit breaker is open").Wrap(breakerErr)
		}
	}

	tracing.RecordError(span, err)
	if err != nil {
		atomic.AddInt64(&fs.failed, 1)
		code := "unknown"
		if appErr, ok := apperrors.AsAppError(err); ok {
			code = appErr.Code
		}
		metrics.RecordError("firebase_sink", code)
		metrics.RecordWrite(op.Verb(), "error", time.Since(start))
		return err
	}

	atomic.AddInt64(&fs.succeeded, 1)
	metrics.RecordWrite(op.Verb(), "success", time.Since(start))
	return nil
}

// RefreshAuth discards the current token so the next write signs a new one.
func (fs *FirebaseSink) RefreshAuth() {
	fs.client.RefreshAuth()
}

// Shutdown stops accepting writes, lets queued writes drain up to the pool's
// shutdown timeout, then invalidates the auth token and releases pooled
// connections. Only the first call has any effect.
func (fs *FirebaseSink) Shutdown() error {
	fs.closeOnce.Do(func() {
		fs.mutex.Lock()
		fs.isRunning = false
		fs.mutex.Unlock()

		if fs.pool != nil {
			if err := fs.pool.Stop(); err != nil {
				fs.logger.WithError(err).Warn("Pending Firebase writes did not finish before shutdown")
			}
		}

		fs.client.Close()

		fs.logger.WithFields(logrus.Fields{
			"url":       fs.config.URL,
			"succeeded": atomic.LoadInt64(&fs.succeeded),
			"failed":    atomic.LoadInt64(&fs.failed),
			"dropped":   atomic.LoadInt64(&fs.dropped),
		}).Info("Firebase sink stopped")
	})
	return nil
}

// Close implements types.Writer.
func (fs *FirebaseSink) Close() error {
	return fs.Shutdown()
}

// IsHealthy reports whether the sink accepts writes and the breaker, when
// enabled, is not open.
func (fs *FirebaseSink) IsHealthy() bool {
	fs.mutex.RLock()
	running := fs.isRunning
	fs.mutex.RUnlock()

	if !running {
		return false
	}
	return fs.breaker == nil || fs.breaker.State() != circuit.StateOpen
}

// GetStats returns write counters and, when present, pool and breaker state.
func (fs *FirebaseSink) GetStats() SinkStats {
	fs.mutex.RLock()
	running := fs.isRunning
	fs.mutex.RUnlock()

	stats := SinkStats{
		URL:       fs.config.URL,
		Async:     fs.pool != nil,
		Running:   running,
		Succeeded: atomic.LoadInt64(&fs.succeeded),
		Failed:    atomic.LoadInt64(&fs.failed),
		Dropped:   atomic.LoadInt64(&fs.dropped),
	}
	if fs.pool != nil {
		poolStats := fs.pool.GetStats()
		stats.Pool = &poolStats
	}
	if fs.breaker != nil {
		breakerStats := fs.breaker.GetStats()
		stats.Breaker = &breakerStats
	}
	return stats
}
