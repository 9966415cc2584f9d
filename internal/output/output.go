// Package output wires the Firebase sink and the event dispatcher into the
// lifecycle a pipeline host drives: Start once, Handle per event, Stop once.
package output

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"firebase-output/internal/dispatcher"
	"firebase-output/internal/metrics"
	"firebase-output/internal/sinks"
	apperrors "firebase-output/pkg/errors"
	"firebase-output/pkg/secrets"
	"firebase-output/pkg/types"

	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Option customizes a FirebaseOutput.
type Option func(*FirebaseOutput)

// WithTracer sets the tracer handed to both the sink and the dispatcher.
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(o *FirebaseOutput) { o.tracer = tracer }
}

// WithSinkOptions forwards options to the sink built by Start.
func WithSinkOptions(opts ...sinks.Option) Option {
	return func(o *FirebaseOutput) { o.sinkOpts = append(o.sinkOpts, opts...) }
}

// FirebaseOutput implements types.Output.
type FirebaseOutput struct {
	config   types.FirebaseConfig
	logger   *logrus.Logger
	tracer   oteltrace.Tracer
	sinkOpts []sinks.Option

	sink       *sinks.FirebaseSink
	dispatcher *dispatcher.Dispatcher

	dispatched int64
	rejected   int64
	skipped    int64
	succeeded  int64
	failed     int64

	lastError     string
	lastErrorTime time.Time

	started  bool
	stopped  bool
	mutex    sync.RWMutex
	stopOnce sync.Once
}

// New returns an output that has not been started yet.
func New(config types.FirebaseConfig, logger *logrus.Logger, opts ...Option) *FirebaseOutput {
	o := &FirebaseOutput{
		config: config,
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start creates the client handle and compiles the templates. Any error is a
// setup failure; nothing is left running when it is returned.
func (o *FirebaseOutput) Start(ctx context.Context) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.started {
		return nil
	}

	sinkOpts := o.sinkOpts
	var dispatcherOpts []dispatcher.Option
	if o.tracer != nil {
		sinkOpts = append([]sinks.Option{sinks.WithTracer(o.tracer)}, sinkOpts...)
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithTracer(o.tracer))
	}
	dispatcherOpts = append(dispatcherOpts, dispatcher.WithCompletionObserver(o.observe))

	sinkConfig := o.config
	secret, err := secrets.NewResolver(o.logger).Resolve(ctx, sinkConfig.Secret)
	if err != nil {
		metrics.SetComponentHealth("output", "firebase", false)
		return apperrors.SetupError("resolve_secret", "could not resolve firebase secret").Wrap(err)
	}
	sinkConfig.Secret = secret

	sink, err := sinks.NewFirebaseSink(sinkConfig, o.logger, sinkOpts...)
	if err != nil {
		metrics.SetComponentHealth("output", "firebase", false)
		return err
	}

	d, err := dispatcher.New(o.config, sink, o.logger, dispatcherOpts...)
	if err != nil {
		_ = sink.Shutdown()
		metrics.SetComponentHealth("output", "firebase", false)
		return err
	}

	o.sink = sink
	o.dispatcher = d
	o.started = true
	metrics.SetComponentHealth("output", "firebase", true)

	o.logger.WithFields(logrus.Fields{
		"url":    o.config.URL,
		"path":   o.config.Path,
		"verb":   o.config.Verb,
		"target": o.config.Target,
	}).Info("Firebase output started")

	return nil
}

// Handle dispatches one event. Rejections and write failures are logged and
// counted; they never surface to the caller.
func (o *FirebaseOutput) Handle(ctx context.Context, event types.Event) {
	o.mutex.RLock()
	d := o.dispatcher
	active := o.started && !o.stopped
	o.mutex.RUnlock()

	if event.IsShutdown() {
		atomic.AddInt64(&o.skipped, 1)
		if d != nil {
			_ = d.Dispatch(ctx, event)
		}
		return
	}

	if !active {
		atomic.AddInt64(&o.skipped, 1)
		o.logger.Warn("Firebase output is not running, event dropped")
		return
	}

	if err := d.Dispatch(ctx, event); err != nil {
		atomic.AddInt64(&o.rejected, 1)
		o.recordError(err)
		return
	}
	atomic.AddInt64(&o.dispatched, 1)
}

func (o *FirebaseOutput) observe(_ dispatcher.ResolvedWrite, err error) {
	if err != nil {
		atomic.AddInt64(&o.failed, 1)
		o.recordError(err)
		return
	}
	atomic.AddInt64(&o.succeeded, 1)
}

func (o *FirebaseOutput) recordError(err error) {
	o.mutex.Lock()
	o.lastError = err.Error()
	o.lastErrorTime = time.Now()
	o.mutex.Unlock()
}

// Stop shuts the sink down once. Writes already queued are drained first.
func (o *FirebaseOutput) Stop() error {
	var err error
	o.stopOnce.Do(func() {
		o.mutex.Lock()
		o.stopped = true
		sink := o.sink
		o.mutex.Unlock()

		if sink != nil {
			err = sink.Shutdown()
		}
		metrics.SetComponentHealth("output", "firebase", false)

		stats := o.Stats()
		o.logger.WithFields(logrus.Fields{
			"dispatched": stats.Dispatched,
			"rejected":   stats.Rejected,
			"skipped":    stats.Skipped,
			"succeeded":  stats.Succeeded,
			"failed":     stats.Failed,
		}).Info("Firebase output stopped")
	})
	return err
}

// Stats returns a snapshot of the output counters.
func (o *FirebaseOutput) Stats() types.OutputStats {
	o.mutex.RLock()
	lastError := o.lastError
	lastErrorTime := o.lastErrorTime
	o.mutex.RUnlock()

	return types.OutputStats{
		Dispatched:    atomic.LoadInt64(&o.dispatched),
		Rejected:      atomic.LoadInt64(&o.rejected),
		Skipped:       atomic.LoadInt64(&o.skipped),
		Succeeded:     atomic.LoadInt64(&o.succeeded),
		Failed:        atomic.LoadInt64(&o.failed),
		LastError:     lastError,
		LastErrorTime: lastErrorTime,
	}
}

// SinkStats returns the sink snapshot, or false before Start.
func (o *FirebaseOutput) SinkStats() (sinks.SinkStats, bool) {
	o.mutex.RLock()
	sink := o.sink
	o.mutex.RUnlock()

	if sink == nil {
		return sinks.SinkStats{}, false
	}
	return sink.GetStats(), true
}

// RefreshAuth forces a new auth token on the next write.
func (o *FirebaseOutput) RefreshAuth() {
	o.mutex.RLock()
	sink := o.sink
	o.mutex.RUnlock()

	if sink != nil {
		sink.RefreshAuth()
	}
}

// IsHealthy reports whether the output is started, not stopped and its sink
// accepts writes.
func (o *FirebaseOutput) IsHealthy() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return o.started && !o.stopped && o.sink != nil && o.sink.IsHealthy()
}
