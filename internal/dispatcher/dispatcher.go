// Package dispatcher turns inbound events into remote writes.
//
// For every event the dispatcher:
//   - ignores the pipeline's shutdown sentinel
//   - resolves the configured path template and validates the result as a
//     relative URI reference (INVALID_PATH otherwise)
//   - resolves the verb template to one of put, patch, post or delete
//     (INVALID_OPERATION otherwise)
//   - extracts the payload: nothing for delete, the target field when one is
//     configured, the whole event when none is
//   - hands the write to a types.Writer together with a completion callback
//     that logs failures
//
// Rejected events are logged once and dropped; no write is attempted. The
// dispatcher holds no per-event state and is safe for concurrent use.
//
// Example usage:
//
//	d, err := dispatcher.New(cfg.Firebase, sink, logger)
//	if err != nil {
//		return err
//	}
//	_ = d.Dispatch(ctx, event)
package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"firebase-output/internal/metrics"
	apperrors "firebase-output/pkg/errors"
	"firebase-output/pkg/template"
	"firebase-output/pkg/tracing"
	"firebase-output/pkg/types"
	"firebase-output/pkg/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ResolvedWrite is the write derived from one event.
type ResolvedWrite struct {
	Path      string
	Operation types.Operation
	Payload   interface{}
}

// CompletionObserver is told about the outcome of every write the dispatcher
// hands to the writer. It runs on whatever goroutine completes the write.
type CompletionObserver func(write ResolvedWrite, err error)

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

// WithCompletionObserver registers fn to observe write outcomes in addition
// to the built-in failure logging.
func WithCompletionObserver(fn CompletionObserver) Option {
	return func(d *Dispatcher) { d.observer = fn }
}

// Dispatcher resolves events against compiled path and verb templates and
// forwards the result to a writer.
type Dispatcher struct {
	writer types.Writer
	logger *logrus.Logger
	tracer oteltrace.Tracer

	url    string
	path   *template.Template
	verb   *template.Template
	target string

	observer CompletionObserver
}

// New compiles the path and verb templates from config. A template with a
// malformed field reference is a setup failure.
func New(config types.FirebaseConfig, writer types.Writer, logger *logrus.Logger, opts ...Option) (*Dispatcher, error) {
	if writer == nil {
		return nil, apperrors.SetupError("new_dispatcher", "writer is required")
	}

	pathTemplate, err := template.Compile(config.Path)
	if err != nil {
		return nil, apperrors.SetupError("compile_path", err.Error()).Wrap(err)
	}

	verb := config.Verb
	if verb == "" {
		verb = types.DefaultVerb
	}
	verbTemplate, err := template.Compile(verb)
	if err != nil {
		return nil, apperrors.SetupError("compile_verb", err.Error()).Wrap(err)
	}

	if config.Target != "" {
		if _, err := types.ParseFieldRef(config.Target); err != nil {
			return nil, apperrors.SetupError("parse_target", err.Error()).Wrap(err)
		}
	}

	d := &Dispatcher{
		writer: writer,
		logger: logger,
		tracer: otel.Tracer("firebase-output/dispatcher"),
		url:    config.URL,
		path:   pathTemplate,
		verb:   verbTemplate,
		target: config.Target,
	}
	for _, opt := range opts {
		opt(d)
	}

	if verbTemplate.IsStatic() {
		if _, ok := types.ParseOperation(verb); !ok {
			logger.WithField("verb", verb).Warn("Configured verb is not a supported operation; every event will be rejected")
		}
	}

	logger.WithFields(logrus.Fields{
		"path":        pathTemplate.String(),
		"path_fields": pathTemplate.Fields(),
		"verb":        verbTemplate.String(),
		"verb_fields": verbTemplate.Fields(),
	}).Debug("Dispatcher templates compiled")

	return d, nil
}

// Resolve derives the write for event without performing it. The returned
// error is an *errors.AppError coded INVALID_PATH or INVALID_OPERATION.
func (d *Dispatcher) Resolve(event types.Event) (ResolvedWrite, error) {
	path, err := d.path.Resolve(event)
	if err != nil {
		return ResolvedWrite{}, apperrors.InvalidPathError(d.path.String(), "path template could not be resolved").Wrap(err)
	}
	if err := validation.ValidateDatabasePath(path); err != nil {
		return ResolvedWrite{Path: path}, apperrors.InvalidPathError(path, err.Error())
	}

	verb, err := d.verb.Resolve(event)
	if err != nil {
		return ResolvedWrite{Path: path}, apperrors.InvalidOperationError(d.verb.String(), "verb template could not be resolved").Wrap(err)
	}
	op, ok := types.ParseOperation(verb)
	if !ok {
		return ResolvedWrite{Path: path}, apperrors.InvalidOperationError(verb, fmt.Sprintf("unsupported verb %q, expected put, patch, post or delete", verb))
	}

	return ResolvedWrite{
		Path:      path,
		Operation: op,
		Payload:   d.payload(event, op),
	}, nil
}

func (d *Dispatcher) payload(event types.Event, op types.Operation) interface{} {
	if op == types.Delete {
		return nil
	}
	if d.target == "" {
		return event.Fields
	}
	value, ok := event.Get(d.target)
	if !ok {
		return nil
	}
	return value
}

// Dispatch handles one event. Validation failures are logged, counted and
// returned; the event is dropped and the writer is never called. Write
// failures are reported later through the completion callback and never
// returned here.
func (d *Dispatcher) Dispatch(ctx context.Context, event types.Event) error {
	if event.IsShutdown() {
		metrics.RecordEvent("skipped")
		return nil
	}

	dispatchID := uuid.NewString()
	ctx, span := d.tracer.Start(ctx, "firebase.dispatch", oteltrace.WithAttributes(
		attribute.String("dispatch.id", dispatchID),
	))
	defer span.End()

	write, err := d.Resolve(event)
	if err != nil {
		d.reject(ctx, dispatchID, write, err)
		tracing.RecordError(span, err)
		return err
	}

	span.SetAttributes(
		attribute.String("firebase.verb", write.Operation.Verb()),
		attribute.String("firebase.path", write.Path),
	)

	fields := logrus.Fields{
		"dispatch_id": dispatchID,
		"url":         d.url,
		"verb":        write.Operation.Verb(),
		"path":        write.Path,
	}
	d.logger.WithFields(fields).WithFields(tracing.LogFields(ctx)).Debug("Dispatching write")
	metrics.RecordEvent("dispatched")

	d.writer.Write(ctx, write.Path, write.Operation, write.Payload, func(err error) {
		if err != nil {
			entry := d.logger.WithFields(fields).WithError(err)
			if appErr, ok := apperrors.AsAppError(err); ok {
				entry = entry.WithField("error_code", appErr.Code)
			}
			entry.Error("Firebase write failed")
		}
		if d.observer != nil {
			d.observer(write, err)
		}
	})

	return nil
}

func (d *Dispatcher) reject(ctx context.Context, dispatchID string, write ResolvedWrite, err error) {
	fields := logrus.Fields{
		"dispatch_id": dispatchID,
		"url":         d.url,
		"verb":        d.verb.String(),
		"path":        d.path.String(),
	}
	if write.Path != "" {
		fields["path"] = write.Path
	}

	reason := "unknown"
	if appErr, ok := apperrors.AsAppError(err); ok {
		reason = strings.ToLower(appErr.Code)
		fields["error_code"] = appErr.Code
		if verb, ok := appErr.Metadata["verb"]; ok {
			fields["verb"] = verb
		}
	}
	metrics.RecordRejected(reason)

	d.logger.WithFields(fields).WithFields(tracing.LogFields(ctx)).WithError(err).Error("Event rejected")
}
