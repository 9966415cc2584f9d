// Package types - Interface definitions for pluggable components
package types

import (
	"context"
)

// CompletionFunc receives the outcome of a remote write. A nil error means
// the write succeeded. It may be invoked on the caller's goroutine or on a
// worker goroutine owned by the writer.
type CompletionFunc func(err error)

// Writer is the capability set the dispatcher needs from the remote client.
//
// Implementations own retries, timeouts and credential refresh; callers only
// choose the path, operation and payload.
type Writer interface {
	// Write applies op at path with payload and reports the outcome to onComplete.
	Write(ctx context.Context, path string, op Operation, payload interface{}, onComplete CompletionFunc)
	// RefreshAuth discards the current credential so the next write generates a new one.
	RefreshAuth()
	// Close invalidates the credential and releases pooled resources.
	Close() error
}

// Output defines the lifecycle a pipeline host drives for an output stage.
type Output interface {
	// Start performs setup; an error aborts the output stage.
	Start(ctx context.Context) error
	// Handle forwards one event. It never fails the pipeline.
	Handle(ctx context.Context, event Event)
	// Stop tears the output down. Called once after the last Handle.
	Stop() error
}

// Input produces events for the host until ctx is cancelled or the source is
// exhausted, after which the returned channel is closed.
type Input interface {
	Events(ctx context.Context) (<-chan Event, error)
	Close() error
}
