package input

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"firebase-output/internal/metrics"
	"firebase-output/pkg/types"

	"github.com/sirupsen/logrus"
)

var errEmptyBody = errors.New("empty request body")

const (
	// DefaultHTTPBuffer is the number of accepted events held for the host.
	DefaultHTTPBuffer = 1024
	maxBodySize       = 10 * 1024 * 1024
)

// HTTPInput turns POSTed JSON into events. The body is a single object, an
// array of objects or newline-delimited objects.
type HTTPInput struct {
	logger *logrus.Logger
	events chan types.Event

	closed bool
	mutex  sync.RWMutex
}

// NewHTTPInput creates an input whose handler accepts up to buffer events
// ahead of the host.
func NewHTTPInput(buffer int, logger *logrus.Logger) *HTTPInput {
	if buffer <= 0 {
		buffer = DefaultHTTPBuffer
	}
	return &HTTPInput{
		logger: logger,
		events: make(chan types.Event, buffer),
	}
}

// Events returns the channel fed by the handler. It is closed by Close.
func (hi *HTTPInput) Events(ctx context.Context) (<-chan types.Event, error) {
	go func() {
		<-ctx.Done()
		_ = hi.Close()
	}()
	return hi.events, nil
}

// ServeHTTP implements the ingest endpoint.
func (hi *HTTPInput) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "failed to read body"})
		return
	}
	if len(body) > maxBodySize {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{"error": "body too large"})
		return
	}

	events, err := decodeBody(body)
	if err != nil {
		metrics.RecordError("input_http", "decode")
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	hi.mutex.RLock()
	defer hi.mutex.RUnlock()

	if hi.closed {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "input is closed"})
		return
	}

	accepted := 0
	for _, event := range events {
		select {
		case hi.events <- event:
			accepted++
		default:
			hi.logger.WithFields(logrus.Fields{
				"accepted": accepted,
				"received": len(events),
			}).Warn("HTTP input buffer full, rejecting remaining events")
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"accepted": accepted,
				"error":    "event buffer full",
			})
			return
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": accepted})
}

// Close stops accepting events and closes the channel.
func (hi *HTTPInput) Close() error {
	hi.mutex.Lock()
	defer hi.mutex.Unlock()

	if !hi.closed {
		hi.closed = true
		close(hi.events)
	}
	return nil
}

func decodeBody(body []byte) ([]types.Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errEmptyBody
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		events := make([]types.Event, 0, len(raw))
		for _, item := range raw {
			event, err := DecodeEvent(item)
			if err != nil {
				return nil, err
			}
			events = append(events, event)
		}
		return events, nil
	}

	if event, err := DecodeEvent(trimmed); err == nil {
		return []types.Event{event}, nil
	}

	var events []types.Event
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		event, err := DecodeEvent(line)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
