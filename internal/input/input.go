// Package input provides the event sources the host can read from: JSON lines
// on stdin, JSON lines appended to a file, or JSON posted to the HTTP API.
package input

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"firebase-output/pkg/types"

	"github.com/sirupsen/logrus"
)

// New builds the input selected by config.
func New(config types.InputConfig, logger *logrus.Logger) (types.Input, error) {
	switch config.Type {
	case "", "stdin":
		return NewReaderInput("stdin", os.Stdin, logger), nil
	case "file":
		fi, err := NewFileInput(config, logger)
		if err != nil {
			return nil, err
		}
		return fi, nil
	case "http":
		return NewHTTPInput(DefaultHTTPBuffer, logger), nil
	default:
		return nil, fmt.Errorf("unsupported input type %q", config.Type)
	}
}

// DecodeEvent parses one JSON object into an Event. Numbers are kept as
// json.Number so large integers survive the round trip to the remote store.
func DecodeEvent(data []byte) (types.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return types.Event{}, fmt.Errorf("invalid event: %w", err)
	}
	if fields == nil {
		return types.Event{}, fmt.Errorf("invalid event: expected a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return types.Event{}, fmt.Errorf("invalid event: trailing data after object")
	}
	return types.NewEvent(fields), nil
}
