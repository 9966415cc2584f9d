package input

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"firebase-output/internal/metrics"
	"firebase-output/pkg/types"

	"github.com/sirupsen/logrus"
)

const maxLineSize = 4 * 1024 * 1024

// ReaderInput reads newline-delimited JSON objects from a reader.
type ReaderInput struct {
	name   string
	reader io.Reader
	logger *logrus.Logger

	lines   int64
	invalid int64

	closeOnce sync.Once
}

// NewReaderInput wraps r. name identifies the source in logs.
func NewReaderInput(name string, r io.Reader, logger *logrus.Logger) *ReaderInput {
	return &ReaderInput{name: name, reader: r, logger: logger}
}

// Events starts reading in the background. The channel is closed at EOF, on
// a read error or when ctx is done.
func (ri *ReaderInput) Events(ctx context.Context) (<-chan types.Event, error) {
	events := make(chan types.Event)

	go func() {
		defer close(events)

		scanner := bufio.NewScanner(ri.reader)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			atomic.AddInt64(&ri.lines, 1)

			event, err := DecodeEvent(line)
			if err != nil {
				atomic.AddInt64(&ri.invalid, 1)
				metrics.RecordError("input_"+ri.name, "decode")
				ri.logger.WithField("input", ri.name).WithError(err).Warn("Skipping undecodable line")
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			ri.logger.WithField("input", ri.name).WithError(err).Error("Input read failed")
			return
		}
		ri.logger.WithFields(logrus.Fields{
			"input":   ri.name,
			"lines":   atomic.LoadInt64(&ri.lines),
			"invalid": atomic.LoadInt64(&ri.invalid),
		}).Info("Input reached end of stream")
	}()

	return events, nil
}

// Close closes the underlying reader when it is closable.
func (ri *ReaderInput) Close() error {
	var err error
	ri.closeOnce.Do(func() {
		if closer, ok := ri.reader.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}
