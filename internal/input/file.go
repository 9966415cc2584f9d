package input

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"firebase-output/internal/metrics"
	"firebase-output/pkg/types"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"
)

// FileInput follows a file of JSON lines, surviving rotation.
type FileInput struct {
	config types.InputConfig
	logger *logrus.Logger

	tailer    *tail.Tail
	mutex     sync.Mutex
	closeOnce sync.Once
}

// NewFileInput validates config; the file itself may not exist yet.
func NewFileInput(config types.InputConfig, logger *logrus.Logger) (*FileInput, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("file input requires a path")
	}
	return &FileInput{config: config, logger: logger}, nil
}

// Events starts tailing. Unless from_head is set, only lines appended after
// the call are read.
func (fi *FileInput) Events(ctx context.Context) (<-chan types.Event, error) {
	tailConfig := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      fi.config.Poll,
		Logger:    tail.DiscardingLogger,
	}
	if !fi.config.FromHead {
		tailConfig.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(fi.config.Path, tailConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to tail %s: %w", fi.config.Path, err)
	}

	fi.mutex.Lock()
	fi.tailer = t
	fi.mutex.Unlock()

	fi.logger.WithFields(logrus.Fields{
		"path":      fi.config.Path,
		"from_head": fi.config.FromHead,
		"poll":      fi.config.Poll,
	}).Info("File input started")

	events := make(chan types.Event)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-t.Lines:
				if !ok {
					if err := t.Err(); err != nil {
						fi.logger.WithError(err).WithField("path", fi.config.Path).Error("File input stopped")
					}
					return
				}
				if line.Err != nil {
					fi.logger.WithError(line.Err).WithField("path", fi.config.Path).Warn("Tail error")
					continue
				}
				text := strings.TrimSpace(line.Text)
				if text == "" {
					continue
				}

				event, err := DecodeEvent([]byte(text))
				if err != nil {
					metrics.RecordError("input_file", "decode")
					fi.logger.WithError(err).WithFields(logrus.Fields{
						"path": fi.config.Path,
						"line": line.Num,
					}).Warn("Skipping undecodable line")
					continue
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Close stops the tailer and releases its inotify watch.
func (fi *FileInput) Close() error {
	var err error
	fi.closeOnce.Do(func() {
		fi.mutex.Lock()
		t := fi.tailer
		fi.mutex.Unlock()

		if t == nil {
			return
		}
		err = t.Stop()
		t.Cleanup()
	})
	return err
}
