package firebase

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
)

// isTransient reports whether a request error qualifies for retry. Only I/O
// failures, system-call failures and timeouts do; remote rejections and
// request construction errors never reach this function as transient.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		err = urlErr.Err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
