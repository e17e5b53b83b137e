package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsCallerCancel reports whether err is a plain context cancellation, which
// says nothing about the health of the remote service.
func IsCallerCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTransient reports whether err looks like a network-level failure:
// timeouts, refused or reset connections and DNS errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Client libraries sometimes flatten the cause into the message.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
