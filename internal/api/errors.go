package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error is a structured failure returned by the backend. Status carries the
// HTTP status; Code and Message come from the response envelope.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("api: status %d (%s)", e.Status, e.Code)
}

// ErrSessionNotFound is returned by GetSession when the student has no
// session for the exam yet.
var ErrSessionNotFound = errors.New("api: session not found")

// Rejection reports whether err is a server rejection (4xx). Rejections are
// never retried; the input will not become valid by resending it.
func Rejection(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return apiErr, true
	}
	return nil, false
}

// ServerFault reports whether err is a server-side failure (5xx).
func ServerFault(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}

// Timeout reports whether err is a deadline or network timeout. Timeouts
// are transient and retried within the shared budget.
func Timeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
