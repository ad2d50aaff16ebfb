package engine

import (
	"errors"
	"fmt"
)

// ErrCode is a typed error code enum for the engine's failure taxonomy.
type ErrCode string

const (
	// ErrExamLocked means the exam refused entry; no session was created.
	ErrExamLocked ErrCode = "EXAM_LOCKED"
	// ErrLoadFailed means the exam or session could not be fetched.
	ErrLoadFailed ErrCode = "LOAD_FAILED"
	// ErrNoAnswers means submission was attempted with zero answered
	// questions. Recoverable: the session stays Active.
	ErrNoAnswers ErrCode = "NO_ANSWERS"
	// ErrSubmitTimeout means the completion call exhausted its retry
	// budget on timeouts or connection drops. Recoverable.
	ErrSubmitTimeout ErrCode = "SUBMIT_TIMEOUT"
	// ErrSubmitRejected means the server rejected completion with a 4xx.
	ErrSubmitRejected ErrCode = "SUBMIT_REJECTED"
	// ErrSubmitServerError means the server failed with a 5xx. Treated as
	// blocking: the UI layer must not keep hammering the endpoint.
	ErrSubmitServerError ErrCode = "SUBMIT_SERVER_ERROR"
)

// Error is a classified engine failure.
type Error struct {
	Code ErrCode
	// RejectionCode carries the server's error code for ErrSubmitRejected.
	RejectionCode string
	Err           error
}

func (e *Error) Error() string {
	if e.RejectionCode != "" {
		return fmt.Sprintf("engine: %s (%s): %v", e.Code, e.RejectionCode, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("engine: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("engine: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the engine error code, or "" for unclassified errors.
func CodeOf(err error) ErrCode {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.Code
	}
	return ""
}

// Recoverable reports whether the user may retry after this failure.
// Only a server fault blocks further retries from the caller's side.
func Recoverable(err error) bool {
	return CodeOf(err) != ErrSubmitServerError
}

// ErrSubmitInProgress is returned to submit callers that lost the latch
// race. Losing the race is not a failure; the submission is underway.
var ErrSubmitInProgress = errors.New("engine: submit already in progress")

// ErrNotActive is returned for mutations outside the Active state.
var ErrNotActive = errors.New("engine: session is not active")
