package genie

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimeout matches a wait that ran out of budget before a terminal status.
	ErrTimeout = errors.New("genie query timed out")
	// ErrQueryFailed matches a message the service reported as FAILED.
	ErrQueryFailed = errors.New("genie query failed")
)

// APIError is a non-2xx answer from the Genie REST API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("genie %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// HTTPStatus implements errors.StatusCoder.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// TimeoutError reports that a message was still running when the wait budget
// was exhausted.
type TimeoutError struct {
	MessageID  string
	Timeout    time.Duration
	LastStatus Status
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("genie query timed out after %v (message %s, last status %s)", e.Timeout, e.MessageID, e.LastStatus)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// QueryFailedError carries the remote error text of a FAILED message.
type QueryFailedError struct {
	MessageID string
	Reason    string
}

func (e *QueryFailedError) Error() string {
	return "genie query failed: " + e.Reason
}

func (e *QueryFailedError) Is(target error) bool {
	return target == ErrQueryFailed
}
