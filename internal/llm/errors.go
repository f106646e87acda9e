package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	dbxerrors "dbxagent/internal/errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("model returned no content")

// APIError is a non-2xx answer from a model endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
	// RetryAfter is the parsed Retry-After header, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, body)
}

// HTTPStatus implements errors.StatusCoder.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// classify wraps err so retry decisions can rely on the transient/permanent
// markers instead of message sniffing.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		classified := dbxerrors.ClassifyHTTPStatus(apiErr.StatusCode, err)
		var transient *dbxerrors.TransientError
		if errors.As(classified, &transient) && apiErr.RetryAfter > 0 {
			transient.RetryAfter = int(apiErr.RetryAfter.Seconds())
		}
		return classified
	}
	if errors.Is(err, ErrEmptyResponse) {
		return dbxerrors.NewTransientError(err, "")
	}
	return err
}

func parseRetryAfter(header http.Header) time.Duration {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
