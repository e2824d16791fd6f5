package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError reports a non-success HTTP status from the upstream API.
type UpstreamError struct {
	URL    string
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: GET %s: status %d", e.URL, e.Status)
}

// DecodeError reports an upstream body that is not valid JSON.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("upstream: GET %s: decode body: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure that happened before any status
// was received. It is never retried.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("upstream: GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode returns the upstream status carried by err, or 0 when err is not
// an UpstreamError.
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status
	}
	return 0
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}
