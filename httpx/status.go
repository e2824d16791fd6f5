package httpx

import "net/http"

const (
	StatusOK              = http.StatusOK                  // Relayed upstream body
	StatusNoContent       = http.StatusNoContent           // Preflight and empty replies
	StatusBadRequest      = http.StatusBadRequest          // Malformed inbound request
	StatusNotFound        = http.StatusNotFound            // Unknown route
	StatusTooManyRequests = http.StatusTooManyRequests     // Upstream rate limit
	StatusInternalError   = http.StatusInternalServerError // Any fetch failure
)
