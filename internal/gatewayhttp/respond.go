package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/raidcore/raidcore/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}

// writeAPIError maps an apierr.Error's taxonomy class to an HTTP status:
// Invalid to 400, Policy to 403, Transient to 503, Fatal to 500, with two
// per-code overrides (SessionNotFound to 404, RateLimited to 429 with a
// computed Retry-After header).
func writeAPIError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Internal", err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch apiErr.Class {
	case apierr.ClassInvalid:
		status = http.StatusBadRequest
	case apierr.ClassPolicy:
		status = http.StatusForbidden
		if apiErr.Code == "RateLimited" {
			status = http.StatusTooManyRequests
		}
	case apierr.ClassTransient:
		status = http.StatusServiceUnavailable
	case apierr.ClassFatal:
		status = http.StatusInternalServerError
	}

	// SessionNotFound shares the Invalid taxonomy class but should read as
	// a 404 to API clients rather than a generic 400.
	if apiErr.Code == "SessionNotFound" {
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", msToSeconds(apiErr.RetryAfter))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":      apiErr.Code,
		"error":     apiErr.Message,
		"retriable": apiErr.Retriable,
	})
}

func msToSeconds(ms int64) string {
	secs := ms / 1000
	if secs <= 0 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
