// Package httputil centralizes JSON response writing and domain error
// translation for HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "driftwatch/pkg/domain-errors"
)

var codeStatus = map[dErrors.Code]int{
	dErrors.CodeBadRequest:  http.StatusBadRequest,
	dErrors.CodeNotFound:    http.StatusNotFound,
	dErrors.CodeUnavailable: http.StatusServiceUnavailable,
	dErrors.CodeInternal:    http.StatusInternalServerError,
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP error response. Internal
// errors omit the description so infrastructure detail never leaks to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body["error_description"] = de.Message
		}
	}
	WriteJSON(w, status, body)
}
