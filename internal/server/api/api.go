// Package api provides HTTP API handlers for the snapview camera.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/snapview/internal/app"
	"github.com/ayusman/snapview/internal/picture"
	"github.com/ayusman/snapview/internal/session"
	"github.com/ayusman/snapview/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure maps a camera or store error to a status code.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotOpen),
		errors.Is(err, session.ErrNoSurface),
		errors.Is(err, session.ErrSingleCamera),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, app.ErrCapturePending),
		errors.Is(err, app.ErrNoPending):
		return http.StatusConflict
	case errors.Is(err, app.ErrNoStore),
		errors.Is(err, session.ErrNoCamera),
		errors.Is(err, session.ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, picture.ErrUnknownFormat),
		errors.Is(err, app.ErrInvalidRotation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// allow rejects requests whose method is not method.
func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
