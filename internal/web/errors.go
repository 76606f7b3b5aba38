package web

// errors.go is the single exit for failed requests. The technical error is
// logged with the request id; the client gets the coded message from
// core.MapError inside the standard envelope.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/modreview/internal/core"
	"github.com/JonMunkholm/modreview/internal/logging"
	"github.com/JonMunkholm/modreview/internal/sheet"
)

var (
	// ErrFileTooLarge is returned when an upload exceeds the configured size.
	ErrFileTooLarge = errors.New("file too large")
	// ErrNoFile is returned when the multipart form has no file part.
	ErrNoFile = errors.New("no file provided")
)

// apiResponse is the envelope every API endpoint answers with.
type apiResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
	Action  string   `json:"action,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// respondError logs err and writes its user-facing form with status.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	resp := apiResponse{
		Message: msg.Message,
		Code:    msg.Code,
		Action:  msg.Action,
	}
	var missing *core.MissingColumnsError
	if errors.As(err, &missing) {
		resp.Errors = []string{missing.Error()}
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "15")
	}
	writeJSON(w, status, resp)
}

// statusFor classifies an import failure.
func statusFor(err error) int {
	var missing *core.MissingColumnsError
	switch {
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.As(err, &missing),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, core.ErrEmptyRoster),
		errors.Is(err, ErrNoFile),
		errors.Is(err, sheet.ErrUnsupportedFormat),
		errors.Is(err, sheet.ErrSignatureMismatch),
		errors.Is(err, sheet.ErrMalformed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
