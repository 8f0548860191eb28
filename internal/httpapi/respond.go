package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"

	"github.com/tendant/island-photos/internal/islands"
	"github.com/tendant/island-photos/internal/upload"
)

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		httplog.LogEntry(r.Context()).Error("request failed", httplog.ErrAttr(err))
		msg = "Internal server error"
	}
	writeError(w, r, status, msg)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorBody{Error: http.StatusText(status), Message: msg, StatusCode: status})
}

// classify maps domain errors to a status and a client-facing message.
func classify(err error) (int, string) {
	var rej *upload.RejectionError
	switch {
	case errors.As(err, &rej):
		return http.StatusBadRequest, rej.Detail
	case errors.Is(err, islands.ErrPhotoTooLarge):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, islands.ErrNotFound):
		return http.StatusNotFound, "Island not found"
	case errors.Is(err, islands.ErrConflict):
		return http.StatusConflict, "Island was modified concurrently, please retry"
	case errors.Is(err, islands.ErrInvalid),
		errors.Is(err, islands.ErrNoFields),
		errors.Is(err, islands.ErrEmptyQuery),
		errors.Is(err, islands.ErrThumbnailManaged),
		errors.Is(err, upload.ErrEmptyUpload),
		errors.As(err, new(*badRequestError)):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func logger(r *http.Request) *slog.Logger {
	return httplog.LogEntry(r.Context())
}
