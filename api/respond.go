package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sendloop/courier"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, msg string) {
	a.respond(w, status, errorResponse{Error: msg})
}

// fail maps sentinel and validation errors to HTTP status codes.
func (a *API) fail(w http.ResponseWriter, err error) {
	var verr *courier.ValidationError
	switch {
	case errors.As(err, &verr):
		a.respondError(w, http.StatusUnprocessableEntity, verr.Error())
	case isNotFound(err):
		a.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, courier.ErrInvalidState):
		a.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, courier.ErrServiceClosed):
		a.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.logger.Error("request failed", slog.String("error", err.Error()))
		a.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, courier.ErrJobNotFound) ||
		errors.Is(err, courier.ErrQueueNotFound) ||
		errors.Is(err, courier.ErrDLQNotFound) ||
		errors.Is(err, courier.ErrAlertNotFound)
}
