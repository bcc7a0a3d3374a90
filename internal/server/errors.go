package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sternrassler/registry-gateway/pkg/companieshouse"
	"github.com/Sternrassler/registry-gateway/pkg/logging"
)

// ValidationFailedMessage is the message of a 400 validation response.
const ValidationFailedMessage = "❌ Request validation failed"

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Message string                      `json:"message"`
	Status  int                         `json:"status"`
	Errors  []companieshouse.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message, Status: status})
}

// handleError answers a failed handler. Upstream failures keep their
// status and message; anything else is a 500.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context(), s.logger)

	var serviceErr *companieshouse.ExternalServiceError
	if errors.As(err, &serviceErr) {
		logger.Error().
			Err(err).
			Str("service", serviceErr.Service).
			Int("status", serviceErr.StatusCode()).
			Interface("details", serviceErr.Details).
			Msg("External service error")

		status := serviceErr.StatusCode()
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		writeError(w, status, serviceErr.Message)
		return
	}

	logger.Error().Err(err).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Not Found")
}

// recoverer turns a panicking handler into a 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger := logging.FromContext(r.Context(), s.logger)
				logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("Handler panicked")
				writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
