// Package api holds the JSON envelope shared by every endpoint and the
// mapping from error kinds to HTTP status codes.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/greenledger/greenledger/pkg/db"
)

var (
	// ErrBadRequest marks errors caused by caller input.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthenticated is returned when no caller identity is available.
	ErrUnauthenticated = errors.New("authentication required")
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

type badRequest struct {
	err error
}

func (e badRequest) Error() string { return e.err.Error() }

func (e badRequest) Unwrap() []error { return []error{ErrBadRequest, e.err} }

// BadRequest marks err as an input error while keeping its message and
// chain intact.
func BadRequest(err error) error {
	if err == nil || errors.Is(err, ErrBadRequest) {
		return err
	}
	return badRequest{err: err}
}

// BadRequestf formats an input error.
func BadRequestf(format string, args ...any) error {
	return BadRequest(fmt.Errorf(format, args...))
}

// WriteResult writes a success envelope.
func WriteResult(w http.ResponseWriter, status int, result any) {
	writeJSON(w, status, Envelope{Success: true, Result: result})
}

// WriteError maps err to a status code and writes a failure envelope.
// Internal and dependency failures are logged in full and answered with a
// fixed message.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	status, msg := ErrorResponse(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
	case http.StatusServiceUnavailable:
		logger.Warn("dependency failure", "error", err)
	}
	writeJSON(w, status, Envelope{Success: false, Error: msg})
}

// ErrorResponse returns the status code and client-facing message for err.
func ErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, db.ErrInvalidPageToken):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, ErrUnauthenticated.Error()
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, db.ErrDependency):
		return http.StatusServiceUnavailable, "temporarily unavailable, please retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// maxBodyBytes bounds request bodies; every payload here is a small object.
const maxBodyBytes = 1 << 20

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// trailing data. Failures are input errors.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return BadRequestf("request body is required")
		}
		return BadRequestf("invalid request body: %v", err)
	}
	if dec.More() {
		return BadRequestf("invalid request body: trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
