// Package handler provides the HTTP handlers of the points API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"loyalty-points/internal/auth"
	"loyalty-points/internal/pkg/lock"
	"loyalty-points/internal/service"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

var errForbidden = errors.New("not allowed to access another user's points")

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: status < 400, Message: message})
}

// writeError maps service errors onto status codes. Unknown errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusInternalServerError:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeMessage(w, status, "internal server error")
		return
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Request timed out")
		writeMessage(w, status, "request timed out, try again later")
		return
	case errors.Is(err, context.Canceled):
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Request cancelled")
		writeMessage(w, status, "request cancelled")
		return
	}
	writeJSON(w, status, Response{Success: false, Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrMissingUserID),
		errors.Is(err, service.ErrInvalidTimeRange),
		errors.Is(err, service.ErrInvalidConfig),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrConfigNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrBadgeNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateScenario),
		errors.Is(err, service.ErrDuplicateBadge):
		return http.StatusConflict
	case errors.Is(err, service.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lock.ErrLockTimeout), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("invalid " + key)
	}
	return n, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id")
	}
	return id, nil
}

// authorizeUser allows callers to act on their own points; admins may act
// on anyone's.
func authorizeUser(r *http.Request, userID string) error {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.ErrMissingToken
	}
	if p.UserID != userID && !p.IsAdmin() {
		return errForbidden
	}
	return nil
}
