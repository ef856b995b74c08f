package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"youapp/internal/logging"
)

const maxBodyBytes = 1 << 20

var errBadRequestBody = errors.New("invalid request body")

const (
	msgBadRequestBody = "Invalid request body."
	msgServerError    = "Server error."
	msgUserNotFound   = "User not found."
)

type messageResponse struct {
	Message string `json:"message"`
}

type authResponse struct {
	Auth        bool   `json:"auth"`
	AccessToken string `json:"access_token,omitempty"`
	Message     string `json:"message,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	r.writeJSON(ctx, w, status, messageResponse{Message: message})
}

// serverError logs err and answers with a generic 500 body.
func (r responder) serverError(ctx context.Context, w http.ResponseWriter, message string, err error) {
	r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err)
	r.writeMessage(ctx, w, http.StatusInternalServerError, message)
}

func (r responder) decode(w http.ResponseWriter, req *http.Request, dst any) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		return errBadRequestBody
	}
	return nil
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}
