package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"youapp/internal/profile"
)

type AuthHandler struct {
	profiles  *profile.Service
	responder responder
}

func NewAuthHandler(profiles *profile.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{profiles: profiles, responder: newResponder(logger)}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in profile.RegisterInput
	if err := h.responder.decode(w, r, &in); err != nil {
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, msgBadRequestBody)
		return
	}

	_, err := h.profiles.Register(ctx, in)
	switch {
	case err == nil:
		h.responder.writeMessage(ctx, w, http.StatusCreated, "User registered successfully!")
	case errors.Is(err, profile.ErrUserExists):
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, "User already exists.")
	case errors.Is(err, profile.ErrInvalidInput):
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), profile.ErrInvalidInput.Error()+": "))
	default:
		h.responder.serverError(ctx, w, msgServerError, err)
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in loginRequest
	if err := h.responder.decode(w, r, &in); err != nil {
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, msgBadRequestBody)
		return
	}

	token, err := h.profiles.Login(ctx, in.Email, in.Password)
	switch {
	case err == nil:
		h.responder.writeJSON(ctx, w, http.StatusOK, authResponse{Auth: true, AccessToken: token})
	case errors.Is(err, profile.ErrInvalidCredentials):
		h.responder.writeJSON(ctx, w, http.StatusUnauthorized, authResponse{Auth: false, Message: "Invalid credentials"})
	default:
		h.responder.serverError(ctx, w, msgServerError, err)
	}
}
