package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"youapp/internal/domain"
	"youapp/internal/profile"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type ProfileHandler struct {
	profiles  *profile.Service
	maxUpload int64
	responder responder
}

func NewProfileHandler(profiles *profile.Service, maxAvatarBytes int64, logger *slog.Logger) *ProfileHandler {
	// Leave room for the multipart envelope around the file.
	maxUpload := maxAvatarBytes + 64<<10
	return &ProfileHandler{
		profiles:  profiles,
		maxUpload: maxUpload,
		responder: newResponder(logger),
	}
}

type profileResponse struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Gender      string `json:"gender"`
	Birthday    string `json:"birthday"`
	Horoscope   string `json:"horoscope"`
	Zodiac      string `json:"zodiac"`
	Height      string `json:"height"`
	Weight      string `json:"weight"`
	Avatar      string `json:"avatar"`
}

type profileSummary struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

type updateResponse struct {
	Message string          `json:"message"`
	User    profileResponse `json:"user"`
}

type avatarResponse struct {
	Message string `json:"message"`
	Avatar  string `json:"avatar"`
}

type userSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

func avatarURL(name string) string {
	if name == "" {
		return ""
	}
	return "/uploads/" + name
}

func toProfileResponse(u domain.User) profileResponse {
	return profileResponse{
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.Profile.DisplayName,
		Gender:      u.Profile.Gender,
		Birthday:    u.Profile.Birthday,
		Horoscope:   u.Profile.Horoscope,
		Zodiac:      u.Profile.Zodiac,
		Height:      u.Profile.Height,
		Weight:      u.Profile.Weight,
		Avatar:      avatarURL(u.Profile.Avatar),
	}
}

// userIDFromRequest resolves the authenticated user and writes the error
// response itself when it cannot.
func userIDFromRequest(resp responder, w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		resp.writeJSON(r.Context(), w, http.StatusUnauthorized, authResponse{Auth: false, Message: "No token provided."})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		resp.writeJSON(r.Context(), w, http.StatusForbidden, authResponse{Auth: false, Message: "Failed to authenticate token."})
		return uuid.Nil, false
	}
	return id, true
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFromRequest(h.responder, w, r)
	if !ok {
		return
	}
	user, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toProfileResponse(user))
}

// Summary returns only the identity fields of the current user.
func (h *ProfileHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFromRequest(h.responder, w, r)
	if !ok {
		return
	}
	user, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, profileSummary{Email: user.Email, Username: user.Username})
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFromRequest(h.responder, w, r)
	if !ok {
		return
	}
	var in profile.Update
	if err := h.responder.decode(w, r, &in); err != nil {
		h.responder.writeMessage(r.Context(), w, http.StatusBadRequest, msgBadRequestBody)
		return
	}
	user, err := h.profiles.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, updateResponse{
		Message: "Profile updated successfully!",
		User:    toProfileResponse(user),
	})
}

func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFromRequest(h.responder, w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, _, err := r.FormFile("avatar")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.responder.writeMessage(ctx, w, http.StatusRequestEntityTooLarge, "Avatar is too large.")
			return
		}
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, "No file uploaded.")
		return
	}
	defer file.Close()

	name, err := h.profiles.SaveAvatar(ctx, id, file)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, avatarResponse{
		Message: "Avatar uploaded successfully!",
		Avatar:  avatarURL(name),
	})
}

func (h *ProfileHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.profiles.ListUsers(r.Context())
	if err != nil {
		h.responder.serverError(r.Context(), w, "Server error", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, lo.Map(users, func(u domain.User, _ int) userSummary {
		return userSummary{ID: u.ID, Username: u.Username, Email: u.Email}
	}))
}

func (h *ProfileHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, profile.ErrNotFound):
		h.responder.writeMessage(ctx, w, http.StatusNotFound, msgUserNotFound)
	case errors.Is(err, profile.ErrInvalidInput):
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), profile.ErrInvalidInput.Error()+": "))
	case errors.Is(err, profile.ErrUnsupportedAvatar):
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, "Avatar must be an image.")
	case errors.Is(err, profile.ErrAvatarTooLarge):
		h.responder.writeMessage(ctx, w, http.StatusRequestEntityTooLarge, "Avatar is too large.")
	default:
		h.responder.serverError(ctx, w, msgServerError, err)
	}
}
