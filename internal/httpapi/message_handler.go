package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"youapp/internal/domain"
	"youapp/internal/messaging"

	"github.com/google/uuid"
)

type MessageHandler struct {
	messages  *messaging.Service
	responder responder
}

func NewMessageHandler(messages *messaging.Service, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, responder: newResponder(logger)}
}

type sendRequest struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

type sendResponse struct {
	Message string         `json:"message"`
	Data    domain.Message `json:"data"`
}

type validationResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sender, ok := userIDFromRequest(h.responder, w, r)
	if !ok {
		return
	}
	var in sendRequest
	if err := h.responder.decode(w, r, &in); err != nil {
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, msgBadRequestBody)
		return
	}

	msg, err := h.messages.Send(ctx, sender, in.RecipientID, in.Content)
	if err != nil {
		var verr *messaging.ValidationError
		if errors.As(err, &verr) {
			message := "Invalid request."
			if verr.MissingOnly() {
				message = "All fields are required."
			}
			h.responder.writeJSON(ctx, w, http.StatusBadRequest, validationResponse{
				Message: message,
				Errors:  verr.FieldErrors,
			})
			return
		}
		// StorageError details stay in the log.
		h.responder.serverError(ctx, w, "Server error", err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, sendResponse{Message: "Message sent successfully.", Data: msg})
}

func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, ok := userIDFromRequest(h.responder, w, r)
	if !ok {
		return
	}
	other, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, "Invalid user id.")
		return
	}

	view, err := h.messages.ConversationView(ctx, current, other)
	if err != nil {
		h.responder.serverError(ctx, w, "Server error", err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, view)
}
