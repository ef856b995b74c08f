package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"youapp/internal/domain"
	"youapp/internal/logging"
	"youapp/internal/metrics"
	"youapp/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type sendRequest struct {
	RecipientID string `validate:"required,uuid"`
	Content     string `validate:"required"`
}

// Participant is a message endpoint resolved for display.
type Participant struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// ConversationEntry is a stored message with both participants resolved.
type ConversationEntry struct {
	ID        uuid.UUID   `json:"id"`
	Sender    Participant `json:"sender"`
	Recipient Participant `json:"recipient"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

type Service struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(messages repository.MessageRepository, users repository.UserRepository, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		messages: messages,
		users:    users,
		validate: validator.New(),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Send validates and persists a message from senderID. The returned message
// carries the assigned id and timestamp. Failures are not retried.
func (s *Service) Send(ctx context.Context, senderID uuid.UUID, recipientID, content string) (domain.Message, error) {
	log := logging.For(ctx, s.logger, "messaging", "send", "sender_id", senderID)

	req := sendRequest{RecipientID: recipientID, Content: content}
	if err := s.validate.Struct(req); err != nil {
		verr := toValidationError(err)
		log.Debug("message rejected", "error", verr)
		return domain.Message{}, verr
	}
	recipient, err := uuid.Parse(recipientID)
	if err != nil {
		return domain.Message{}, &ValidationError{FieldErrors: map[string]string{"recipientId": msgInvalidID}}
	}

	// Microsecond precision is what Postgres keeps; both backends agree on it.
	msg := domain.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipient,
		Content:     content,
		Timestamp:   s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.messages.CreateMessage(ctx, &msg); err != nil {
		s.metrics.StoreError("send")
		log.Error("failed to store message", "recipient_id", recipient, "error", err)
		return domain.Message{}, &StorageError{Op: "send", Err: err}
	}
	s.metrics.MessageStored()
	log.Info("message stored", "message_id", msg.ID, "recipient_id", recipient)
	return msg, nil
}

// Conversation returns every message exchanged between a and b in either
// direction, oldest first.
func (s *Service) Conversation(ctx context.Context, a, b uuid.UUID) ([]domain.Message, error) {
	messages, err := s.messages.ListConversation(ctx, a, b)
	if err != nil {
		s.metrics.StoreError("conversation")
		logging.For(ctx, s.logger, "messaging", "conversation", "user_a", a, "user_b", b).
			Error("failed to load conversation", "error", err)
		return nil, &StorageError{Op: "conversation", Err: err}
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// ConversationView is Conversation with sender and recipient resolved to
// usernames. Unknown users resolve to an empty username.
func (s *Service) ConversationView(ctx context.Context, a, b uuid.UUID) ([]ConversationEntry, error) {
	messages, err := s.Conversation(ctx, a, b)
	if err != nil {
		return nil, err
	}
	users, err := s.users.GetUsers(ctx, lo.Uniq([]uuid.UUID{a, b}))
	if err != nil {
		s.metrics.StoreError("resolve_users")
		logging.For(ctx, s.logger, "messaging", "conversation_view").Error("failed to resolve users", "error", err)
		return nil, &StorageError{Op: "resolve_users", Err: err}
	}
	byID := lo.KeyBy(users, func(u domain.User) uuid.UUID { return u.ID })
	participant := func(id uuid.UUID) Participant {
		return Participant{ID: id, Username: byID[id].Username}
	}
	return lo.Map(messages, func(m domain.Message, _ int) ConversationEntry {
		return ConversationEntry{
			ID:        m.ID,
			Sender:    participant(m.SenderID),
			Recipient: participant(m.RecipientID),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
	}), nil
}

func toValidationError(err error) *ValidationError {
	verr := &ValidationError{FieldErrors: map[string]string{}}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.FieldErrors["request"] = err.Error()
		return verr
	}
	for _, fe := range fieldErrs {
		name := jsonName(fe.Field())
		switch fe.Tag() {
		case "required":
			verr.FieldErrors[name] = msgRequired
		case "uuid":
			verr.FieldErrors[name] = msgInvalidID
		default:
			verr.FieldErrors[name] = "failed " + fe.Tag()
		}
	}
	return verr
}

func jsonName(field string) string {
	switch field {
	case "RecipientID":
		return "recipientId"
	case "Content":
		return "content"
	default:
		return field
	}
}
