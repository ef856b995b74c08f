package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Profile      Profile   `json:"profile"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile holds the user editable fields. Zodiac and Horoscope are derived
// from Birthday and never accepted from clients.
type Profile struct {
	DisplayName string `json:"displayName"`
	Gender      string `json:"gender"`
	Birthday    string `json:"birthday"`
	Horoscope   string `json:"horoscope"`
	Zodiac      string `json:"zodiac"`
	Height      string `json:"height"`
	Weight      string `json:"weight"`
	Avatar      string `json:"avatar"`
}

// Message is immutable once persisted. Seq is the store assigned insertion
// order and only breaks ties between equal timestamps.
type Message struct {
	ID          uuid.UUID `json:"id"`
	SenderID    uuid.UUID `json:"sender"`
	RecipientID uuid.UUID `json:"recipient"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Seq         uint64    `json:"-"`
}

type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	EventTypeMessageCreated = "MESSAGE_CREATED"
)

// ConversationKey returns the same key for (a, b) and (b, a).
func ConversationKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + "|" + y
}
