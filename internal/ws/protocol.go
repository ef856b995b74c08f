// Package ws is the live notification channel. Each websocket connection
// exchanges JSON frames of the form {"event": name, "data": payload}.
//
// Inbound events are "register" (data: the user id string) and
// "sendMessage" (data: an object with senderId, recipientId, content and
// any extra fields). Outbound events are "newMessage", whose data is the
// sendMessage payload echoed unchanged, and "error" for rejected frames.
//
// Delivery is at-most-once and unacknowledged. A push to a user who is not
// registered, or whose outbound queue is full, is dropped.
package ws

import (
	"encoding/json"
)

const (
	EventRegister    = "register"
	EventSendMessage = "sendMessage"
	EventNewMessage  = "newMessage"
	EventError       = "error"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type sendMessagePayload struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// newMessageFrame wraps payload without re-encoding it, so recipients get
// the sender's bytes exactly.
func newMessageFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+32)
	frame = append(frame, `{"event":"`+EventNewMessage+`","data":`...)
	frame = append(frame, payload...)
	return append(frame, '}')
}

func errorFrame(message string) []byte {
	data, _ := json.Marshal(errorPayload{Message: message})
	frame, _ := json.Marshal(envelope{Event: EventError, Data: data})
	return frame
}
