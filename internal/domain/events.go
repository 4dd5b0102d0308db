package domain

import "encoding/json"

// WebSocket events from client.
const (
	EventJoin           = "join"
	EventSendMessage    = "send_message"
	EventGetOnlineUsers = "get_online_users"
)

// WebSocket events to client.
const (
	EventMessageHistory = "message_history"
	EventOnlineUsers    = "online_users"
	EventError          = "error"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventNewMessage     = "new_message"
)

// Envelope is the wire frame for every WebSocket message, inbound and
// outbound. Data is decoded per event into a typed payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client -> Server payloads

type JoinPayload struct {
	Username string `json:"username"`
}

type SendMessagePayload struct {
	Content string `json:"content"`
}

// Server -> Client payloads

type MessageHistoryPayload struct {
	Messages []MessagePayload `json:"messages"`
}

type OnlineUsersPayload struct {
	Users []string `json:"users"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PresencePayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// MessagePayload is the wire form of a persisted chat message.
type MessagePayload struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// OutEvent builds an outbound event with its payload marshalled into Data.
// Marshalling payload structs defined in this package cannot fail.
type OutEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

func NewErrorEvent(message string) *OutEvent {
	return &OutEvent{
		Event: EventError,
		Data:  ErrorPayload{Message: message},
	}
}
