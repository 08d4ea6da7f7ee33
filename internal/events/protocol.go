package events

import "encoding/json"

// Message is the envelope of every frame sent on the feed.
type Message struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Workshop string          `json:"workshop,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	Seq      int64           `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

const (
	// Server -> client
	TypeWelcome = "welcome"
	TypeChanges = "changes"
	TypeState   = "state"
	TypeError   = "error"

	// Client -> server
	TypeSync = "sync"
)

// WelcomePayload is sent once after a client connects.
type WelcomePayload struct {
	ClientID string `json:"clientId"`
	Seq      int64  `json:"seq"`
	State    any    `json:"state,omitempty"`
}

// ErrorPayload reports a problem with a client message.
type ErrorPayload struct {
	Message string `json:"message"`
}
