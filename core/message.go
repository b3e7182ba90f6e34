package core

import "time"

// Broadcast is the recipient marker for messages addressed to everyone.
const Broadcast = "*"

// MessageType classifies a bus message.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeBroadcast    MessageType = "broadcast"
	MessageTypeNotification MessageType = "notification"
)

// Message is an envelope on the bus. It is never mutated after publish.
type Message struct {
	ID            string      `json:"id"`
	From          string      `json:"from"`
	To            []string    `json:"to"`
	Type          MessageType `json:"type"`
	Channel       string      `json:"channel"`
	Data          any         `json:"data,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID string      `json:"correlationId,omitempty"`
	Priority      Priority    `json:"priority"`
}

// Recipient returns the single addressed agent of a point-to-point message.
func (m Message) Recipient() (string, bool) {
	if len(m.To) != 1 || m.To[0] == Broadcast || m.To[0] == "" {
		return "", false
	}
	return m.To[0], true
}
