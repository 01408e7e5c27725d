package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType identifies a gateway webhook event.
type EventType string

const (
	EventMessage        EventType = "message"
	EventMessageAck     EventType = "message.ack"
	EventPresenceUpdate EventType = "presence.update"
	EventSessionStatus  EventType = "session.status"
)

// Event is the gateway webhook envelope. The payload shape depends on the
// event type; keep it raw until the type is known.
type Event struct {
	Type    EventType       `json:"event"`
	Session string          `json:"session"`
	Payload json.RawMessage `json:"payload"`
}

// MessagePayload is the payload of an EventMessage.
type MessagePayload struct {
	// ID is the gateway's message identifier, unique per delivery attempt
	// target. Redeliveries reuse the same ID.
	ID string `json:"id"`

	// Conversation is the gateway chat identifier, e.g. "5511999999999@c.us".
	Conversation string `json:"conversation"`

	From      string `json:"from"`
	FromMe    bool   `json:"fromMe"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// PresencePayload is the payload of an EventPresenceUpdate.
type PresencePayload struct {
	Conversation string `json:"conversation"`
	State        string `json:"state"`
}

// Presence states the gateway reports.
const (
	PresenceComposing = "composing"
	PresencePaused    = "paused"
)

// SessionStatusPayload is the payload of an EventSessionStatus.
type SessionStatusPayload struct {
	Status string `json:"status"`
}

// OccurredAt converts the gateway's unix-seconds timestamp.
func (p MessagePayload) OccurredAt() time.Time {
	if p.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(p.Timestamp, 0).UTC()
}

// Phone strips the gateway suffix from a conversation identifier, leaving
// the bare phone number leads are keyed by.
func Phone(conversation string) string {
	s := strings.TrimSpace(conversation)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	return s
}

func (e Event) messagePayload() (MessagePayload, error) {
	var p MessagePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return MessagePayload{}, fmt.Errorf("gateway: bad message payload: %w", err)
	}
	if p.Conversation == "" {
		p.Conversation = p.From
	}
	return p, nil
}

func (e Event) presencePayload() (PresencePayload, error) {
	var p PresencePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return PresencePayload{}, fmt.Errorf("gateway: bad presence payload: %w", err)
	}
	return p, nil
}

// sessionStatusPayload tolerates a missing payload; some gateway versions
// send the bare event.
func (e Event) sessionStatusPayload() (SessionStatusPayload, error) {
	var p SessionStatusPayload
	if len(e.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return SessionStatusPayload{}, fmt.Errorf("gateway: bad session status payload: %w", err)
	}
	return p, nil
}
