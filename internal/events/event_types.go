package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened     EventType = "ticket_opened"
	EventTicketClosed     EventType = "ticket_closed"
	EventMessageAppended  EventType = "message_appended"
	EventOperatorInvited  EventType = "operator_invited"
	EventEscalationFailed EventType = "escalation_failed"
)

// Event represents a domain event emitted by the orchestrator.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with id and time.
func NewEvent(eventType EventType, ticketID, userID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		UserID:    userID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	SeedPreview string `json:"seed_preview"`
}

// TicketClosedPayload payload. UserExternalID lets subscribers tell the
// owner that automation has resumed.
type TicketClosedPayload struct {
	ClosedBy       string `json:"closed_by"`
	UserExternalID string `json:"user_external_id"`
}

// MessageAppendedPayload payload. ForwardTo carries the external id of a
// recipient the message body should be relayed to out-of-band; empty
// when delivery happens via polling alone.
type MessageAppendedPayload struct {
	Seq       int64   `json:"seq"`
	AuthorID  string  `json:"author_id"`
	Timestamp float64 `json:"timestamp"`
	Body      string  `json:"body"`
	ForwardTo string  `json:"forward_to,omitempty"`
}

// OperatorInvitedPayload payload.
type OperatorInvitedPayload struct {
	OperatorID         string `json:"operator_id"`
	OperatorExternalID string `json:"operator_external_id"`
	Credential         string `json:"credential"`
}
