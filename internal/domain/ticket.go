package domain

import "time"

// TicketStatus enumerates lifecycle states for escalation tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// Ticket is one escalation session between a user and the operator pool.
// The ID is an unguessable token, never a sequential integer: tickets are
// addressed by URL and must not be enumerable.
type Ticket struct {
	ID        string
	UserID    string
	Status    TicketStatus
	CreatedAt time.Time
	ClosedAt  *time.Time
}

// IsOpen reports whether the ticket still accepts messages.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketStatusOpen
}
