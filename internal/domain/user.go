package domain

import "time"

// RoutingMode determines where a user's messages are delivered.
type RoutingMode string

const (
	// RoutingAutomated routes messages through the FAQ pipeline.
	RoutingAutomated RoutingMode = "AUTOMATED"
	// RoutingEscalated routes messages into the user's open ticket.
	RoutingEscalated RoutingMode = "ESCALATED"
)

// User is the domain model for anyone the relay talks to, end-users and
// operators alike. ExternalID is the identity owned by the messaging
// platform; ID is ours.
type User struct {
	ID          string
	ExternalID  string
	DisplayName string
	IsOperator  bool
	RoutingMode RoutingMode
	CreatedAt   time.Time
}
