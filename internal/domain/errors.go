package domain

import "errors"

// Sentinel errors shared across the store, relay and orchestrator layers.
// All of them are recoverable at the caller; none should take the relay
// process down.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrTicketAlreadyOpen   = errors.New("user already has an open ticket")
	ErrTicketAlreadyClosed = errors.New("ticket already closed")
	ErrTicketClosed        = errors.New("ticket is closed")
	ErrNoOperators         = errors.New("no operators available")
	ErrUserNotEscalated    = errors.New("user is not escalated")
	ErrInteractionNotFound = errors.New("interaction not found")

	// ErrCredentialExpired is retriable: the caller should reissue a
	// credential for the same (user, ticket) pair and try again.
	ErrCredentialExpired = errors.New("credential expired")
	// ErrCredentialMalformed is terminal: bad signature, wrong algorithm
	// or missing claims.
	ErrCredentialMalformed = errors.New("credential malformed")
)
