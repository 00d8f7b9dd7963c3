package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/escalation-relay/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(code, message string) error {
	return NewDomainError(code, message, http.StatusConflict, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// sentinelMappings translates the domain taxonomy to transport errors.
// CREDENTIAL_EXPIRED is the only 401 a client should retry after
// reissuing; CREDENTIAL_MALFORMED is terminal.
var sentinelMappings = []struct {
	sentinel error
	code     string
	status   int
}{
	{domain.ErrCredentialExpired, "CREDENTIAL_EXPIRED", http.StatusUnauthorized},
	{domain.ErrCredentialMalformed, "CREDENTIAL_MALFORMED", http.StatusForbidden},
	{domain.ErrUserNotFound, "NOT_FOUND", http.StatusNotFound},
	{domain.ErrTicketNotFound, "NOT_FOUND", http.StatusNotFound},
	{domain.ErrInteractionNotFound, "NOT_FOUND", http.StatusNotFound},
	{domain.ErrTicketAlreadyOpen, "TICKET_ALREADY_OPEN", http.StatusConflict},
	{domain.ErrTicketAlreadyClosed, "TICKET_ALREADY_CLOSED", http.StatusConflict},
	{domain.ErrTicketClosed, "TICKET_CLOSED", http.StatusConflict},
	{domain.ErrNoOperators, "NO_OPERATORS_AVAILABLE", http.StatusServiceUnavailable},
	{domain.ErrUserNotEscalated, "USER_NOT_ESCALATED", http.StatusConflict},
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	for _, m := range sentinelMappings {
		if errors.Is(err, m.sentinel) {
			return &DomainError{
				Code:       m.code,
				Message:    m.sentinel.Error(),
				HTTPStatus: m.status,
				Err:        err,
			}
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	return ToDomainError(err)
}
