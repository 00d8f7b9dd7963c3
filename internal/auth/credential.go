package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/escalation-relay/internal/domain"
)

// CredentialService issues and verifies signed, ticket-scoped credentials.
// A credential authorizes exactly one user for exactly one ticket; it
// carries no authority over any other ticket.
type CredentialService struct {
	secret []byte
	ttl    time.Duration
}

// NewCredentialService builds a new service. ttlMinutes of zero or less
// falls back to one hour.
func NewCredentialService(secret string, ttlMinutes int) *CredentialService {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &CredentialService{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

// Capability is the typed claim set carried by a credential. Callers work
// with these fields, never with a raw claim map.
type Capability struct {
	UserID     string `json:"uid"`
	ExternalID string `json:"ext"`
	TicketID   string `json:"ticket_id"`
	jwt.RegisteredClaims
}

// TTL returns the configured credential lifetime.
func (s *CredentialService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a credential binding (userID, externalID) to ticketID,
// valid for ttl from now; ttl of zero falls back to the configured
// default. Pure computation, no state.
func (s *CredentialService) Issue(userID, externalID, ticketID string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = s.ttl
	}
	now := time.Now()
	claims := &Capability{
		UserID:     userID,
		ExternalID: externalID,
		TicketID:   ticketID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates a credential and returns its capability. It reports
// domain.ErrCredentialExpired past the expiry instant and
// domain.ErrCredentialMalformed for everything else that fails
// validation. Verification never touches ticket or user state.
func (s *CredentialService) Verify(token string) (*Capability, error) {
	parsed, err := jwt.ParseWithClaims(token, &Capability{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrCredentialExpired
		}
		return nil, domain.ErrCredentialMalformed
	}

	claims, ok := parsed.Claims.(*Capability)
	if !ok || !parsed.Valid {
		return nil, domain.ErrCredentialMalformed
	}
	if claims.UserID == "" || claims.TicketID == "" {
		return nil, domain.ErrCredentialMalformed
	}
	return claims, nil
}
