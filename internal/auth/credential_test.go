package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/escalation-relay/internal/domain"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewCredentialService("test-secret", 30)

	token, err := svc.Issue("user-1", "tg-42", "ticket-abc", 0)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tg-42", claims.ExternalID)
	assert.Equal(t, "ticket-abc", claims.TicketID)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestVerifyExpired(t *testing.T) {
	svc := NewCredentialService("test-secret", 30)

	token, err := svc.Issue("user-1", "tg-42", "ticket-abc", -time.Minute)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, domain.ErrCredentialExpired)
}

func TestVerifyMalformed(t *testing.T) {
	svc := NewCredentialService("test-secret", 30)

	_, err := svc.Verify("not-a-token")
	assert.ErrorIs(t, err, domain.ErrCredentialMalformed)

	// Signed with a different secret.
	other := NewCredentialService("other-secret", 30)
	token, err := other.Issue("user-1", "tg-42", "ticket-abc", 0)
	require.NoError(t, err)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, domain.ErrCredentialMalformed)
}

func TestCredentialScopedToTicket(t *testing.T) {
	svc := NewCredentialService("test-secret", 30)

	token, err := svc.Issue("user-1", "tg-42", "ticket-a", 0)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ticket-a", claims.TicketID)
	assert.NotEqual(t, "ticket-b", claims.TicketID)
}
