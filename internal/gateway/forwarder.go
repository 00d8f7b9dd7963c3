package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/escalation-relay/internal/api/dto"
)

// CredentialSource mints fresh credentials for a (user, ticket) pair.
type CredentialSource interface {
	ReissueCredential(ctx context.Context, userID, ticketID string) (string, error)
}

// Doer abstracts the HTTP client so tests can point the forwarder at an
// in-process app.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Forwarder relays an escalated user's messages from the messaging
// platform into the relay surface. It caches one credential per
// (user, ticket) pair; when the relay reports an expired credential it
// reissues and retries the same logical message exactly once, so the
// log never drops or doubles a send.
type Forwarder struct {
	baseURL string
	client  Doer
	creds   CredentialSource
	logger  *zap.Logger

	mu     sync.Mutex
	tokens map[string]string
}

// NewForwarder builds a forwarder posting to baseURL.
func NewForwarder(baseURL string, client Doer, creds CredentialSource, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		baseURL: baseURL,
		client:  client,
		creds:   creds,
		logger:  logger,
		tokens:  make(map[string]string),
	}
}

// ForwardUserMessage posts text into the user's ticket.
func (f *Forwarder) ForwardUserMessage(ctx context.Context, userID, ticketID, text string) error {
	token, err := f.token(ctx, userID, ticketID)
	if err != nil {
		return err
	}

	status, code, err := f.post(ctx, token, text)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusUnauthorized || code != "CREDENTIAL_EXPIRED" {
		return fmt.Errorf("relay rejected message: %s (%d)", code, status)
	}

	// Expired mid-conversation: reissue and retry this message once.
	token, err = f.refreshToken(ctx, userID, ticketID)
	if err != nil {
		return err
	}
	status, code, err = f.post(ctx, token, text)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("relay rejected message after reissue: %s (%d)", code, status)
	}
	return nil
}

func (f *Forwarder) token(ctx context.Context, userID, ticketID string) (string, error) {
	key := userID + "|" + ticketID
	f.mu.Lock()
	token, ok := f.tokens[key]
	f.mu.Unlock()
	if ok {
		return token, nil
	}
	return f.refreshToken(ctx, userID, ticketID)
}

func (f *Forwarder) refreshToken(ctx context.Context, userID, ticketID string) (string, error) {
	token, err := f.creds.ReissueCredential(ctx, userID, ticketID)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.tokens[userID+"|"+ticketID] = token
	f.mu.Unlock()
	return token, nil
}

// SetToken seeds the credential cache, as when the orchestrator already
// issued one during escalation.
func (f *Forwarder) SetToken(userID, ticketID, token string) {
	f.mu.Lock()
	f.tokens[userID+"|"+ticketID] = token
	f.mu.Unlock()
}

// post sends one message and returns the HTTP status plus the relay's
// error code, if any.
func (f *Forwarder) post(ctx context.Context, token, text string) (int, string, error) {
	body, err := json.Marshal(dto.SendMessageRequest{Text: text})
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/"+token+"/message", bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return resp.StatusCode, "", nil
	}

	var failure struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &failure); err != nil {
		f.logger.Warn("unparseable relay error", zap.Int("status", resp.StatusCode))
	}
	return resp.StatusCode, failure.Error.Code, nil
}
