package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCreds struct {
	issued int
}

func (s *stubCreds) ReissueCredential(ctx context.Context, userID, ticketID string) (string, error) {
	s.issued++
	return "fresh-token", nil
}

type scriptedDoer struct {
	responses []*http.Response
	requests  []*http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	resp := d.responses[0]
	if len(d.responses) > 1 {
		d.responses = d.responses[1:]
	}
	return resp, nil
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestForwardUsesCachedToken(t *testing.T) {
	creds := &stubCreds{}
	doer := &scriptedDoer{responses: []*http.Response{response(http.StatusOK, `{"status":"ok"}`)}}
	f := NewForwarder("http://relay.test", doer, creds, zap.NewNop())
	f.SetToken("u1", "t1", "seeded-token")

	require.NoError(t, f.ForwardUserMessage(context.Background(), "u1", "t1", "hello"))
	require.Len(t, doer.requests, 1)
	assert.Contains(t, doer.requests[0].URL.Path, "seeded-token")
	assert.Zero(t, creds.issued)
}

func TestForwardReissuesOnExpiredCredential(t *testing.T) {
	creds := &stubCreds{}
	doer := &scriptedDoer{responses: []*http.Response{
		response(http.StatusUnauthorized, `{"error":{"code":"CREDENTIAL_EXPIRED"}}`),
		response(http.StatusOK, `{"status":"ok"}`),
	}}
	f := NewForwarder("http://relay.test", doer, creds, zap.NewNop())
	f.SetToken("u1", "t1", "stale-token")

	require.NoError(t, f.ForwardUserMessage(context.Background(), "u1", "t1", "hello"))
	require.Len(t, doer.requests, 2)
	assert.Contains(t, doer.requests[1].URL.Path, "fresh-token")
	assert.Equal(t, 1, creds.issued)
}

func TestForwardDoesNotRetryOtherFailures(t *testing.T) {
	creds := &stubCreds{}
	doer := &scriptedDoer{responses: []*http.Response{
		response(http.StatusConflict, `{"error":{"code":"TICKET_CLOSED"}}`),
	}}
	f := NewForwarder("http://relay.test", doer, creds, zap.NewNop())
	f.SetToken("u1", "t1", "token")

	err := f.ForwardUserMessage(context.Background(), "u1", "t1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TICKET_CLOSED")
	assert.Len(t, doer.requests, 1)
	assert.Zero(t, creds.issued)
}

func TestForwardFetchesTokenWhenCacheCold(t *testing.T) {
	creds := &stubCreds{}
	doer := &scriptedDoer{responses: []*http.Response{response(http.StatusOK, `{"status":"ok"}`)}}
	f := NewForwarder("http://relay.test", doer, creds, zap.NewNop())

	require.NoError(t, f.ForwardUserMessage(context.Background(), "u1", "t1", "hello"))
	assert.Equal(t, 1, creds.issued)
	require.Len(t, doer.requests, 1)
	assert.Contains(t, doer.requests[0].URL.Path, "fresh-token")
}
