package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/escalation-relay/internal/api/dto"
	httptransport "github.com/spec-kit/escalation-relay/internal/api/http"
	"github.com/spec-kit/escalation-relay/internal/api/http/handlers"
	"github.com/spec-kit/escalation-relay/internal/auth"
	"github.com/spec-kit/escalation-relay/internal/config"
	"github.com/spec-kit/escalation-relay/internal/domain"
	"github.com/spec-kit/escalation-relay/internal/events"
	"github.com/spec-kit/escalation-relay/internal/gateway"
	"github.com/spec-kit/escalation-relay/internal/observability"
	"github.com/spec-kit/escalation-relay/internal/relay"
	"github.com/spec-kit/escalation-relay/internal/repository"
	"github.com/spec-kit/escalation-relay/internal/service"
)

type noMatchAnswerer struct{}

func (noMatchAnswerer) FindBestAnswer(ctx context.Context, question string) (string, error) {
	return "I do not know", nil
}

type relayFixture struct {
	app     *fiber.App
	svc     *service.EscalationService
	creds   *auth.CredentialService
	users   *repository.MemoryUserRepository
	tickets *repository.MemoryTicketRepository
	log     *repository.MemoryMessageRepository
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	users := repository.NewMemoryUserRepository()
	tickets := repository.NewMemoryTicketRepository()
	log := repository.NewMemoryMessageRepository(tickets)
	bus := relay.NewBus(log, time.Minute)
	t.Cleanup(bus.Stop)

	creds := auth.NewCredentialService("test-secret", 30)
	logger := zap.NewNop()
	svc := service.NewEscalationService(service.EscalationDependencies{
		UserRepo:        users,
		TicketRepo:      tickets,
		MessageRepo:     log,
		InteractionRepo: repository.NewMemoryInteractionRepository(),
		Bus:             bus,
		Credentials:     creds,
		Answerer:        noMatchAnswerer{},
		Dispatcher:      events.NewInMemoryDispatcher(),
		Logger:          logger,
	})

	metrics := observability.NewMetrics()
	relayCfg := config.RelayConfig{MaxWaitSeconds: 5}

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, 30*time.Second)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler("relay-test", "test", nil, nil, metrics),
		Relay:  handlers.NewRelayHandler(svc, bus, creds, relayCfg, metrics),
	})

	return &relayFixture{app: app, svc: svc, creds: creds, users: users, tickets: tickets, log: log}
}

func (f *relayFixture) addUser(t *testing.T, externalID string, operator bool) *domain.User {
	t.Helper()
	user := &domain.User{ExternalID: externalID, DisplayName: externalID, IsOperator: operator}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *relayFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://relay.test"+path, nil)
	require.NoError(t, err)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (f *relayFixture) postMessage(t *testing.T, token, text string) *http.Response {
	t.Helper()
	body, err := json.Marshal(dto.SendMessageRequest{Text: text})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, "http://relay.test/"+token+"/message", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	payload := decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, resp)
	return payload.Error.Code
}

func TestEscalationEndToEnd(t *testing.T) {
	f := newRelayFixture(t)
	user := f.addUser(t, "tg-user", false)
	operator := f.addUser(t, "tg-op", true)

	// Automation failed to answer "hours?"; the user rejects the answer.
	ticket, userToken, err := f.svc.Reject(context.Background(), user.ID, "hours?")
	require.NoError(t, err)

	// The seed message is entry 0 of the history.
	state := decode[dto.TicketStateResponse](t, f.get(t, "/"+userToken))
	assert.Equal(t, ticket.ID, state.TicketID)
	assert.Equal(t, "OPEN", state.Status)
	require.NotEmpty(t, state.Messages)
	assert.Equal(t, "hours?", state.Messages[0].Message)

	// A waiter blocks past the seed; the operator's reply wakes it.
	opToken, err := f.creds.Issue(operator.ID, operator.ExternalID, ticket.ID, 0)
	require.NoError(t, err)

	watermark := state.Messages[0].Date + 0.000001
	pollDone := make(chan dto.PollResponse, 1)
	go func() {
		resp := f.get(t, "/"+userToken+"/poll/"+formatFloat(watermark)+"?wait_for=5")
		pollDone <- decode[dto.PollResponse](t, resp)
	}()

	time.Sleep(100 * time.Millisecond)
	resp := f.postMessage(t, opToken, "we open at 9")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ack := decode[dto.SendMessageResponse](t, resp)
	assert.Equal(t, "ok", ack.Status)

	select {
	case poll := <-pollDone:
		require.Len(t, poll.Messages, 1)
		assert.Equal(t, "we open at 9", poll.Messages[0].Message)
		assert.Equal(t, ticket.ID, poll.TicketID)
	case <-time.After(3 * time.Second):
		t.Fatal("poll did not return after operator message")
	}

	// Close succeeds once; a write afterwards reports the closed ticket.
	closeResp := f.get(t, "/"+opToken+"/close")
	assert.Equal(t, http.StatusOK, closeResp.StatusCode)

	resp = f.postMessage(t, opToken, "too late")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "TICKET_CLOSED", errorCode(t, resp))

	// A second close is reported, not silently accepted.
	closeResp = f.get(t, "/"+opToken+"/close")
	assert.Equal(t, http.StatusConflict, closeResp.StatusCode)
	assert.Equal(t, "TICKET_ALREADY_CLOSED", errorCode(t, closeResp))
}

func TestPollTimesOutEmpty(t *testing.T) {
	f := newRelayFixture(t)
	user := f.addUser(t, "tg-user", false)
	f.addUser(t, "tg-op", true)

	_, token, err := f.svc.Reject(context.Background(), user.ID, "hours?")
	require.NoError(t, err)

	// Watermark far in the future so nothing matches.
	start := time.Now()
	resp := f.get(t, "/"+token+"/poll/9999999999?wait_for=2")
	elapsed := time.Since(start)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	poll := decode[dto.PollResponse](t, resp)
	assert.Empty(t, poll.Messages)
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	assert.Less(t, elapsed, 4*time.Second)
}

func TestCredentialFailuresAreDistinguished(t *testing.T) {
	f := newRelayFixture(t)
	user := f.addUser(t, "tg-user", false)
	f.addUser(t, "tg-op", true)

	ticket, _, err := f.svc.Reject(context.Background(), user.ID, "hours?")
	require.NoError(t, err)

	// Expired: 401, retriable after reissue.
	expired, err := f.creds.Issue(user.ID, user.ExternalID, ticket.ID, -time.Minute)
	require.NoError(t, err)
	resp := f.get(t, "/"+expired)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "CREDENTIAL_EXPIRED", errorCode(t, resp))

	// Forged: 403, terminal.
	forged, err := auth.NewCredentialService("wrong-secret", 30).Issue(user.ID, user.ExternalID, ticket.ID, 0)
	require.NoError(t, err)
	resp = f.get(t, "/"+forged)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CREDENTIAL_MALFORMED", errorCode(t, resp))
}

func TestCredentialIsScopedToItsTicket(t *testing.T) {
	f := newRelayFixture(t)
	alice := f.addUser(t, "tg-alice", false)
	bob := f.addUser(t, "tg-bob", false)
	f.addUser(t, "tg-op", true)

	ticketA, tokenA, err := f.svc.Reject(context.Background(), alice.ID, "question a")
	require.NoError(t, err)
	ticketB, _, err := f.svc.Reject(context.Background(), bob.ID, "question b")
	require.NoError(t, err)

	// The token names its own ticket; it cannot address the other one.
	state := decode[dto.TicketStateResponse](t, f.get(t, "/"+tokenA))
	assert.Equal(t, ticketA.ID, state.TicketID)
	assert.NotEqual(t, ticketB.ID, state.TicketID)

	resp := f.postMessage(t, tokenA, "for ticket A only")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()

	msgsB, err := f.log.ListByTicket(context.Background(), ticketB.ID)
	require.NoError(t, err)
	for _, msg := range msgsB {
		assert.NotEqual(t, "for ticket A only", msg.Body)
	}
}

type appDoer struct {
	app *fiber.App
}

func (d appDoer) Do(req *http.Request) (*http.Response, error) {
	return d.app.Test(req, -1)
}

func TestExpiredCredentialRetryAppendsOnce(t *testing.T) {
	f := newRelayFixture(t)
	user := f.addUser(t, "tg-user", false)
	f.addUser(t, "tg-op", true)

	ticket, _, err := f.svc.Reject(context.Background(), user.ID, "hours?")
	require.NoError(t, err)

	forwarder := gateway.NewForwarder("http://relay.test", appDoer{app: f.app}, f.svc, zap.NewNop())

	// Seed the cache with an already expired credential; the forwarder
	// must reissue and retry the same message exactly once.
	expired, err := f.creds.Issue(user.ID, user.ExternalID, ticket.ID, -time.Minute)
	require.NoError(t, err)
	forwarder.SetToken(user.ID, ticket.ID, expired)

	require.NoError(t, forwarder.ForwardUserMessage(context.Background(), user.ID, ticket.ID, "are you there?"))

	msgs, err := f.log.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	count := 0
	for _, msg := range msgs {
		if msg.Body == "are you there?" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
