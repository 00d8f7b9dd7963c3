package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/escalation-relay/internal/auth"
	"github.com/spec-kit/escalation-relay/internal/domain"
	"github.com/spec-kit/escalation-relay/internal/events"
	"github.com/spec-kit/escalation-relay/internal/faq"
	"github.com/spec-kit/escalation-relay/internal/relay"
	"github.com/spec-kit/escalation-relay/internal/repository"
)

const maxMessageLength = 4096

// EscalationService is the state machine moving users between automated
// FAQ handling and human operator handling, and the single write path
// into the conversation log.
type EscalationService struct {
	users        repository.UserRepository
	tickets      repository.TicketRepository
	messages     repository.MessageRepository
	interactions repository.InteractionRepository
	bus          *relay.Bus
	credentials  *auth.CredentialService
	answerer     faq.Answerer
	dispatcher   events.Dispatcher
	logger       *zap.Logger
}

// EscalationDependencies bundles collaborators for the service.
type EscalationDependencies struct {
	UserRepo        repository.UserRepository
	TicketRepo      repository.TicketRepository
	MessageRepo     repository.MessageRepository
	InteractionRepo repository.InteractionRepository
	Bus             *relay.Bus
	Credentials     *auth.CredentialService
	Answerer        faq.Answerer
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	return &EscalationService{
		users:        deps.UserRepo,
		tickets:      deps.TicketRepo,
		messages:     deps.MessageRepo,
		interactions: deps.InteractionRepo,
		bus:          deps.Bus,
		credentials:  deps.Credentials,
		answerer:     deps.Answerer,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
	}
}

// Reply is the outcome of a user message.
type Reply struct {
	Escalated     bool
	Answer        string
	InteractionID int64
	Seq           int64
}

// RegisterContact finds or creates the user for an external identity.
func (s *EscalationService) RegisterContact(ctx context.Context, externalID, displayName string) (*domain.User, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err == nil {
		return user, nil
	}
	if err != domain.ErrUserNotFound {
		return nil, err
	}
	user = &domain.User{
		ExternalID:  externalID,
		DisplayName: displayName,
		RoutingMode: domain.RoutingAutomated,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Reject escalates a user whose automated answer was rejected: opens a
// ticket seeded with the triggering message, flips the user's routing
// mode and invites every operator with a ticket-scoped credential. The
// returned credential belongs to the user themselves.
//
// With no operators registered it still opens the ticket and escalates,
// reporting ErrNoOperators so the front-end can set expectations; a
// later credential reissue can attach an operator.
func (s *EscalationService) Reject(ctx context.Context, userID, triggeringText string) (*domain.Ticket, string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if user.RoutingMode != domain.RoutingAutomated {
		return nil, "", domain.ErrTicketAlreadyOpen
	}

	ticket := &domain.Ticket{
		ID:     uuid.NewString(),
		UserID: user.ID,
		Status: domain.TicketStatusOpen,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, "", err
	}

	// Entry 0 of the log is the message automation failed to answer.
	if _, err := s.append(ctx, ticket.ID, user.ID, triggeringText, ""); err != nil {
		s.abandonOpen(ctx, ticket.ID, user.ID)
		return nil, "", err
	}

	if err := s.users.SetRoutingMode(ctx, user.ID, domain.RoutingEscalated); err != nil {
		s.abandonOpen(ctx, ticket.ID, user.ID)
		return nil, "", err
	}

	userCred, err := s.credentials.Issue(user.ID, user.ExternalID, ticket.ID, 0)
	if err != nil {
		s.abandonOpen(ctx, ticket.ID, user.ID)
		return nil, "", err
	}

	s.publish(ctx, events.NewEvent(events.EventTicketOpened, ticket.ID, user.ID, events.TicketOpenedPayload{
		SeedPreview: preview(triggeringText),
	}))

	operators, err := s.users.ListOperators(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(operators) == 0 {
		s.logger.Warn("escalation without operators", zap.String("ticket_id", ticket.ID))
		s.publish(ctx, events.NewEvent(events.EventEscalationFailed, ticket.ID, user.ID, nil))
		return ticket, userCred, domain.ErrNoOperators
	}

	for _, operator := range operators {
		cred, err := s.credentials.Issue(operator.ID, operator.ExternalID, ticket.ID, 0)
		if err != nil {
			s.logger.Error("issue operator credential", zap.String("operator", operator.ID), zap.Error(err))
			continue
		}
		s.publish(ctx, events.NewEvent(events.EventOperatorInvited, ticket.ID, user.ID, events.OperatorInvitedPayload{
			OperatorID:         operator.ID,
			OperatorExternalID: operator.ExternalID,
			Credential:         cred,
		}))
	}

	return ticket, userCred, nil
}

// UserMessage handles a message from a user: while escalated it goes
// into the open ticket, otherwise the FAQ pipeline answers it and the
// exchange is recorded for the feedback flow.
func (s *EscalationService) UserMessage(ctx context.Context, userID, text string) (*Reply, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.RoutingMode == domain.RoutingEscalated {
		ticket, err := s.tickets.FindOpenByUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		seq, err := s.append(ctx, ticket.ID, user.ID, text, "")
		if err != nil {
			return nil, err
		}
		return &Reply{Escalated: true, Seq: seq}, nil
	}

	answer, err := s.answerer.FindBestAnswer(ctx, text)
	if err != nil {
		return nil, err
	}
	interaction := &domain.Interaction{
		UserID:   user.ID,
		Question: text,
		Answer:   answer,
	}
	if err := s.interactions.Create(ctx, interaction); err != nil {
		return nil, err
	}
	return &Reply{Answer: answer, InteractionID: interaction.ID}, nil
}

// Feedback resolves an automated exchange. A not-helpful verdict
// escalates the recorded question.
func (s *EscalationService) Feedback(ctx context.Context, userID string, interactionID int64, helpful bool) (*domain.Ticket, string, error) {
	interaction, err := s.interactions.GetForUser(ctx, userID, interactionID)
	if err != nil {
		return nil, "", err
	}
	if helpful {
		return nil, "", s.interactions.MarkResolved(ctx, interaction.ID)
	}
	return s.Reject(ctx, userID, interaction.Question)
}

// OperatorMessage appends an operator's reply to an open ticket and
// forwards it to the owning user out-of-band.
func (s *EscalationService) OperatorMessage(ctx context.Context, ticketID, authorID, text string) (int64, error) {
	return s.RelayMessage(ctx, ticketID, authorID, text)
}

// RelayMessage is the ticket-scoped write path used by the relay
// surface. The ticket must be open. Messages from anyone but the owner
// are forwarded to the owner out-of-band; the owner's messages reach
// operators through polling alone.
func (s *EscalationService) RelayMessage(ctx context.Context, ticketID, authorID, text string) (int64, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	if !ticket.IsOpen() {
		return 0, domain.ErrTicketClosed
	}
	forwardTo := ""
	if authorID != ticket.UserID {
		owner, err := s.users.GetByID(ctx, ticket.UserID)
		if err != nil {
			return 0, err
		}
		forwardTo = owner.ExternalID
	}
	return s.append(ctx, ticket.ID, authorID, text, forwardTo)
}

// Close ends a ticket: terminal status flip, routing back to automation,
// and a resumption notice to the owner.
func (s *EscalationService) Close(ctx context.Context, ticketID, closedBy string) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.tickets.Close(ctx, ticket.ID); err != nil {
		return err
	}
	if err := s.users.SetRoutingMode(ctx, ticket.UserID, domain.RoutingAutomated); err != nil {
		return err
	}
	owner, err := s.users.GetByID(ctx, ticket.UserID)
	if err != nil {
		return err
	}
	s.publish(ctx, events.NewEvent(events.EventTicketClosed, ticket.ID, ticket.UserID, events.TicketClosedPayload{
		ClosedBy:       closedBy,
		UserExternalID: owner.ExternalID,
	}))
	return nil
}

// ReissueCredential mints a fresh credential for an existing (user,
// ticket) pair, for expiry recovery and lost operator links.
func (s *EscalationService) ReissueCredential(ctx context.Context, userID, ticketID string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if ticket.UserID != user.ID && !user.IsOperator {
		return "", domain.ErrCredentialMalformed
	}
	return s.credentials.Issue(user.ID, user.ExternalID, ticket.ID, 0)
}

// History returns the full conversation log of a ticket.
func (s *EscalationService) History(ctx context.Context, ticketID string) (*domain.Ticket, []domain.Message, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, msgs, nil
}

// append sanitizes, durably appends and publishes one message. A publish
// failure after the durable append still counts as success: the bus
// recovers the entry on its next hydration.
func (s *EscalationService) append(ctx context.Context, ticketID, authorID, text, forwardTo string) (int64, error) {
	msg := domain.Message{
		TicketID:  ticketID,
		AuthorID:  authorID,
		Timestamp: epochNow(),
		Body:      Sanitize(text),
	}
	seq, err := s.messages.Append(ctx, &msg)
	if err != nil {
		return 0, err
	}
	if err := s.bus.Publish(ctx, msg); err != nil {
		s.logger.Warn("publish after append failed",
			zap.String("ticket_id", ticketID),
			zap.Int64("seq", seq),
			zap.Error(err),
		)
	}
	s.publish(ctx, events.NewEvent(events.EventMessageAppended, ticketID, authorID, events.MessageAppendedPayload{
		Seq:       seq,
		AuthorID:  authorID,
		Timestamp: msg.Timestamp,
		Body:      msg.Body,
		ForwardTo: forwardTo,
	}))
	return seq, nil
}

// abandonOpen compensates a half-finished escalation: without it the
// open ticket would block every later Reject for this user while nobody
// holds a credential to close it. The user stays on automation.
func (s *EscalationService) abandonOpen(ctx context.Context, ticketID, userID string) {
	if err := s.tickets.Close(ctx, ticketID); err != nil {
		s.logger.Error("abandon half-opened ticket", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	if err := s.users.SetRoutingMode(ctx, userID, domain.RoutingAutomated); err != nil {
		s.logger.Error("restore routing mode", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *EscalationService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// Sanitize strips control characters and caps length before a body may
// reach storage. Mandatory for every write path.
func Sanitize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
	return truncate(strings.TrimSpace(cleaned), maxMessageLength)
}

// truncate caps s at limit bytes without splitting a rune, so the result
// is always valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func epochNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func preview(text string) string {
	return truncate(text, 80)
}
