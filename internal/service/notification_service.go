package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/escalation-relay/internal/events"
	"github.com/spec-kit/escalation-relay/internal/notify"
)

// NotificationService bridges domain events to the out-of-band
// notification channel. Delivery is fire-and-forget: a failed
// notification is logged and dropped, never rolled back into ticket
// state.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier notify.Notifier, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventOperatorInvited, n.handleOperatorInvited)
	n.dispatcher.Subscribe(events.EventMessageAppended, n.handleMessageAppended)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
}

func (n *NotificationService) handleOperatorInvited(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.OperatorInvitedPayload)
	if !ok {
		return nil
	}
	if err := n.notifier.NotifyOperator(ctx, payload.OperatorExternalID, event.TicketID, payload.Credential); err != nil {
		n.logger.Warn("operator notification failed",
			zap.String("operator", payload.OperatorExternalID),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
	return nil
}

func (n *NotificationService) handleMessageAppended(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MessageAppendedPayload)
	if !ok || payload.ForwardTo == "" {
		return nil
	}
	if err := n.notifier.NotifyUser(ctx, payload.ForwardTo, payload.Body); err != nil {
		n.logger.Warn("message forward failed",
			zap.String("recipient", payload.ForwardTo),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
	return nil
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return nil
	}
	const resumed = "Your question thread is closed; automated answers have resumed."
	if err := n.notifier.NotifyUser(ctx, payload.UserExternalID, resumed); err != nil {
		n.logger.Warn("close notification failed",
			zap.String("user", payload.UserExternalID),
			zap.Error(err),
		)
	}
	return nil
}
