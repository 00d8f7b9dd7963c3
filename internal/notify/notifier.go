package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier is the out-of-band channel to the messaging platform. Both
// calls are best-effort: a failed notification never rolls back ticket
// state.
type Notifier interface {
	// NotifyOperator pings an operator about a ticket, handing over the
	// credential that scopes them to it.
	NotifyOperator(ctx context.Context, operatorExternalID, ticketID, credential string) error
	// NotifyUser sends plain text to a user on the messaging platform.
	NotifyUser(ctx context.Context, externalID, text string) error
}

// LogNotifier writes notifications to the log. It stands in when no
// redis outbox is configured, and in tests.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds the fallback notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyOperator(ctx context.Context, operatorExternalID, ticketID, credential string) error {
	n.logger.Info("notify operator",
		zap.String("operator", operatorExternalID),
		zap.String("ticket_id", ticketID),
	)
	return nil
}

func (n *LogNotifier) NotifyUser(ctx context.Context, externalID, text string) error {
	n.logger.Info("notify user",
		zap.String("user", externalID),
		zap.String("text", text),
	)
	return nil
}
