package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is one queued notification, drained by the external messenger
// process (the bot front-end) from the recipient's outbox list.
type Envelope struct {
	Kind       string    `json:"kind"` // "operator_invite" or "text"
	Recipient  string    `json:"recipient"`
	TicketID   string    `json:"ticket_id,omitempty"`
	Credential string    `json:"credential,omitempty"`
	Text       string    `json:"text,omitempty"`
	QueuedAt   time.Time `json:"queued_at"`
}

// RedisNotifier queues notifications into per-recipient redis lists.
type RedisNotifier struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisNotifier builds a notifier over the given client.
func NewRedisNotifier(client *redis.Client, prefix string, logger *zap.Logger) *RedisNotifier {
	if prefix == "" {
		prefix = "relay:outbox"
	}
	return &RedisNotifier{client: client, prefix: prefix, logger: logger}
}

func (n *RedisNotifier) NotifyOperator(ctx context.Context, operatorExternalID, ticketID, credential string) error {
	return n.push(ctx, operatorExternalID, Envelope{
		Kind:       "operator_invite",
		Recipient:  operatorExternalID,
		TicketID:   ticketID,
		Credential: credential,
		QueuedAt:   time.Now(),
	})
}

func (n *RedisNotifier) NotifyUser(ctx context.Context, externalID, text string) error {
	return n.push(ctx, externalID, Envelope{
		Kind:      "text",
		Recipient: externalID,
		Text:      text,
		QueuedAt:  time.Now(),
	})
}

func (n *RedisNotifier) push(ctx context.Context, recipient string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	key := n.prefix + ":" + recipient
	if err := n.client.LPush(ctx, key, payload).Err(); err != nil {
		// Best-effort channel: log and move on, ticket state is already
		// durable.
		n.logger.Warn("notification enqueue failed",
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		return err
	}
	return nil
}
