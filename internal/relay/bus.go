package relay

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/spec-kit/escalation-relay/internal/domain"
	"github.com/spec-kit/escalation-relay/internal/repository"
)

// Bus is the in-memory fan-out layer for long-poll delivery. The durable
// log is the source of truth; every buffer here is a cache that can be
// rebuilt from it at any time, so a publish lost between the durable
// append and the in-memory append is recovered on the next hydration.
type Bus struct {
	log     repository.MessageRepository
	buffers *ttlcache.Cache[string, *ticketBuffer]
}

// ticketBuffer holds the buffered messages of one ticket. Each buffer
// carries its own lock so unrelated tickets never contend.
type ticketBuffer struct {
	mu       sync.Mutex
	hydrated bool
	msgs     []domain.Message
	wake     chan struct{}
}

// NewBus builds a bus over the given conversation log. Buffers untouched
// for idleTTL are evicted and rebuilt from the log on demand.
func NewBus(log repository.MessageRepository, idleTTL time.Duration) *Bus {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	bus := &Bus{
		log: log,
		buffers: ttlcache.New(
			ttlcache.WithTTL[string, *ticketBuffer](idleTTL),
		),
	}
	go bus.buffers.Start()
	return bus
}

// Stop halts the buffer eviction loop.
func (b *Bus) Stop() {
	b.buffers.Stop()
}

func (b *Bus) buffer(ticketID string) *ticketBuffer {
	item, _ := b.buffers.GetOrSet(ticketID, &ticketBuffer{wake: make(chan struct{})})
	return item.Value()
}

// loads the full log into the buffer. Caller holds buf.mu.
func (b *Bus) hydrateLocked(ctx context.Context, ticketID string, buf *ticketBuffer) error {
	if buf.hydrated {
		return nil
	}
	msgs, err := b.log.ListByTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	buf.msgs = msgs
	buf.hydrated = true
	return nil
}

// Publish appends msg to the ticket's buffer and wakes every waiter
// currently blocked on it. The message must already be in the durable
// log; a cold buffer is hydrated first so ordering survives restarts.
func (b *Bus) Publish(ctx context.Context, msg domain.Message) error {
	buf := b.buffer(msg.TicketID)
	buf.mu.Lock()
	defer buf.mu.Unlock()

	if err := b.hydrateLocked(ctx, msg.TicketID, buf); err != nil {
		return err
	}

	// Hydration may already have read the message back from the log.
	if n := len(buf.msgs); n == 0 || buf.msgs[n-1].Seq < msg.Seq {
		buf.msgs = append(buf.msgs, msg)
	}

	close(buf.wake)
	buf.wake = make(chan struct{})
	return nil
}

// WaitForNew blocks until at least one buffered message for ticketID has
// a timestamp at or past watermark, maxWait elapses, or ctx is done.
// Timeout is not an error: it returns an empty slice and callers retry
// with an updated watermark. Every concurrent waiter independently
// receives the full matching set.
func (b *Bus) WaitForNew(ctx context.Context, ticketID string, watermark float64, maxWait time.Duration) ([]domain.Message, error) {
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	for {
		// Re-resolve the buffer each round in case it was evicted
		// while we were blocked.
		buf := b.buffer(ticketID)

		buf.mu.Lock()
		if err := b.hydrateLocked(ctx, ticketID, buf); err != nil {
			buf.mu.Unlock()
			return nil, err
		}
		matching := filterSince(buf.msgs, watermark)
		wake := buf.wake
		buf.mu.Unlock()

		if len(matching) > 0 {
			return matching, nil
		}

		select {
		case <-wake:
		case <-deadline.C:
			return []domain.Message{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Snapshot returns the buffered view of a ticket, hydrating if cold.
func (b *Bus) Snapshot(ctx context.Context, ticketID string) ([]domain.Message, error) {
	buf := b.buffer(ticketID)
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if err := b.hydrateLocked(ctx, ticketID, buf); err != nil {
		return nil, err
	}
	out := make([]domain.Message, len(buf.msgs))
	copy(out, buf.msgs)
	return out, nil
}

func filterSince(msgs []domain.Message, watermark float64) []domain.Message {
	var result []domain.Message
	for _, msg := range msgs {
		if msg.Timestamp >= watermark {
			result = append(result, msg)
		}
	}
	return result
}
