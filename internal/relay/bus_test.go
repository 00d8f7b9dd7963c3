package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/escalation-relay/internal/domain"
	"github.com/spec-kit/escalation-relay/internal/repository"
)

func newTestBus(t *testing.T) (*Bus, *repository.MemoryTicketRepository, *repository.MemoryMessageRepository) {
	t.Helper()
	tickets := repository.NewMemoryTicketRepository()
	log := repository.NewMemoryMessageRepository(tickets)
	bus := NewBus(log, time.Minute)
	t.Cleanup(bus.Stop)
	return bus, tickets, log
}

func openTicket(t *testing.T, tickets *repository.MemoryTicketRepository, id, userID string) {
	t.Helper()
	require.NoError(t, tickets.Create(context.Background(), &domain.Ticket{ID: id, UserID: userID}))
}

func TestWaitForNewTimesOutEmpty(t *testing.T) {
	bus, tickets, _ := newTestBus(t)
	openTicket(t, tickets, "t1", "u1")

	start := time.Now()
	msgs, err := bus.WaitForNew(context.Background(), "t1", 0, 2*time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestWaitForNewUnknownTicketFailsFast(t *testing.T) {
	bus, _, _ := newTestBus(t)

	start := time.Now()
	msgs, err := bus.WaitForNew(context.Background(), "no-such-ticket", 0, 2*time.Second)
	elapsed := time.Since(start)

	// Hydration surfaces the missing ticket instead of blocking the
	// full wait budget on an empty buffer.
	require.ErrorIs(t, err, domain.ErrTicketNotFound)
	assert.Nil(t, msgs)
	assert.Less(t, elapsed, time.Second)
}

func TestPublishWakesWaiter(t *testing.T) {
	bus, tickets, log := newTestBus(t)
	openTicket(t, tickets, "t1", "u1")

	type result struct {
		msgs []domain.Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		msgs, err := bus.WaitForNew(context.Background(), "t1", 0, 10*time.Second)
		done <- result{msgs, err}
	}()

	// Let the waiter block first.
	time.Sleep(50 * time.Millisecond)

	msg := domain.Message{TicketID: "t1", AuthorID: "u1", Timestamp: float64(time.Now().Unix()), Body: "we open at 9"}
	_, err := log.Append(context.Background(), &msg)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), msg))

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.msgs, 1)
		assert.Equal(t, "we open at 9", res.msgs[0].Body)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by publish")
	}
}

func TestBroadcastToConcurrentWaiters(t *testing.T) {
	bus, tickets, log := newTestBus(t)
	openTicket(t, tickets, "t1", "u1")

	const waiters = 5
	var wg sync.WaitGroup
	results := make(chan int, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs, err := bus.WaitForNew(context.Background(), "t1", 0, 10*time.Second)
			if err == nil {
				results <- len(msgs)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	msg := domain.Message{TicketID: "t1", AuthorID: "u1", Timestamp: float64(time.Now().Unix()), Body: "hello"}
	_, err := log.Append(context.Background(), &msg)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), msg))

	wg.Wait()
	close(results)
	count := 0
	for n := range results {
		assert.Equal(t, 1, n)
		count++
	}
	assert.Equal(t, waiters, count)
}

func TestColdBufferHydratesFromLog(t *testing.T) {
	bus, tickets, log := newTestBus(t)
	openTicket(t, tickets, "t1", "u1")

	// Message written before the bus ever saw the ticket, as after a
	// process restart.
	msg := domain.Message{TicketID: "t1", AuthorID: "u1", Timestamp: 100, Body: "seed"}
	_, err := log.Append(context.Background(), &msg)
	require.NoError(t, err)

	msgs, err := bus.WaitForNew(context.Background(), "t1", 0, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "seed", msgs[0].Body)
}

func TestWatermarkFiltersOldMessages(t *testing.T) {
	bus, tickets, log := newTestBus(t)
	openTicket(t, tickets, "t1", "u1")

	for i, body := range []string{"old", "new"} {
		msg := domain.Message{TicketID: "t1", AuthorID: "u1", Timestamp: float64(100 + i*100), Body: body}
		_, err := log.Append(context.Background(), &msg)
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), msg))
	}

	msgs, err := bus.WaitForNew(context.Background(), "t1", 150, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].Body)

	// Inclusive boundary.
	msgs, err = bus.WaitForNew(context.Background(), "t1", 200, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestPublishDoesNotDuplicateHydratedMessage(t *testing.T) {
	bus, tickets, log := newTestBus(t)
	openTicket(t, tickets, "t1", "u1")

	msg := domain.Message{TicketID: "t1", AuthorID: "u1", Timestamp: 100, Body: "once"}
	_, err := log.Append(context.Background(), &msg)
	require.NoError(t, err)

	// Cold publish hydrates first and reads the message back from the
	// log; the append must not double it.
	require.NoError(t, bus.Publish(context.Background(), msg))

	msgs, err := bus.Snapshot(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestUnrelatedTicketsDoNotWakeEachOther(t *testing.T) {
	bus, tickets, log := newTestBus(t)
	openTicket(t, tickets, "t1", "u1")
	openTicket(t, tickets, "t2", "u2")

	done := make(chan []domain.Message, 1)
	go func() {
		msgs, _ := bus.WaitForNew(context.Background(), "t1", 0, 500*time.Millisecond)
		done <- msgs
	}()

	time.Sleep(50 * time.Millisecond)
	msg := domain.Message{TicketID: "t2", AuthorID: "u2", Timestamp: float64(time.Now().Unix()), Body: "other"}
	_, err := log.Append(context.Background(), &msg)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), msg))

	msgs := <-done
	assert.Empty(t, msgs)
}
