package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/escalation-relay/internal/domain"
)

// In-memory implementations of the repository interfaces. They back unit
// tests and DSN-less development runs; semantics mirror the postgres
// implementations, including the one-open-ticket invariant.

// MemoryUserRepository is a map-backed UserRepository.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
	next  int
}

// NewMemoryUserRepository builds an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*domain.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	if user.ID == "" {
		user.ID = "user-" + strconv.Itoa(r.next)
	}
	if user.RoutingMode == "" {
		user.RoutingMode = domain.RoutingAutomated
	}
	user.CreatedAt = time.Now()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *MemoryUserRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.ExternalID == externalID {
			cp := *user
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *MemoryUserRepository) ListOperators(ctx context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.User
	for _, user := range r.users {
		if user.IsOperator {
			result = append(result, *user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryUserRepository) SetRoutingMode(ctx context.Context, id string, mode domain.RoutingMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.RoutingMode = mode
	return nil
}

func (r *MemoryUserRepository) SetOperator(ctx context.Context, id string, isOperator bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.IsOperator = isOperator
	return nil
}

// MemoryTicketRepository is a map-backed TicketRepository.
type MemoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

// NewMemoryTicketRepository builds an empty repository.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	for _, existing := range r.tickets {
		if existing.UserID == ticket.UserID && existing.Status == domain.TicketStatusOpen {
			return domain.ErrTicketAlreadyOpen
		}
	}
	ticket.CreatedAt = time.Now()
	cp := *ticket
	r.tickets[ticket.ID] = &cp
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	cp := *ticket
	return &cp, nil
}

func (r *MemoryTicketRepository) FindOpenByUser(ctx context.Context, userID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.UserID == userID && ticket.Status == domain.TicketStatusOpen {
			cp := *ticket
			return &cp, nil
		}
	}
	return nil, domain.ErrTicketNotFound
}

func (r *MemoryTicketRepository) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if ticket.Status == domain.TicketStatusClosed {
		return domain.ErrTicketAlreadyClosed
	}
	now := time.Now()
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &now
	return nil
}

// MemoryMessageRepository is a slice-backed MessageRepository.
type MemoryMessageRepository struct {
	mu      sync.Mutex
	tickets *MemoryTicketRepository
	msgs    []domain.Message
	nextSeq int64
}

// NewMemoryMessageRepository builds an empty log. The ticket repository
// stands in for the foreign key check.
func NewMemoryMessageRepository(tickets *MemoryTicketRepository) *MemoryMessageRepository {
	return &MemoryMessageRepository{tickets: tickets}
}

func (r *MemoryMessageRepository) Append(ctx context.Context, msg *domain.Message) (int64, error) {
	if r.tickets != nil {
		if _, err := r.tickets.GetByID(ctx, msg.TicketID); err != nil {
			return 0, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	msg.Seq = r.nextSeq
	r.msgs = append(r.msgs, *msg)
	return msg.Seq, nil
}

func (r *MemoryMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	return r.ListSince(ctx, ticketID, 0)
}

func (r *MemoryMessageRepository) ListSince(ctx context.Context, ticketID string, watermark float64) ([]domain.Message, error) {
	if r.tickets != nil {
		if _, err := r.tickets.GetByID(ctx, ticketID); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, msg := range r.msgs {
		if msg.TicketID == ticketID && msg.Timestamp >= watermark {
			result = append(result, msg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// MemoryInteractionRepository is a map-backed InteractionRepository.
type MemoryInteractionRepository struct {
	mu    sync.Mutex
	items map[int64]*domain.Interaction
	next  int64
}

// NewMemoryInteractionRepository builds an empty repository.
func NewMemoryInteractionRepository() *MemoryInteractionRepository {
	return &MemoryInteractionRepository{items: make(map[int64]*domain.Interaction)}
}

func (r *MemoryInteractionRepository) Create(ctx context.Context, it *domain.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	it.ID = r.next
	it.CreatedAt = time.Now()
	cp := *it
	r.items[it.ID] = &cp
	return nil
}

func (r *MemoryInteractionRepository) GetForUser(ctx context.Context, userID string, id int64) (*domain.Interaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.UserID != userID {
		return nil, domain.ErrInteractionNotFound
	}
	cp := *it
	return &cp, nil
}

func (r *MemoryInteractionRepository) MarkResolved(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return domain.ErrInteractionNotFound
	}
	it.Resolved = true
	return nil
}
