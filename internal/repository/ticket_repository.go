package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-relay/internal/domain"
)

const uniqueViolation = "23505"

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	FindOpenByUser(ctx context.Context, userID string) (*domain.Ticket, error)
	Close(ctx context.Context, id string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, user_id, status)
        VALUES ($1,$2,$3)
        RETURNING created_at`
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	err := r.pool.QueryRow(ctx, query, ticket.ID, ticket.UserID, ticket.Status).Scan(&ticket.CreatedAt)
	if err != nil {
		// The partial unique index on (user_id) WHERE status='OPEN' is
		// what actually holds the one-open-ticket invariant; concurrent
		// opens race on this insert and exactly one wins.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrTicketAlreadyOpen
		}
		return err
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, user_id, status, created_at, closed_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) FindOpenByUser(ctx context.Context, userID string) (*domain.Ticket, error) {
	const query = `
        SELECT id, user_id, status, created_at, closed_at
        FROM tickets WHERE user_id=$1 AND status=$2`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, userID, domain.TicketStatusOpen).Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

// Close flips OPEN to CLOSED exactly once. A second close reports
// ErrTicketAlreadyClosed rather than succeeding silently, so operators
// get feedback on a stale link.
func (r *ticketRepository) Close(ctx context.Context, id string) error {
	const query = `
        UPDATE tickets SET status=$1, closed_at=NOW()
        WHERE id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, domain.TicketStatusClosed, id, domain.TicketStatusOpen)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrTicketAlreadyClosed
	}
	return nil
}
