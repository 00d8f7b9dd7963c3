package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-relay/internal/domain"
)

const foreignKeyViolation = "23503"

// MessageRepository is the append-only conversation log. It stays a dumb
// durable primitive: it does not reject writes to a closed ticket, that
// policy lives in the orchestrator. All three methods report
// ErrTicketNotFound when the ticket does not exist.
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) (int64, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
	ListSince(ctx context.Context, ticketID string, watermark float64) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository instantiates repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Append(ctx context.Context, msg *domain.Message) (int64, error) {
	const query = `
        INSERT INTO messages (ticket_id, author_id, ts, body)
        VALUES ($1,$2,$3,$4)
        RETURNING seq`
	err := r.pool.QueryRow(ctx, query, msg.TicketID, msg.AuthorID, msg.Timestamp, msg.Body).Scan(&msg.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return 0, domain.ErrTicketNotFound
		}
		return 0, err
	}
	return msg.Seq, nil
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT seq, ticket_id, author_id, ts, body
        FROM messages WHERE ticket_id=$1
        ORDER BY ts, seq`
	return r.list(ctx, ticketID, query, ticketID)
}

func (r *messageRepository) ListSince(ctx context.Context, ticketID string, watermark float64) ([]domain.Message, error) {
	const query = `
        SELECT seq, ticket_id, author_id, ts, body
        FROM messages WHERE ticket_id=$1 AND ts >= $2
        ORDER BY ts, seq`
	return r.list(ctx, ticketID, query, ticketID, watermark)
}

func (r *messageRepository) list(ctx context.Context, ticketID, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// An empty result is ambiguous: no messages yet, or no such ticket.
	if len(result) == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticketID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrTicketNotFound
		}
	}
	return result, nil
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.Seq,
			&msg.TicketID,
			&msg.AuthorID,
			&msg.Timestamp,
			&msg.Body,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
