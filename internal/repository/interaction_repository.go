package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-relay/internal/domain"
)

// InteractionRepository stores automated question/answer exchanges for
// the feedback flow.
type InteractionRepository interface {
	Create(ctx context.Context, it *domain.Interaction) error
	GetForUser(ctx context.Context, userID string, id int64) (*domain.Interaction, error)
	MarkResolved(ctx context.Context, id int64) error
}

type interactionRepository struct {
	pool *pgxpool.Pool
}

// NewInteractionRepository instantiates repository.
func NewInteractionRepository(pool *pgxpool.Pool) InteractionRepository {
	return &interactionRepository{pool: pool}
}

func (r *interactionRepository) Create(ctx context.Context, it *domain.Interaction) error {
	const query = `
        INSERT INTO interactions (user_id, question, answer, resolved)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, it.UserID, it.Question, it.Answer, it.Resolved).
		Scan(&it.ID, &it.CreatedAt)
}

func (r *interactionRepository) GetForUser(ctx context.Context, userID string, id int64) (*domain.Interaction, error) {
	const query = `
        SELECT id, user_id, question, answer, resolved, created_at
        FROM interactions WHERE id=$1 AND user_id=$2`
	var it domain.Interaction
	if err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&it.ID,
		&it.UserID,
		&it.Question,
		&it.Answer,
		&it.Resolved,
		&it.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInteractionNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *interactionRepository) MarkResolved(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE interactions SET resolved=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrInteractionNotFound
	}
	return nil
}
