package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-relay/internal/domain"
)

// UserRepository encapsulates user persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	ListOperators(ctx context.Context) ([]domain.User, error)
	SetRoutingMode(ctx context.Context, id string, mode domain.RoutingMode) error
	SetOperator(ctx context.Context, id string, isOperator bool) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates repository.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (external_id, display_name, is_operator, routing_mode)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	if user.RoutingMode == "" {
		user.RoutingMode = domain.RoutingAutomated
	}
	return r.pool.QueryRow(ctx, query,
		user.ExternalID,
		user.DisplayName,
		user.IsOperator,
		user.RoutingMode,
	).Scan(&user.ID, &user.CreatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, external_id, display_name, is_operator, routing_mode, created_at
        FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	const query = `
        SELECT id, external_id, display_name, is_operator, routing_mode, created_at
        FROM users WHERE external_id=$1`
	return r.fetchSingle(ctx, query, externalID)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.ExternalID,
		&user.DisplayName,
		&user.IsOperator,
		&user.RoutingMode,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListOperators(ctx context.Context) ([]domain.User, error) {
	const query = `
        SELECT id, external_id, display_name, is_operator, routing_mode, created_at
        FROM users WHERE is_operator ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(
			&user.ID,
			&user.ExternalID,
			&user.DisplayName,
			&user.IsOperator,
			&user.RoutingMode,
			&user.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *userRepository) SetRoutingMode(ctx context.Context, id string, mode domain.RoutingMode) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET routing_mode=$1 WHERE id=$2`, mode, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) SetOperator(ctx context.Context, id string, isOperator bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET is_operator=$1 WHERE id=$2`, isOperator, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
