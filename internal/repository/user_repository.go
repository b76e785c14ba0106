package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/orderdesk/internal/domain"
)

// UserRepository defines persistence access for chat users. Users are created
// lazily by any write that references them and are never deleted.
type UserRepository interface {
	Register(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	SetBanned(ctx context.Context, id int64, banned bool) error
	// AddPoints applies delta and returns the new balance. Debits stop at zero.
	AddPoints(ctx context.Context, id int64, delta int) (int, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Register(ctx context.Context, id int64) error {
	const query = `
        INSERT INTO users (user_id, started) VALUES ($1, TRUE)
        ON CONFLICT (user_id) DO UPDATE SET started=TRUE`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT user_id, banned, started, points FROM users WHERE user_id=$1`

	var user domain.User
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Banned,
		&user.Started,
		&user.Points,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) SetBanned(ctx context.Context, id int64, banned bool) error {
	const query = `
        INSERT INTO users (user_id, started, banned) VALUES ($1, TRUE, $2)
        ON CONFLICT (user_id) DO UPDATE SET banned=EXCLUDED.banned`
	_, err := r.pool.Exec(ctx, query, id, banned)
	return err
}

func (r *userRepository) AddPoints(ctx context.Context, id int64, delta int) (int, error) {
	const query = `
        INSERT INTO users (user_id, started, points) VALUES ($1, TRUE, GREATEST($2::int, 0))
        ON CONFLICT (user_id) DO UPDATE SET points=GREATEST(users.points + $2::int, 0)
        RETURNING points`
	var points int
	if err := r.pool.QueryRow(ctx, query, id, delta).Scan(&points); err != nil {
		return 0, err
	}
	return points, nil
}
