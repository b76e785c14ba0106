package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/orderdesk/internal/domain"
)

// ReferralRepository stores referral codes.
type ReferralRepository interface {
	// Create inserts the referral and reports false when the code is already taken.
	Create(ctx context.Context, referral *domain.Referral) (bool, error)
	GetByCode(ctx context.Context, code string) (*domain.Referral, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Referral, error)
}

type referralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository builds the Postgres repository.
func NewReferralRepository(pool *pgxpool.Pool) ReferralRepository {
	return &referralRepository{pool: pool}
}

func (r *referralRepository) Create(ctx context.Context, referral *domain.Referral) (bool, error) {
	const query = `
        INSERT INTO referrals (code, user_id, created_at) VALUES ($1,$2,$3)
        ON CONFLICT (code) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query, referral.Code, referral.UserID, referral.CreatedAt)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *referralRepository) GetByCode(ctx context.Context, code string) (*domain.Referral, error) {
	const query = `SELECT code, user_id, created_at FROM referrals WHERE code=$1`
	var referral domain.Referral
	if err := r.pool.QueryRow(ctx, query, code).Scan(
		&referral.Code,
		&referral.UserID,
		&referral.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &referral, nil
}

func (r *referralRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Referral, error) {
	const query = `SELECT code, user_id, created_at FROM referrals WHERE user_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Referral
	for rows.Next() {
		var referral domain.Referral
		if err := rows.Scan(&referral.Code, &referral.UserID, &referral.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, referral)
	}
	return result, rows.Err()
}
