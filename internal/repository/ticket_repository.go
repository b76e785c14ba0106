package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/orderdesk/internal/domain"
)

// TicketRepository encapsulates ticket persistence. Every mutation is a single
// statement so background sweeps and chat events never need an outer lock.
// Mutations on open tickets report false when the ticket is absent or closed.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListOpen(ctx context.Context) ([]domain.Ticket, error)
	ListOpenByUser(ctx context.Context, userID int64) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, id, status string) (bool, error)
	Close(ctx context.Context, id string, at time.Time, status string) (bool, error)
	Touch(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkPrompted records a prompt unless one is already pending, i.e. a prompt
	// exists and no snooze has expired since.
	MarkPrompted(ctx context.Context, id string, at time.Time) (bool, error)
	Snooze(ctx context.Context, id string, until time.Time) (bool, error)
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const ticketColumns = `id, user_id, section, status, created_at, last_activity, closed, closed_at,
               referral_code, last_prompt_at, snooze_until`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, user_id, section, status, created_at, last_activity, closed, referral_code)
        VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.UserID,
		ticket.Section,
		ticket.Status,
		ticket.CreatedAt,
		ticket.LastActivity,
		ticket.ReferralCode,
	)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE closed=FALSE ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListOpenByUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE user_id=$1 AND closed=FALSE ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	const query = `UPDATE tickets SET status=$1 WHERE id=$2 AND closed=FALSE`
	return r.exec(ctx, query, status, id)
}

func (r *ticketRepository) Close(ctx context.Context, id string, at time.Time, status string) (bool, error) {
	const query = `
        UPDATE tickets SET closed=TRUE, closed_at=$1, status=COALESCE(NULLIF($2, ''), status)
        WHERE id=$3 AND closed=FALSE`
	return r.exec(ctx, query, at, status, id)
}

func (r *ticketRepository) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE tickets SET last_activity=GREATEST(last_activity, $1), last_prompt_at=NULL, snooze_until=NULL
        WHERE id=$2 AND closed=FALSE`
	return r.exec(ctx, query, at, id)
}

func (r *ticketRepository) MarkPrompted(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE tickets SET last_prompt_at=$1, snooze_until=NULL
        WHERE id=$2 AND closed=FALSE
          AND (last_prompt_at IS NULL OR (snooze_until IS NOT NULL AND snooze_until <= $1))`
	return r.exec(ctx, query, at, id)
}

func (r *ticketRepository) Snooze(ctx context.Context, id string, until time.Time) (bool, error) {
	const query = `UPDATE tickets SET snooze_until=$1 WHERE id=$2 AND closed=FALSE`
	return r.exec(ctx, query, until, id)
}

func (r *ticketRepository) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM tickets WHERE closed=TRUE AND COALESCE(closed_at, last_activity) < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.Section,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.LastActivity,
		&ticket.Closed,
		&ticket.ClosedAt,
		&ticket.ReferralCode,
		&ticket.LastPromptAt,
		&ticket.SnoozeUntil,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
