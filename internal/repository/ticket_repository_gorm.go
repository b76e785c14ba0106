package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/spec-kit/orderdesk/internal/domain"
)

type gormTicketRepository struct {
	db *gorm.DB
}

// NewGormTicketRepository returns a TicketRepository over gorm (SQLite by default).
func NewGormTicketRepository(db *gorm.DB) TicketRepository {
	return &gormTicketRepository{db: db}
}

func (r *gormTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	row := ticketRow{
		ID:           ticket.ID,
		UserID:       ticket.UserID,
		Section:      ticket.Section,
		Status:       ticket.Status,
		CreatedAt:    ticket.CreatedAt,
		LastActivity: ticket.LastActivity,
		ReferralCode: ticket.ReferralCode,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *gormTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var row ticketRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	ticket := row.toDomain()
	return &ticket, nil
}

func (r *gormTicketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	var rows []ticketRow
	if err := r.db.WithContext(ctx).Where("closed = ?", false).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainTickets(rows), nil
}

func (r *gormTicketRepository) ListOpenByUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	var rows []ticketRow
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND closed = ?", userID, false).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainTickets(rows), nil
}

func (r *gormTicketRepository) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	return r.updateOpen(ctx, id, map[string]any{"status": status})
}

func (r *gormTicketRepository) Close(ctx context.Context, id string, at time.Time, status string) (bool, error) {
	values := map[string]any{"closed": true, "closed_at": at}
	if status != "" {
		values["status"] = status
	}
	return r.updateOpen(ctx, id, values)
}

func (r *gormTicketRepository) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.updateOpen(ctx, id, map[string]any{
		"last_activity":  gorm.Expr("CASE WHEN last_activity > ? THEN last_activity ELSE ? END", at, at),
		"last_prompt_at": nil,
		"snooze_until":   nil,
	})
}

func (r *gormTicketRepository) MarkPrompted(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ticketRow{}).
		Where("id = ? AND closed = ?", id, false).
		Where("(last_prompt_at IS NULL OR (snooze_until IS NOT NULL AND snooze_until <= ?))", at).
		Updates(map[string]any{"last_prompt_at": at, "snooze_until": nil})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormTicketRepository) Snooze(ctx context.Context, id string, until time.Time) (bool, error) {
	return r.updateOpen(ctx, id, map[string]any{"snooze_until": until})
}

func (r *gormTicketRepository) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("closed = ? AND COALESCE(closed_at, last_activity) < ?", true, cutoff).
		Delete(&ticketRow{})
	return result.RowsAffected, result.Error
}

func (r *gormTicketRepository) updateOpen(ctx context.Context, id string, values map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ticketRow{}).
		Where("id = ? AND closed = ?", id, false).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func toDomainTickets(rows []ticketRow) []domain.Ticket {
	tickets := make([]domain.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, row.toDomain())
	}
	return tickets
}
