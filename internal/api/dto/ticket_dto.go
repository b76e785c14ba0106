package dto

import (
	"time"

	"github.com/spec-kit/orderdesk/internal/domain"
	"github.com/spec-kit/orderdesk/internal/service"
)

// TicketSummary response.
type TicketSummary struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"user_id"`
	Section      string     `json:"section"`
	Status       string     `json:"status"`
	Closed       bool       `json:"closed"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// TicketDetailResponse adds the owner's standing to a summary.
type TicketDetailResponse struct {
	TicketSummary
	ReferralCode *string    `json:"referral_code,omitempty"`
	ReferrerID   *int64     `json:"referrer_id,omitempty"`
	OwnerPoints  int        `json:"owner_points"`
	SnoozeUntil  *time.Time `json:"snooze_until,omitempty"`
}

// NewTicketSummary maps a ticket.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:           t.ID,
		UserID:       t.UserID,
		Section:      t.Section,
		Status:       t.Status,
		Closed:       t.Closed,
		CreatedAt:    t.CreatedAt,
		LastActivity: t.LastActivity,
		ClosedAt:     t.ClosedAt,
	}
}

// NewTicketDetail maps ticket info.
func NewTicketDetail(info *service.TicketInfo) TicketDetailResponse {
	return TicketDetailResponse{
		TicketSummary: NewTicketSummary(info.Ticket),
		ReferralCode:  info.Ticket.ReferralCode,
		ReferrerID:    info.ReferrerID,
		OwnerPoints:   info.OwnerPoints,
		SnoozeUntil:   info.Ticket.SnoozeUntil,
	}
}
