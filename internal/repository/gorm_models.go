package repository

import (
	"time"

	"github.com/spec-kit/orderdesk/internal/domain"
)

// Gorm row types mirror migrations/001_init.sql so the SQLite store and the
// Postgres store share one schema.

type ticketRow struct {
	ID           string `gorm:"primaryKey"`
	UserID       int64  `gorm:"index;not null"`
	Section      string `gorm:"not null"`
	Status       string `gorm:"not null"`
	CreatedAt    time.Time
	LastActivity time.Time `gorm:"not null"`
	Closed       bool      `gorm:"index;not null;default:false"`
	ClosedAt     *time.Time
	ReferralCode *string
	LastPromptAt *time.Time
	SnoozeUntil  *time.Time
}

func (ticketRow) TableName() string { return "tickets" }

func (r ticketRow) toDomain() domain.Ticket {
	return domain.Ticket{
		ID:           r.ID,
		UserID:       r.UserID,
		Section:      r.Section,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt.UTC(),
		LastActivity: r.LastActivity.UTC(),
		Closed:       r.Closed,
		ClosedAt:     utcPtr(r.ClosedAt),
		ReferralCode: r.ReferralCode,
		LastPromptAt: utcPtr(r.LastPromptAt),
		SnoozeUntil:  utcPtr(r.SnoozeUntil),
	}
}

type userRow struct {
	UserID  int64 `gorm:"primaryKey;autoIncrement:false"`
	Banned  bool  `gorm:"not null;default:false"`
	Started bool  `gorm:"not null;default:false"`
	Points  int   `gorm:"not null;default:0"`
}

func (userRow) TableName() string { return "users" }

type referralRow struct {
	Code      string `gorm:"primaryKey"`
	UserID    int64  `gorm:"index;not null"`
	CreatedAt time.Time
}

func (referralRow) TableName() string { return "referrals" }

type configRow struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (configRow) TableName() string { return "config" }

// GormModels lists the row types for AutoMigrate.
func GormModels() []any {
	return []any{&ticketRow{}, &userRow{}, &referralRow{}, &configRow{}}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
