package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spec-kit/orderdesk/internal/domain"
)

type gormReferralRepository struct {
	db *gorm.DB
}

// NewGormReferralRepository returns a ReferralRepository over gorm.
func NewGormReferralRepository(db *gorm.DB) ReferralRepository {
	return &gormReferralRepository{db: db}
}

func (r *gormReferralRepository) Create(ctx context.Context, referral *domain.Referral) (bool, error) {
	row := referralRow{Code: referral.Code, UserID: referral.UserID, CreatedAt: referral.CreatedAt}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *gormReferralRepository) GetByCode(ctx context.Context, code string) (*domain.Referral, error) {
	var row referralRow
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		return nil, err
	}
	return &domain.Referral{Code: row.Code, UserID: row.UserID, CreatedAt: row.CreatedAt.UTC()}, nil
}

func (r *gormReferralRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Referral, error) {
	var rows []referralRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Referral, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.Referral{Code: row.Code, UserID: row.UserID, CreatedAt: row.CreatedAt.UTC()})
	}
	return result, nil
}
