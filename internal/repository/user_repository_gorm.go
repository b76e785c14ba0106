package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spec-kit/orderdesk/internal/domain"
)

type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository returns a UserRepository over gorm.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) Register(ctx context.Context, id int64) error {
	row := userRow{UserID: id, Started: true}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{"started": true}),
	}).Create(&row).Error
}

func (r *gormUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &domain.User{ID: row.UserID, Banned: row.Banned, Started: row.Started, Points: row.Points}, nil
}

func (r *gormUserRepository) SetBanned(ctx context.Context, id int64, banned bool) error {
	row := userRow{UserID: id, Started: true, Banned: banned}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{"banned": banned}),
	}).Select("user_id", "started", "banned").Create(&row).Error
}

func (r *gormUserRepository) AddPoints(ctx context.Context, id int64, delta int) (int, error) {
	const query = `
        INSERT INTO users (user_id, banned, started, points)
        VALUES (?, ?, ?, CASE WHEN ? > 0 THEN ? ELSE 0 END)
        ON CONFLICT (user_id) DO UPDATE
        SET points = CASE WHEN users.points + ? > 0 THEN users.points + ? ELSE 0 END
        RETURNING points`
	var points int
	row := r.db.WithContext(ctx).Raw(query, id, false, true, delta, delta, delta, delta).Row()
	if err := row.Scan(&points); err != nil {
		return 0, err
	}
	return points, nil
}
