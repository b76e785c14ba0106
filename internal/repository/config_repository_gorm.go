package repository

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormConfigRepository struct {
	db *gorm.DB
}

// NewGormConfigRepository returns a ConfigRepository over gorm.
func NewGormConfigRepository(db *gorm.DB) ConfigRepository {
	return &gormConfigRepository{db: db}
}

func (r *gormConfigRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var row configRow
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Value, true, nil
}

func (r *gormConfigRepository) Set(ctx context.Context, key, value string) error {
	row := configRow{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
}

func (r *gormConfigRepository) NextSequence(ctx context.Context, key string) (int64, error) {
	var raw string
	if err := r.db.WithContext(ctx).Raw(sequenceQuery("?"), key).Row().Scan(&raw); err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
