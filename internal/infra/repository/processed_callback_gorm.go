package repository

import (
	"context"

	"smarthub/internal/domain/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProcessedCallbackGormRepository struct {
	db *gorm.DB
}

func NewProcessedCallbackGormRepository(db *gorm.DB) *ProcessedCallbackGormRepository {
	return &ProcessedCallbackGormRepository{db: db}
}

// 一意違反でtxを壊さないようON CONFLICT DO NOTHINGで入れる
func (r *ProcessedCallbackGormRepository) Insert(ctx context.Context, pc model.ProcessedCallback) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&pc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
