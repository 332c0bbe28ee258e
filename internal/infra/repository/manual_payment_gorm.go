package repository

import (
	"context"
	"errors"
	"time"

	"smarthub/internal/domain/model"
	repo "smarthub/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ManualPaymentGormRepository struct {
	db *gorm.DB
}

func NewManualPaymentGormRepository(db *gorm.DB) *ManualPaymentGormRepository {
	return &ManualPaymentGormRepository{db: db}
}

func (r *ManualPaymentGormRepository) Create(ctx context.Context, p *model.ManualPayment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if isDuplicate(err) {
			return repo.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *ManualPaymentGormRepository) FindByID(ctx context.Context, id string) (model.ManualPayment, error) {
	return r.find(r.db.WithContext(ctx), id)
}

func (r *ManualPaymentGormRepository) FindByIDForUpdate(ctx context.Context, id string) (model.ManualPayment, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *ManualPaymentGormRepository) find(q *gorm.DB, id string) (model.ManualPayment, error) {
	var p model.ManualPayment
	err := q.Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ManualPayment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.ManualPayment{}, err
	}
	return p, nil
}

func (r *ManualPaymentGormRepository) FindActiveByOrderID(ctx context.Context, orderID string) (model.ManualPayment, error) {
	var p model.ManualPayment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusConfirmed}).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ManualPayment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.ManualPayment{}, err
	}
	return p, nil
}

// 古い順（先に来たものから確認する）
func (r *ManualPaymentGormRepository) ListByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]model.ManualPayment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var items []model.ManualPayment
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ManualPaymentGormRepository) UpdateReview(ctx context.Context, id string, status model.PaymentStatus, reviewerID int64, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.ManualPayment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"reviewed_by": reviewerID,
			"reviewed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
