package repository

import (
	"context"
	"errors"

	"smarthub/internal/domain/model"
	repo "smarthub/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StkPaymentGormRepository struct {
	db *gorm.DB
}

func NewStkPaymentGormRepository(db *gorm.DB) *StkPaymentGormRepository {
	return &StkPaymentGormRepository{db: db}
}

func (r *StkPaymentGormRepository) FindByOrderID(ctx context.Context, orderID string) (model.StkPayment, error) {
	return r.first(r.db.WithContext(ctx).Where("order_id = ?", orderID))
}

func (r *StkPaymentGormRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (model.StkPayment, error) {
	return r.first(r.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID))
}

func (r *StkPaymentGormRepository) FindByCheckoutRequestIDForUpdate(ctx context.Context, checkoutRequestID string) (model.StkPayment, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("checkout_request_id = ?", checkoutRequestID))
}

func (r *StkPaymentGormRepository) first(q *gorm.DB) (model.StkPayment, error) {
	var p model.StkPayment
	err := q.First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.StkPayment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.StkPayment{}, err
	}
	return p, nil
}

func (r *StkPaymentGormRepository) Create(ctx context.Context, p *model.StkPayment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if isDuplicate(err) {
			return repo.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *StkPaymentGormRepository) Reset(ctx context.Context, p *model.StkPayment) error {
	res := r.db.WithContext(ctx).Model(&model.StkPayment{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"amount":              p.Amount,
			"phone_number":        p.PhoneNumber,
			"account_reference":   p.AccountReference,
			"transaction_desc":    p.TransactionDesc,
			"status":              model.PaymentStatusPending,
			"merchant_request_id": "",
			"checkout_request_id": nil,
			"result_code":         nil,
			"result_desc":         "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	p.Status = model.PaymentStatusPending
	p.MerchantRequestID = ""
	p.CheckoutRequestID = nil
	p.ResultCode = nil
	p.ResultDesc = ""
	return nil
}

func (r *StkPaymentGormRepository) MarkSent(ctx context.Context, id string, merchantRequestID string, checkoutRequestID string) error {
	res := r.db.WithContext(ctx).Model(&model.StkPayment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":              model.PaymentStatusStkSent,
			"merchant_request_id": merchantRequestID,
			"checkout_request_id": checkoutRequestID,
		})
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return repo.ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *StkPaymentGormRepository) UpdateResult(ctx context.Context, id string, result model.PaymentResult) error {
	values := map[string]interface{}{
		"status":      result.Status,
		"result_code": result.ResultCode,
		"result_desc": result.ResultDesc,
	}
	if result.MpesaReceiptNumber != "" {
		values["mpesa_receipt_number"] = result.MpesaReceiptNumber
	}
	if result.TransactionDate != nil {
		values["transaction_date"] = *result.TransactionDate
	}
	if result.PhoneNumber != "" {
		values["phone_number"] = result.PhoneNumber
	}
	if result.ConfirmedAt != nil {
		values["confirmed_at"] = *result.ConfirmedAt
	}

	res := r.db.WithContext(ctx).Model(&model.StkPayment{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
