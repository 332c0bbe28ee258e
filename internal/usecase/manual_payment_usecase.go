package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smarthub/internal/domain/model"
	"smarthub/internal/gateway/mpesa"
	"smarthub/internal/phone"
	repo "smarthub/internal/repository"
)

const maxRawMessageLen = 1000

// 確認SMSを貼り付けて払う方式。
// STKの状態機械は通らず、管理者がpendingから直接確定/失敗にする。
type ManualPaymentUsecase struct {
	tx       repo.TransactionManager
	payments repo.ManualPaymentRepository
	events   PaymentEventPublisher
	log      *zap.Logger
}

func NewManualPaymentUsecase(
	tx repo.TransactionManager,
	payments repo.ManualPaymentRepository,
	events PaymentEventPublisher,
	log *zap.Logger,
) *ManualPaymentUsecase {
	return &ManualPaymentUsecase{tx: tx, payments: payments, events: events, log: log}
}

type SubmitManualPaymentInput struct {
	OrderID string
	Message string
}

type ReviewManualPaymentInput struct {
	Decision string
}

type ManualPaymentOutput struct {
	ID              string              `json:"id"`
	OrderID         string              `json:"order_id"`
	UserID          int64               `json:"user_id"`
	Amount          int64               `json:"amount"`
	PhoneNumber     string              `json:"phone_number,omitempty"`
	TransactionCode string              `json:"transaction_code"`
	Status          model.PaymentStatus `json:"status"`
	ReviewedBy      *int64              `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func (u *ManualPaymentUsecase) Submit(ctx context.Context, userID int64, in SubmitManualPaymentInput) (ManualPaymentOutput, error) {
	if userID <= 0 {
		return ManualPaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		return ManualPaymentOutput{}, NewHTTPError(http.StatusBadRequest, "order_id is required")
	}
	raw := strings.TrimSpace(in.Message)
	if raw == "" || len(raw) > maxRawMessageLen {
		return ManualPaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid message")
	}

	msg, err := mpesa.ParseConfirmationMessage(raw)
	if err != nil {
		return ManualPaymentOutput{}, NewHTTPError(http.StatusBadRequest, "unrecognized mpesa message")
	}
	msisdn := ""
	if msg.PhoneNumber != "" {
		if n, err := phone.Normalize(msg.PhoneNumber); err == nil {
			msisdn = n
		}
	}

	var p model.ManualPayment
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if o.PaymentMethod != model.PaymentMethodMpesaManual {
			return NewHTTPError(http.StatusBadRequest, "order does not use manual payment")
		}
		switch o.Status {
		case model.OrderStatusPending:
		case model.OrderStatusFailed:
			// 却下後の再提出
			if err := r.Orders().UpdateStatus(ctx, o.ID, model.OrderStatusPending); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		default:
			return NewHTTPError(http.StatusBadRequest, "order is not awaiting payment")
		}

		// 1注文につき有効な手動決済は1件（注文の行ロックで直列化される）
		active, err := r.ManualPayments().FindActiveByOrderID(ctx, orderID)
		switch {
		case err == nil && active.Status == model.PaymentStatusConfirmed:
			return NewHTTPError(http.StatusConflict, "order already paid")
		case err == nil:
			return NewHTTPError(http.StatusConflict, "payment already submitted")
		case !errors.Is(err, repo.ErrNotFound):
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if o.TotalAmount != msg.Amount {
			u.log.Warn("manual payment amount differs from order total",
				zap.String("order_id", orderID),
				zap.Int64("amount", msg.Amount),
				zap.Int64("order_total", o.TotalAmount),
			)
		}

		p = model.ManualPayment{
			ID:              uuid.NewString(),
			OrderID:         orderID,
			UserID:          userID,
			Amount:          msg.Amount,
			PhoneNumber:     msisdn,
			TransactionCode: msg.TransactionCode,
			RawMessage:      raw,
			Status:          model.PaymentStatusPending,
			CreatedAt:       time.Now(),
		}
		if err := r.ManualPayments().Create(ctx, &p); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return NewHTTPError(http.StatusConflict, "transaction code already submitted")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return ManualPaymentOutput{}, err
	}

	u.log.Info("manual payment submitted",
		zap.String("payment_id", p.ID),
		zap.String("order_id", orderID),
		zap.String("transaction_code", p.TransactionCode),
	)
	return toManualPaymentOutput(p), nil
}

// 管理者がpendingの手動決済を確定/失敗にする。注文も同じtxで動かす。
func (u *ManualPaymentUsecase) Review(ctx context.Context, adminID int64, paymentID string, in ReviewManualPaymentInput) (ManualPaymentOutput, error) {
	if adminID <= 0 {
		return ManualPaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(paymentID) == "" {
		return ManualPaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	decision := model.PaymentStatus(strings.TrimSpace(in.Decision))
	var orderStatus model.OrderStatus
	switch decision {
	case model.PaymentStatusConfirmed:
		orderStatus = model.OrderStatusConfirmed
	case model.PaymentStatusFailed:
		orderStatus = model.OrderStatusFailed
	default:
		return ManualPaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid decision")
	}

	log := u.log.With(zap.String("payment_id", paymentID), zap.Int64("admin_id", adminID))

	var p model.ManualPayment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		p, err = r.ManualPayments().FindByIDForUpdate(ctx, paymentID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if p.Status != model.PaymentStatusPending {
			return NewHTTPError(http.StatusBadRequest, "payment already reviewed")
		}

		// 確定は注文もconfirmedにできるときだけ
		if decision == model.PaymentStatusConfirmed {
			o, err := r.Orders().FindByIDForUpdate(ctx, p.OrderID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusConflict, "order not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if o.Status != orderStatus && !model.CanTransition(o.Status, orderStatus) {
				return NewHTTPError(http.StatusConflict, "order cannot be confirmed")
			}
		}

		now := time.Now()
		if err := r.ManualPayments().UpdateReview(ctx, p.ID, decision, adminID, now); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := settleOrder(ctx, r, p.OrderID, orderStatus, log); err != nil {
			return err
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminID,
			Action:       model.AuditActionReviewManualPayment,
			ResourceType: model.AuditResourcePayment,
			ResourceID:   p.ID,
			BeforeJSON:   statusJSON(string(p.Status)),
			AfterJSON:    statusJSON(string(decision)),
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		p.Status = decision
		p.ReviewedBy = &adminID
		p.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return ManualPaymentOutput{}, err
	}

	eventType := model.PaymentEventFailed
	if decision == model.PaymentStatusConfirmed {
		eventType = model.PaymentEventConfirmed
	}
	if u.events != nil {
		if err := u.events.PublishPaymentEvent(ctx, model.PaymentEvent{
			Type:          eventType,
			PaymentID:     p.ID,
			OrderID:       p.OrderID,
			Amount:        p.Amount,
			Status:        decision,
			ReceiptNumber: p.TransactionCode,
			Timestamp:     *p.ReviewedAt,
		}); err != nil {
			log.Warn("failed to publish payment event", zap.Error(err))
		}
	}

	log.Info("manual payment reviewed", zap.String("status", string(decision)))
	return toManualPaymentOutput(p), nil
}

// 管理画面の確認待ち一覧
func (u *ManualPaymentUsecase) ListPending(ctx context.Context, limit int) ([]ManualPaymentOutput, error) {
	if limit < 1 || limit > 200 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	items, err := u.payments.ListByStatus(ctx, model.PaymentStatusPending, limit)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outs := make([]ManualPaymentOutput, 0, len(items))
	for _, p := range items {
		outs = append(outs, toManualPaymentOutput(p))
	}
	return outs, nil
}

func toManualPaymentOutput(p model.ManualPayment) ManualPaymentOutput {
	return ManualPaymentOutput{
		ID:              p.ID,
		OrderID:         p.OrderID,
		UserID:          p.UserID,
		Amount:          p.Amount,
		PhoneNumber:     p.PhoneNumber,
		TransactionCode: p.TransactionCode,
		Status:          p.Status,
		ReviewedBy:      p.ReviewedBy,
		ReviewedAt:      p.ReviewedAt,
		CreatedAt:       p.CreatedAt,
	}
}
