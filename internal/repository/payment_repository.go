package repository

import (
	"context"
	"time"

	"smarthub/internal/domain/model"
)

// STK push決済の保存・取得
type StkPaymentRepository interface {
	FindByOrderID(ctx context.Context, orderID string) (model.StkPayment, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (model.StkPayment, error)
	// コールバック処理用（行ロック）
	FindByCheckoutRequestIDForUpdate(ctx context.Context, checkoutRequestID string) (model.StkPayment, error)
	Create(ctx context.Context, p *model.StkPayment) error
	// 再送時: pendingに戻して突合キーを消す
	Reset(ctx context.Context, p *model.StkPayment) error
	MarkSent(ctx context.Context, id string, merchantRequestID string, checkoutRequestID string) error
	UpdateResult(ctx context.Context, id string, result model.PaymentResult) error
}

type ManualPaymentRepository interface {
	// 取引コード重複はErrDuplicate
	Create(ctx context.Context, p *model.ManualPayment) error
	FindByID(ctx context.Context, id string) (model.ManualPayment, error)
	FindByIDForUpdate(ctx context.Context, id string) (model.ManualPayment, error)
	// pending/confirmedのものだけ（failedは再提出できる）
	FindActiveByOrderID(ctx context.Context, orderID string) (model.ManualPayment, error)
	ListByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]model.ManualPayment, error)
	UpdateReview(ctx context.Context, id string, status model.PaymentStatus, reviewerID int64, at time.Time) error
}

// 処理済みコールバック台帳。既にあればinserted=false。
type ProcessedCallbackRepository interface {
	Insert(ctx context.Context, pc model.ProcessedCallback) (inserted bool, err error)
}

// 決済の更新をrealtime側へ流す。tx内で呼ぶとcommit時にだけ届く。
type PaymentNotifier interface {
	NotifyPayment(ctx context.Context, u model.PaymentUpdate) error
}
