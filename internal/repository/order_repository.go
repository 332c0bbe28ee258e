package repository

import (
	"context"
	"time"

	"smarthub/internal/domain/model"
)

// 空文字/nilは条件なし
type AdminOrderListFilter struct {
	Page          int
	Limit         int
	Status        string
	PaymentMethod string
	UserID        *int64
	From          *time.Time
	To            *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	// 行ロック付き（tx内でのみ使う）
	FindByIDForUpdate(ctx context.Context, orderID string) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	// カート1明細=1行でまとめて作る
	CreateBulk(ctx context.Context, orders []model.Order) error
	UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error

	//同じキーなら同じ注文群を返す
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) ([]model.Order, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
