package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// 許可する遷移（前進のみ）。
// failed -> pending は支払いリトライ時だけ使う。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusConfirmed: {OrderStatusShipped},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusFailed:    {OrderStatusPending},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// fromからtoへ動かせるか
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodMpesaStk       PaymentMethod = "mpesa_stk"
	PaymentMethodMpesaManual    PaymentMethod = "mpesa_manual"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodMpesaStk, PaymentMethodMpesaManual, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// 注文はカートの1明細につき1行
type Order struct {
	ID              string        `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID          int64         `gorm:"not null;index;uniqueIndex:idx_orders_idem,priority:1" json:"user_id"`
	ProductID       string        `gorm:"type:varchar(64);not null;uniqueIndex:idx_orders_idem,priority:3" json:"product_id"`
	ProductName     string        `gorm:"type:varchar(255);not null" json:"product_name"`
	Quantity        int64         `gorm:"not null" json:"quantity"`
	UnitPrice       int64         `gorm:"not null" json:"unit_price"`
	TotalAmount     int64         `gorm:"not null" json:"total_amount"`
	CustomerName    string        `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail   string        `gorm:"type:varchar(255)" json:"customer_email"`
	CustomerPhone   string        `gorm:"type:varchar(20);not null" json:"customer_phone"`
	ShippingAddress string        `gorm:"type:text;not null" json:"shipping_address"`
	PaymentMethod   PaymentMethod `gorm:"type:varchar(32);not null" json:"payment_method"`
	Status          OrderStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	IdempotencyKey  string        `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_idem,priority:2" json:"-"`
	CreatedAt       time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
