package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusStkSent   PaymentStatus = "stk_sent"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// confirmed / failed は終端
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed
}

// STK push決済の記録。
// CheckoutRequestIDがコールバックとの唯一の突合キー。
type StkPayment struct {
	ID                 string        `gorm:"type:varchar(64);primaryKey" json:"id"`
	OrderID            *string       `gorm:"type:varchar(64);uniqueIndex" json:"order_id"`
	Amount             int64         `gorm:"not null" json:"amount"`
	PhoneNumber        string        `gorm:"type:varchar(20);not null" json:"phone_number"`
	AccountReference   string        `gorm:"type:varchar(64)" json:"account_reference"`
	TransactionDesc    string        `gorm:"type:varchar(255)" json:"transaction_desc"`
	MerchantRequestID  string        `gorm:"type:varchar(100)" json:"merchant_request_id"`
	CheckoutRequestID  *string       `gorm:"type:varchar(100);uniqueIndex" json:"checkout_request_id"`
	Status             PaymentStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ResultCode         *int          `json:"result_code"`
	ResultDesc         string        `gorm:"type:text" json:"result_desc"`
	MpesaReceiptNumber string        `gorm:"type:varchar(32)" json:"mpesa_receipt_number"`
	TransactionDate    *time.Time    `json:"transaction_date"`
	ConfirmedAt        *time.Time    `json:"confirmed_at"`
	CreatedAt          time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// コールバックの結果を反映するときの値
type PaymentResult struct {
	Status             PaymentStatus
	ResultCode         int
	ResultDesc         string
	MpesaReceiptNumber string
	TransactionDate    *time.Time
	PhoneNumber        string
	ConfirmedAt        *time.Time
}

// 外部に流す決済イベント
type PaymentEvent struct {
	Type              string        `json:"type"`
	PaymentID         string        `json:"payment_id"`
	OrderID           string        `json:"order_id"`
	CheckoutRequestID string        `json:"checkout_request_id"`
	Amount            int64         `json:"amount"`
	Status            PaymentStatus `json:"status"`
	ReceiptNumber     string        `json:"receipt_number,omitempty"`
	Timestamp         time.Time     `json:"timestamp"`
}

// realtimeで購読者に届く更新
type PaymentUpdate struct {
	CheckoutRequestID string        `json:"checkout_request_id"`
	OrderID           string        `json:"order_id"`
	Status            PaymentStatus `json:"status"`
	ResultDesc        string        `json:"result_desc,omitempty"`
	At                time.Time     `json:"at"`
}

// pg_notifyのチャンネル名
const PaymentUpdatesChannel = "payment_updates"

const (
	PaymentEventStkSent   = "payment.stk_sent"
	PaymentEventConfirmed = "payment.confirmed"
	PaymentEventFailed    = "payment.failed"
)
