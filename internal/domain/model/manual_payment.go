package model

import "time"

// 顧客がM-Pesaの確認SMSを貼り付けて送る決済。
// 管理者がpendingからconfirmed/failedへ手動で切り替える。
type ManualPayment struct {
	ID              string        `gorm:"type:varchar(64);primaryKey" json:"id"`
	OrderID         string        `gorm:"type:varchar(64);not null;index" json:"order_id"`
	UserID          int64         `gorm:"not null;index" json:"user_id"`
	Amount          int64         `gorm:"not null" json:"amount"`
	PhoneNumber     string        `gorm:"type:varchar(20)" json:"phone_number"`
	TransactionCode string        `gorm:"type:varchar(20);not null;uniqueIndex" json:"transaction_code"`
	RawMessage      string        `gorm:"type:text;not null" json:"raw_message"`
	Status          PaymentStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ReviewedBy      *int64        `json:"reviewed_by"`
	ReviewedAt      *time.Time    `json:"reviewed_at"`
	CreatedAt       time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
