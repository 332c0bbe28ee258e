package model

import (
	"time"

	"gorm.io/datatypes"
)

// 処理済みコールバックの台帳（再送の重複処理防止）
type ProcessedCallback struct {
	Key               string         `gorm:"type:varchar(160);primaryKey" json:"key"`
	CheckoutRequestID string         `gorm:"type:varchar(100);not null;index" json:"checkout_request_id"`
	ResultCode        int            `gorm:"not null" json:"result_code"`
	Payload           datatypes.JSON `gorm:"type:jsonb" json:"payload"` // 受け取ったままのbody
	CreatedAt         time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}
