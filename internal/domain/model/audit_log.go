package model

import (
	"time"

	"gorm.io/datatypes"
)

// 注文ステータス更新、手動決済の確認など。
type AuditAction string

const (
	//注文ステータスを更新した操作。
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	//手動決済を確認/却下した操作。
	AuditActionReviewManualPayment AuditAction = "REVIEW_MANUAL_PAYMENT"
	//強制ログアウト。
	AuditActionForceLogout AuditAction = "FORCE_LOGOUT"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceOrder   AuditResourceType = "order"
	AuditResourcePayment AuditResourceType = "payment"
	AuditResourceUser    AuditResourceType = "user"
)

// 監査ログ（管理者操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作した管理者のID。
	ActorUserID int64 `gorm:"not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	//対象のID（注文・決済はUUID文字列、ユーザーは数値を文字列化）。
	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//変更前後のスナップショット（jsonb）
	BeforeJSON datatypes.JSON `gorm:"type:jsonb" json:"before"`
	AfterJSON  datatypes.JSON `gorm:"type:jsonb" json:"after"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
