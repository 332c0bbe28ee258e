package repository

import (
	"context"
	"time"

	"smarthub/internal/domain/model"
)

// 注文の持ち主と管理者を識別するためのユーザー
type UserRepository interface {
	//新規ユーザー作成（メール重複はErrDuplicate）
	Create(ctx context.Context, user *model.User) error
	// なければnil
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	// 更新後のtoken_versionを返す
	IncrementTokenVersion(ctx context.Context, userID int64) (int, error)
}
