package cache

import (
	"context"

	"smarthub/internal/domain/model"
)

// 認可チェックで毎回DBを見ないためのキャッシュ値
type CachedUser struct {
	Role         model.Role `json:"role"`
	TokenVersion int        `json:"token_version"`
	IsActive     bool       `json:"is_active"`
}

// ロール/token_versionのキャッシュ。
// ロールやtoken_versionを変えたら必ずInvalidateする。
type UserCache interface {
	Get(ctx context.Context, userID int64) (CachedUser, bool)
	Set(ctx context.Context, userID int64, u CachedUser) error
	Invalidate(ctx context.Context, userID int64) error
}

func FromUser(u *model.User) CachedUser {
	return CachedUser{Role: u.Role, TokenVersion: u.TokenVersion, IsActive: u.IsActive}
}
