package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"smarthub/internal/cache"
	"smarthub/internal/repository"
)

// JWTのtvと最新のtoken_versionが一致するか確認。
// キャッシュになければDBを見てキャッシュし直す。
// ロールもここで最新の値に置き換える。
func TokenVersionGuard(users repository.UserRepository, userCache cache.UserCache, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := c.Get(CtxUserIDKey).(int64)
			if !ok || userID <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			tv, ok := c.Get(CtxTokenVersionKey).(int)
			if !ok || tv < 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			ctx := c.Request().Context()
			cu, hit := userCache.Get(ctx, userID)
			if !hit {
				user, err := users.FindByID(ctx, userID)
				if err != nil || user == nil {
					return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
				}
				cu = cache.FromUser(user)
				if err := userCache.Set(ctx, userID, cu); err != nil {
					log.Warn("failed to cache user", zap.Int64("user_id", userID), zap.Error(err))
				}
			}

			//token_version が一致しなければ強制ログアウト扱い（401）
			if cu.TokenVersion != tv {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if !cu.IsActive {
				return c.JSON(http.StatusForbidden, errorJSON("account disabled"))
			}

			c.Set(CtxUserRoleKey, string(cu.Role))
			return next(c)
		}
	}
}
