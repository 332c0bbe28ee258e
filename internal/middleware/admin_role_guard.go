package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"smarthub/internal/domain/model"
)

// /admin 配下用。TokenVersionGuardの後ろに置く（roleはDB/キャッシュの最新値）
func AdminRoleGuard() echo.MiddlewareFunc {
	return requireRole("admin only", model.RoleAdmin)
}

func requireRole(deny string, allowed ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxUserRoleKey).(string)
			if role == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if !slices.Contains(allowed, model.Role(role)) {
				return c.JSON(http.StatusForbidden, errorJSON(deny))
			}
			return next(c)
		}
	}
}
