package server

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"smarthub/internal/cache"
	"smarthub/internal/handler"
	"smarthub/internal/middleware"
	"smarthub/internal/repository"
)

type Handlers struct {
	Health        *handler.HealthHandler
	Auth          *handler.AuthHandler
	Orders        *handler.OrderHandler
	AdminOrders   *handler.AdminOrderHandler
	AdminUsers    *handler.AdminUserHandler
	AdminAudit    *handler.AdminAuditHandler
	Payments      *handler.PaymentHandler
	ManualPayment *handler.ManualPaymentHandler
}

type RouteDeps struct {
	JWTSecret          string
	Users              repository.UserRepository
	UserCache          cache.UserCache
	LoginRatePerMinute int
	Log                *zap.Logger
}

func RegisterRoutes(e *echo.Echo, h Handlers, d RouteDeps) {
	//JWT必須 + token_version一致
	auth := []echo.MiddlewareFunc{
		middleware.AuthJWT(d.JWTSecret),
		middleware.TokenVersionGuard(d.Users, d.UserCache, d.Log),
	}
	// ADMIN限定
	admin := append(append([]echo.MiddlewareFunc{}, auth...), middleware.AdminRoleGuard())

	h.Health.RegisterRoutes(e)
	h.Auth.RegisterRoutes(e, middleware.PerMinute(d.LoginRatePerMinute).Middleware(), auth...)
	h.Orders.RegisterRoutes(e, auth...)
	h.Payments.RegisterRoutes(e, auth...)
	h.ManualPayment.RegisterRoutes(e, auth, admin)
	h.AdminOrders.RegisterRoutes(e, admin...)
	h.AdminUsers.RegisterRoutes(e, admin...)
	h.AdminAudit.RegisterRoutes(e, admin...)
}
