package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"smarthub/internal/domain/model"
	"smarthub/internal/logger"
	"smarthub/internal/usecase"
)

// コールバック本文の上限
const maxCallbackBody = 1 << 20

const defaultKeepAlive = 15 * time.Second

type PaymentService interface {
	Initiate(ctx context.Context, userID int64, in usecase.InitiateInput) (usecase.InitiateOutput, error)
	HandleCallback(ctx context.Context, body []byte) error
	GetStatus(ctx context.Context, userID int64, checkoutRequestID string) (usecase.PaymentStatusOutput, error)
}

// realtime.Hub
type PaymentSubscriber interface {
	Subscribe(checkoutRequestID string) (<-chan model.PaymentUpdate, func())
}

type PaymentHandler struct {
	uc        PaymentService
	hub       PaymentSubscriber
	log       *zap.Logger
	keepAlive time.Duration
}

func NewPaymentHandler(uc PaymentService, hub PaymentSubscriber, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{uc: uc, hub: hub, log: log, keepAlive: defaultKeepAlive}
}

type StkPushRequest struct {
	OrderID          string `json:"order_id"`
	PhoneNumber      string `json:"phone_number"`
	Amount           int64  `json:"amount"`
	AccountReference string `json:"account_reference"`
	TransactionDesc  string `json:"transaction_desc"`
}

type stkPushFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// コールバックだけは認証なし（ゲートウェイから呼ばれる）
func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, auth ...echo.MiddlewareFunc) {
	e.POST("/payments/mpesa/callback", h.callback)

	g := e.Group("/payments/mpesa", auth...)
	g.POST("/stkpush", h.stkPush)
	g.GET("/:checkout_request_id", h.status)
	g.GET("/:checkout_request_id/events", h.events)
}

func (h *PaymentHandler) stkPush(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, stkPushFailure{Error: "unauthorized"})
	}

	var req StkPushRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, stkPushFailure{Error: "invalid body"})
	}

	out, err := h.uc.Initiate(c.Request().Context(), userID, usecase.InitiateInput{
		OrderID:          req.OrderID,
		PhoneNumber:      req.PhoneNumber,
		Amount:           req.Amount,
		AccountReference: req.AccountReference,
		TransactionDesc:  req.TransactionDesc,
	})
	if err != nil {
		if he, ok := usecase.AsHTTPError(err); ok {
			return c.JSON(he.Status, stkPushFailure{Error: he.Message})
		}
		return c.JSON(http.StatusInternalServerError, stkPushFailure{Error: "internal error"})
	}
	return c.JSON(http.StatusOK, out)
}

// 一致する決済があれば結果に関係なく200 "OK"
func (h *PaymentHandler) callback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.uc.HandleCallback(c.Request().Context(), body); err != nil {
		return writeError(c, err)
	}
	return c.String(http.StatusOK, "OK")
}

func (h *PaymentHandler) status(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.GetStatus(c.Request().Context(), userID, c.Param("checkout_request_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// SSEで決済の更新を流す。
// 先に購読してから現在の状態を送るので、その間の更新も取りこぼさない。
func (h *PaymentHandler) events(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	checkoutID := c.Param("checkout_request_id")
	ctx := c.Request().Context()

	updates, cancel := h.hub.Subscribe(checkoutID)
	defer cancel()

	current, err := h.uc.GetStatus(ctx, userID, checkoutID)
	if err != nil {
		return writeError(c, err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	log := h.log.With(logger.RequestField(c), zap.String("checkout_request_id", checkoutID))

	if err := writeEvent(w, model.PaymentUpdate{
		CheckoutRequestID: checkoutID,
		OrderID:           current.OrderID,
		Status:            current.Status,
		ResultDesc:        current.ResultDesc,
		At:                current.UpdatedAt,
	}); err != nil {
		return nil
	}
	if current.Status.IsTerminal() {
		return nil
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(w, u); err != nil {
				log.Debug("sse write failed", zap.Error(err))
				return nil
			}
			if u.Status.IsTerminal() {
				return nil
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w *echo.Response, u model.PaymentUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: payment\ndata: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
