package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"smarthub/internal/usecase"
)

type ManualPaymentHandler struct {
	uc *usecase.ManualPaymentUsecase
}

func NewManualPaymentHandler(uc *usecase.ManualPaymentUsecase) *ManualPaymentHandler {
	return &ManualPaymentHandler{uc: uc}
}

type ManualPaymentSubmitRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Message string `json:"message" validate:"required,max=1000"`
}

type ManualPaymentReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=confirmed failed"`
}

func (h *ManualPaymentHandler) RegisterRoutes(e *echo.Echo, auth []echo.MiddlewareFunc, admin []echo.MiddlewareFunc) {
	e.POST("/payments/manual", h.submit, auth...)

	g := e.Group("/admin/payments/manual", admin...)
	g.GET("", h.listPending)
	g.PUT("/:id", h.review)
}

func (h *ManualPaymentHandler) submit(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req ManualPaymentSubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	out, err := h.uc.Submit(c.Request().Context(), userID, usecase.SubmitManualPaymentInput{
		OrderID: req.OrderID,
		Message: req.Message,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *ManualPaymentHandler) listPending(c echo.Context) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}

	out, err := h.uc.ListPending(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ManualPaymentHandler) review(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req ManualPaymentReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	out, err := h.uc.Review(c.Request().Context(), adminID, c.Param("id"), usecase.ReviewManualPaymentInput{
		Decision: req.Decision,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
