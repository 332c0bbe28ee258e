package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"smarthub/internal/domain/model"
	"smarthub/internal/gateway/mpesa"
	"smarthub/internal/phone"
	repo "smarthub/internal/repository"
)

const (
	defaultAccountReference = "SmartHub"
	maxAccountReferenceLen  = 12
	maxTransactionDescLen   = 13
)

type PaymentUsecase struct {
	tx       repo.TransactionManager
	payments repo.StkPaymentRepository
	orders   repo.OrderRepository
	gateway  StkGateway
	events   PaymentEventPublisher
	log      *zap.Logger
}

func NewPaymentUsecase(
	tx repo.TransactionManager,
	payments repo.StkPaymentRepository,
	orders repo.OrderRepository,
	gateway StkGateway,
	events PaymentEventPublisher,
	log *zap.Logger,
) *PaymentUsecase {
	return &PaymentUsecase{
		tx:       tx,
		payments: payments,
		orders:   orders,
		gateway:  gateway,
		events:   events,
		log:      log,
	}
}

type InitiateInput struct {
	OrderID          string
	PhoneNumber      string
	Amount           int64
	AccountReference string
	TransactionDesc  string
}

type InitiateOutput struct {
	Success           bool   `json:"success"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	MerchantRequestID string `json:"MerchantRequestID"`
	CustomerMessage   string `json:"CustomerMessage"`
}

type PaymentStatusOutput struct {
	CheckoutRequestID  string              `json:"checkout_request_id"`
	OrderID            string              `json:"order_id"`
	Amount             int64               `json:"amount"`
	Status             model.PaymentStatus `json:"status"`
	ResultDesc         string              `json:"result_desc,omitempty"`
	MpesaReceiptNumber string              `json:"mpesa_receipt_number,omitempty"`
	OrderStatus        model.OrderStatus   `json:"order_status"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// STK pushを開始する。
// 決済行はpendingで用意し、ゲートウェイが受け付けたらstk_sentにする。
func (u *PaymentUsecase) Initiate(ctx context.Context, userID int64, in InitiateInput) (InitiateOutput, error) {
	if userID <= 0 {
		return InitiateOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		return InitiateOutput{}, NewHTTPError(http.StatusBadRequest, "order_id is required")
	}
	if strings.TrimSpace(in.PhoneNumber) == "" {
		return InitiateOutput{}, NewHTTPError(http.StatusBadRequest, "phone_number is required")
	}
	if in.Amount <= 0 {
		return InitiateOutput{}, NewHTTPError(http.StatusBadRequest, "amount is required")
	}
	msisdn, err := phone.Normalize(in.PhoneNumber)
	if err != nil {
		return InitiateOutput{}, NewHTTPError(http.StatusBadRequest, "invalid phone_number")
	}
	if !u.gateway.Configured() {
		return InitiateOutput{}, NewHTTPError(http.StatusBadRequest, mpesa.ErrNotConfigured.Error())
	}

	ref := strings.TrimSpace(in.AccountReference)
	if ref == "" {
		ref = defaultAccountReference
	}
	desc := strings.TrimSpace(in.TransactionDesc)
	if desc == "" {
		desc = "Payment for order " + orderID
	}

	log := u.log.With(zap.String("order_id", orderID), zap.Int64("user_id", userID))

	var payment model.StkPayment
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		// 他人の注文は存在しない扱い
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if o.PaymentMethod != model.PaymentMethodMpesaStk {
			return NewHTTPError(http.StatusBadRequest, "order does not use stk payment")
		}

		switch o.Status {
		case model.OrderStatusPending:
		case model.OrderStatusFailed:
			// 支払いのやり直し
			if err := r.Orders().UpdateStatus(ctx, o.ID, model.OrderStatusPending); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		default:
			return NewHTTPError(http.StatusBadRequest, "order is not awaiting payment")
		}

		if o.TotalAmount != in.Amount {
			log.Warn("payment amount differs from order total",
				zap.Int64("amount", in.Amount),
				zap.Int64("order_total", o.TotalAmount),
			)
		}

		existing, err := r.StkPayments().FindByOrderID(ctx, orderID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			payment = model.StkPayment{
				ID:               uuid.NewString(),
				OrderID:          &o.ID,
				Amount:           in.Amount,
				PhoneNumber:      msisdn,
				AccountReference: ref,
				TransactionDesc:  desc,
				Status:           model.PaymentStatusPending,
			}
			if err := r.StkPayments().Create(ctx, &payment); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		case err != nil:
			return NewHTTPError(http.StatusInternalServerError, "db error")
		case existing.Status == model.PaymentStatusConfirmed:
			return NewHTTPError(http.StatusConflict, "order already paid")
		default:
			// 前回の突合キーは上書きされる
			if existing.CheckoutRequestID != nil && existing.Status == model.PaymentStatusStkSent {
				log.Warn("replacing in-flight stk push", zap.String("checkout_request_id", *existing.CheckoutRequestID))
			}
			payment = existing
			payment.Amount = in.Amount
			payment.PhoneNumber = msisdn
			payment.AccountReference = ref
			payment.TransactionDesc = desc
			if err := r.StkPayments().Reset(ctx, &payment); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}
		return nil
	})
	if err != nil {
		return InitiateOutput{}, err
	}

	// ゲートウェイ呼び出しはtxの外（1回だけ）
	resp, err := u.gateway.StkPush(ctx, mpesa.StkPushRequest{
		Amount:           in.Amount,
		PhoneNumber:      msisdn,
		AccountReference: truncate(ref, maxAccountReferenceLen),
		TransactionDesc:  truncate(desc, maxTransactionDescLen),
	})
	if err != nil {
		log.Warn("stk push failed", zap.String("payment_id", payment.ID), zap.Error(err))
		return InitiateOutput{}, gatewayError(err)
	}

	// push中にキャンセル等されていたらfalse
	orderAwaiting := true
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// Cancelと同じく注文→決済の順にロックする
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		orderAwaiting = err == nil && o.Status == model.OrderStatusPending

		// 突合できるようにstk_sentは必ず記録する
		if err := r.StkPayments().MarkSent(ctx, payment.ID, resp.MerchantRequestID, resp.CheckoutRequestID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Notifier().NotifyPayment(ctx, model.PaymentUpdate{
			CheckoutRequestID: resp.CheckoutRequestID,
			OrderID:           orderID,
			Status:            model.PaymentStatusStkSent,
			At:                time.Now(),
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		log.Error("failed to record stk push",
			zap.String("payment_id", payment.ID),
			zap.String("checkout_request_id", resp.CheckoutRequestID),
			zap.Error(err),
		)
		return InitiateOutput{}, err
	}
	if !orderAwaiting {
		log.Error("stk push sent for order no longer awaiting payment",
			zap.String("payment_id", payment.ID),
			zap.String("checkout_request_id", resp.CheckoutRequestID),
		)
		return InitiateOutput{}, NewHTTPError(http.StatusConflict, "order is no longer awaiting payment")
	}

	log.Info("stk push sent",
		zap.String("payment_id", payment.ID),
		zap.String("checkout_request_id", resp.CheckoutRequestID),
	)
	u.publish(ctx, model.PaymentEvent{
		Type:              model.PaymentEventStkSent,
		PaymentID:         payment.ID,
		OrderID:           orderID,
		CheckoutRequestID: resp.CheckoutRequestID,
		Amount:            in.Amount,
		Status:            model.PaymentStatusStkSent,
		Timestamp:         time.Now(),
	})

	return InitiateOutput{
		Success:           true,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// ゲートウェイからのコールバックを反映する。
// 決済と注文の更新、重複台帳、通知は1つのtxで行う。
func (u *PaymentUsecase) HandleCallback(ctx context.Context, body []byte) error {
	cb, err := mpesa.ParseCallback(body)
	if err != nil {
		u.log.Warn("malformed stk callback", zap.Error(err))
		return NewHTTPError(http.StatusBadRequest, "malformed callback")
	}

	log := u.log.With(
		zap.String("checkout_request_id", cb.CheckoutRequestID),
		zap.Int("result_code", cb.ResultCode),
	)

	var event *model.PaymentEvent
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.StkPayments().FindByCheckoutRequestIDForUpdate(ctx, cb.CheckoutRequestID)
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn("callback for unknown checkout request")
			return NewHTTPError(http.StatusNotFound, "payment not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		inserted, err := r.ProcessedCallbacks().Insert(ctx, model.ProcessedCallback{
			Key:               cb.DedupKey(),
			CheckoutRequestID: cb.CheckoutRequestID,
			ResultCode:        cb.ResultCode,
			Payload:           datatypes.JSON(body),
		})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !inserted {
			log.Info("duplicate callback ignored", zap.String("payment_id", p.ID))
			return nil
		}
		if p.Status.IsTerminal() {
			log.Info("payment already settled", zap.String("payment_id", p.ID), zap.String("status", string(p.Status)))
			return nil
		}

		now := time.Now()
		result := model.PaymentResult{
			ResultCode: cb.ResultCode,
			ResultDesc: cb.ResultDesc,
		}
		orderStatus := model.OrderStatusFailed
		if cb.Success() {
			result.Status = model.PaymentStatusConfirmed
			result.MpesaReceiptNumber = cb.ReceiptNumber
			result.TransactionDate = cb.TransactionDate
			result.PhoneNumber = cb.PhoneNumber
			result.ConfirmedAt = &now
			orderStatus = model.OrderStatusConfirmed
		} else {
			result.Status = model.PaymentStatusFailed
		}

		if err := r.StkPayments().UpdateResult(ctx, p.ID, result); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		orderID := ""
		if p.OrderID != nil {
			orderID = *p.OrderID
			if err := settleOrder(ctx, r, orderID, orderStatus, log); err != nil {
				return err
			}
		} else {
			log.Warn("payment has no order", zap.String("payment_id", p.ID))
		}

		if err := r.Notifier().NotifyPayment(ctx, model.PaymentUpdate{
			CheckoutRequestID: cb.CheckoutRequestID,
			OrderID:           orderID,
			Status:            result.Status,
			ResultDesc:        cb.ResultDesc,
			At:                now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		eventType := model.PaymentEventFailed
		if result.Status == model.PaymentStatusConfirmed {
			eventType = model.PaymentEventConfirmed
		}
		event = &model.PaymentEvent{
			Type:              eventType,
			PaymentID:         p.ID,
			OrderID:           orderID,
			CheckoutRequestID: cb.CheckoutRequestID,
			Amount:            p.Amount,
			Status:            result.Status,
			ReceiptNumber:     cb.ReceiptNumber,
			Timestamp:         now,
		}
		return nil
	})
	if err != nil {
		if he, ok := AsHTTPError(err); !ok || he.Status >= http.StatusInternalServerError {
			log.Error("stk callback processing failed", zap.Error(err))
		}
		return err
	}

	if event != nil {
		log.Info("stk callback applied", zap.String("status", string(event.Status)))
		u.publish(ctx, *event)
	}
	return nil
}

// 注文の状態を決済結果に合わせる。
// 注文がない・遷移できない場合は警告だけ残して決済の更新は続ける。
func settleOrder(ctx context.Context, r repo.TxRepos, orderID string, to model.OrderStatus, log *zap.Logger) error {
	o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Warn("order for payment not found", zap.String("order_id", orderID))
		return nil
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if o.Status == to {
		return nil
	}
	if !model.CanTransition(o.Status, to) {
		log.Warn("order status not updated",
			zap.String("order_id", orderID),
			zap.String("from", string(o.Status)),
			zap.String("to", string(to)),
		)
		return nil
	}
	if err := r.Orders().UpdateStatus(ctx, orderID, to); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// 購読が切れたクライアント向けの状態確認
func (u *PaymentUsecase) GetStatus(ctx context.Context, userID int64, checkoutRequestID string) (PaymentStatusOutput, error) {
	if userID <= 0 {
		return PaymentStatusOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return PaymentStatusOutput{}, NewHTTPError(http.StatusBadRequest, "invalid checkout_request_id")
	}

	p, err := u.payments.FindByCheckoutRequestID(ctx, checkoutRequestID)
	if errors.Is(err, repo.ErrNotFound) {
		return PaymentStatusOutput{}, NewHTTPError(http.StatusNotFound, "payment not found")
	}
	if err != nil {
		return PaymentStatusOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if p.OrderID == nil {
		return PaymentStatusOutput{}, NewHTTPError(http.StatusNotFound, "payment not found")
	}

	o, err := u.orders.FindByID(ctx, *p.OrderID)
	if errors.Is(err, repo.ErrNotFound) {
		return PaymentStatusOutput{}, NewHTTPError(http.StatusNotFound, "payment not found")
	}
	if err != nil {
		return PaymentStatusOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if o.UserID != userID {
		return PaymentStatusOutput{}, NewHTTPError(http.StatusNotFound, "payment not found")
	}

	return PaymentStatusOutput{
		CheckoutRequestID:  checkoutRequestID,
		OrderID:            o.ID,
		Amount:             p.Amount,
		Status:             p.Status,
		ResultDesc:         p.ResultDesc,
		MpesaReceiptNumber: p.MpesaReceiptNumber,
		OrderStatus:        o.Status,
		UpdatedAt:          p.UpdatedAt,
	}, nil
}

// イベント送信は失敗しても結果に影響させない
func (u *PaymentUsecase) publish(ctx context.Context, event model.PaymentEvent) {
	if u.events == nil {
		return
	}
	if err := u.events.PublishPaymentEvent(ctx, event); err != nil {
		u.log.Warn("failed to publish payment event",
			zap.String("type", event.Type),
			zap.String("payment_id", event.PaymentID),
			zap.Error(err),
		)
	}
}

// ゲートウェイのメッセージはそのまま返す
func gatewayError(err error) error {
	if errors.Is(err, mpesa.ErrNotConfigured) {
		return NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if apiErr, ok := mpesa.AsAPIError(err); ok && apiErr.Message != "" {
		return NewHTTPError(http.StatusBadRequest, apiErr.Message)
	}
	return NewHTTPError(http.StatusBadRequest, err.Error())
}

// ゲートウェイの文字数制限。マルチバイトを途中で切らない。
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
