package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"smarthub/internal/domain/model"
	"smarthub/internal/phone"
	repo "smarthub/internal/repository"
)

const maxCheckoutItems = 50

var errIdempotencyRace = errors.New("idempotency race")

type OrderUsecase struct {
	tx     repo.TransactionManager
	orders repo.OrderRepository
}

func NewOrderUsecase(tx repo.TransactionManager, orders repo.OrderRepository) *OrderUsecase {
	return &OrderUsecase{tx: tx, orders: orders}
}

type CheckoutItemInput struct {
	ProductID   string
	ProductName string
	UnitPrice   int64
	Quantity    int64
}

type CustomerInput struct {
	Name  string
	Email string
	Phone string
}

type CheckoutInput struct {
	Items           []CheckoutItemInput
	Customer        CustomerInput
	ShippingAddress string
	PaymentMethod   string
	IdempotencyKey  string
}

type OrderOutput struct {
	ID              string    `json:"id"`
	UserID          int64     `json:"user_id"`
	ProductID       string    `json:"product_id"`
	ProductName     string    `json:"product_name"`
	Quantity        int64     `json:"quantity"`
	UnitPrice       int64     `json:"unit_price"`
	TotalAmount     int64     `json:"total_amount"`
	CustomerName    string    `json:"customer_name"`
	CustomerEmail   string    `json:"customer_email"`
	CustomerPhone   string    `json:"customer_phone"`
	ShippingAddress string    `json:"shipping_address"`
	PaymentMethod   string    `json:"payment_method"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CheckoutOutput struct {
	Orders      []OrderOutput `json:"orders"`
	TotalAmount int64         `json:"total_amount"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// カートの明細ごとにpendingの注文を作る
func (u *OrderUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}
	if len(in.Items) == 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "cart empty")
	}
	if len(in.Items) > maxCheckoutItems {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "too many items")
	}
	name := strings.TrimSpace(in.Customer.Name)
	if name == "" {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "customer name is required")
	}
	msisdn, err := phone.Normalize(in.Customer.Phone)
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid customer phone")
	}
	address := strings.TrimSpace(in.ShippingAddress)
	if address == "" {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "shipping_address is required")
	}
	method := model.PaymentMethod(in.PaymentMethod)
	if !method.Valid() {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_method")
	}

	seen := make(map[string]struct{}, len(in.Items))
	for _, it := range in.Items {
		pid := strings.TrimSpace(it.ProductID)
		if pid == "" || strings.TrimSpace(it.ProductName) == "" {
			return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid item")
		}
		if it.Quantity <= 0 || it.UnitPrice <= 0 {
			return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid item")
		}
		if _, dup := seen[pid]; dup {
			return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "duplicate product in cart")
		}
		seen[pid] = struct{}{}
	}

	var out CheckoutOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		existing, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if len(existing) > 0 {
			out = toCheckoutOutput(existing)
			return nil
		}

		now := time.Now()
		orders := make([]model.Order, 0, len(in.Items))
		for _, it := range in.Items {
			orders = append(orders, model.Order{
				ID:              uuid.NewString(),
				UserID:          userID,
				ProductID:       strings.TrimSpace(it.ProductID),
				ProductName:     strings.TrimSpace(it.ProductName),
				Quantity:        it.Quantity,
				UnitPrice:       it.UnitPrice,
				TotalAmount:     it.UnitPrice * it.Quantity,
				CustomerName:    name,
				CustomerEmail:   strings.TrimSpace(in.Customer.Email),
				CustomerPhone:   msisdn,
				ShippingAddress: address,
				PaymentMethod:   method,
				Status:          model.OrderStatusPending,
				IdempotencyKey:  key,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}

		if err := r.Orders().CreateBulk(ctx, orders); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return errIdempotencyRace
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toCheckoutOutput(orders)
		return nil
	})

	//同時に同じキーが入った: 先に入った方を返す
	if errors.Is(err, errIdempotencyRace) {
		existing, ferr := u.orders.FindByIdempotencyKey(ctx, userID, key)
		if ferr != nil || len(existing) == 0 {
			return CheckoutOutput{}, NewHTTPError(http.StatusConflict, "idempotency conflict")
		}
		return toCheckoutOutput(existing), nil
	}
	if err != nil {
		return CheckoutOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	orders, total, err := u.orders.ListByUserID(ctx, userID, page, limit)
	if err != nil {
		return OrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	items := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items = append(items, toOrderOutput(o))
	}
	return OrderListOutput{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if o.UserID != userID {
		//他人の注文は「存在しない扱い」にする
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return toOrderOutput(o), nil
}

// キャンセルはpendingからだけ。STK push中（送信前後とも）は不可。
func (u *OrderUsecase) Cancel(ctx context.Context, userID int64, orderID string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if !model.CanTransition(o.Status, model.OrderStatusCancelled) {
			return NewHTTPError(http.StatusBadRequest, "only pending orders can be cancelled")
		}

		p, err := r.StkPayments().FindByOrderID(ctx, orderID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err == nil && pushInFlight(p, time.Now()) {
			return NewHTTPError(http.StatusConflict, "payment in progress")
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, model.OrderStatusCancelled); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		o.Status = model.OrderStatusCancelled
		out = toOrderOutput(o)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// pendingでも直近に更新された行はゲートウェイ呼び出し中とみなす。
// Initiateは決済行をpendingでコミットしてからpushし、別txでstk_sentにする。
const pushInFlightWindow = 2 * time.Minute

func pushInFlight(p model.StkPayment, now time.Time) bool {
	switch p.Status {
	case model.PaymentStatusStkSent:
		return true
	case model.PaymentStatusPending:
		return now.Sub(p.UpdatedAt) < pushInFlightWindow
	}
	return false
}

func toOrderOutput(o model.Order) OrderOutput {
	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		ProductID:       o.ProductID,
		ProductName:     o.ProductName,
		Quantity:        o.Quantity,
		UnitPrice:       o.UnitPrice,
		TotalAmount:     o.TotalAmount,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   string(o.PaymentMethod),
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toCheckoutOutput(orders []model.Order) CheckoutOutput {
	out := CheckoutOutput{Orders: make([]OrderOutput, 0, len(orders))}
	for _, o := range orders {
		out.Orders = append(out.Orders, toOrderOutput(o))
		out.TotalAmount += o.TotalAmount
	}
	return out
}
