package usecase_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"smarthub/internal/cache"
	"smarthub/internal/domain/model"
	"smarthub/internal/gateway/mpesa"
	repo "smarthub/internal/repository"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	orders    repo.OrderRepository
	stk       repo.StkPaymentRepository
	manual    repo.ManualPaymentRepository
	processed repo.ProcessedCallbackRepository
	audit     repo.AuditLogRepository
	users     repo.UserRepository
	notifier  repo.PaymentNotifier
}

func (r *TxReposMock) Orders() repo.OrderRepository                         { return r.orders }
func (r *TxReposMock) StkPayments() repo.StkPaymentRepository               { return r.stk }
func (r *TxReposMock) ManualPayments() repo.ManualPaymentRepository         { return r.manual }
func (r *TxReposMock) ProcessedCallbacks() repo.ProcessedCallbackRepository { return r.processed }
func (r *TxReposMock) AuditLogs() repo.AuditLogRepository                   { return r.audit }
func (r *TxReposMock) Users() repo.UserRepository                           { return r.users }
func (r *TxReposMock) Notifier() repo.PaymentNotifier                       { return r.notifier }

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) FindByIDForUpdate(ctx context.Context, orderID string) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) CreateBulk(ctx context.Context, orders []model.Order) error {
	args := m.Called(ctx, orders)
	return args.Error(0)
}

func (m *OrderRepoMock) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, userID int64, key string) ([]model.Order, error) {
	args := m.Called(ctx, userID, key)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Error(1)
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

type StkPaymentRepoMock struct{ mock.Mock }

func (m *StkPaymentRepoMock) FindByOrderID(ctx context.Context, orderID string) (model.StkPayment, error) {
	args := m.Called(ctx, orderID)
	p, _ := args.Get(0).(model.StkPayment)
	return p, args.Error(1)
}

func (m *StkPaymentRepoMock) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (model.StkPayment, error) {
	args := m.Called(ctx, checkoutRequestID)
	p, _ := args.Get(0).(model.StkPayment)
	return p, args.Error(1)
}

func (m *StkPaymentRepoMock) FindByCheckoutRequestIDForUpdate(ctx context.Context, checkoutRequestID string) (model.StkPayment, error) {
	args := m.Called(ctx, checkoutRequestID)
	p, _ := args.Get(0).(model.StkPayment)
	return p, args.Error(1)
}

func (m *StkPaymentRepoMock) Create(ctx context.Context, p *model.StkPayment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *StkPaymentRepoMock) Reset(ctx context.Context, p *model.StkPayment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *StkPaymentRepoMock) MarkSent(ctx context.Context, id string, merchantRequestID string, checkoutRequestID string) error {
	args := m.Called(ctx, id, merchantRequestID, checkoutRequestID)
	return args.Error(0)
}

func (m *StkPaymentRepoMock) UpdateResult(ctx context.Context, id string, result model.PaymentResult) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

type ManualPaymentRepoMock struct{ mock.Mock }

func (m *ManualPaymentRepoMock) Create(ctx context.Context, p *model.ManualPayment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ManualPaymentRepoMock) FindByID(ctx context.Context, id string) (model.ManualPayment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.ManualPayment)
	return p, args.Error(1)
}

func (m *ManualPaymentRepoMock) FindByIDForUpdate(ctx context.Context, id string) (model.ManualPayment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.ManualPayment)
	return p, args.Error(1)
}

func (m *ManualPaymentRepoMock) FindActiveByOrderID(ctx context.Context, orderID string) (model.ManualPayment, error) {
	args := m.Called(ctx, orderID)
	p, _ := args.Get(0).(model.ManualPayment)
	return p, args.Error(1)
}

func (m *ManualPaymentRepoMock) ListByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]model.ManualPayment, error) {
	args := m.Called(ctx, status, limit)
	items, _ := args.Get(0).([]model.ManualPayment)
	return items, args.Error(1)
}

func (m *ManualPaymentRepoMock) UpdateReview(ctx context.Context, id string, status model.PaymentStatus, reviewerID int64, at time.Time) error {
	args := m.Called(ctx, id, status, reviewerID, at)
	return args.Error(0)
}

type ProcessedCallbackRepoMock struct{ mock.Mock }

func (m *ProcessedCallbackRepoMock) Insert(ctx context.Context, pc model.ProcessedCallback) (bool, error) {
	args := m.Called(ctx, pc)
	return args.Bool(0), args.Error(1)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

type UserRepoMock struct{ mock.Mock }

func (m *UserRepoMock) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepoMock) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *UserRepoMock) IncrementTokenVersion(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type NotifierMock struct{ mock.Mock }

func (m *NotifierMock) NotifyPayment(ctx context.Context, u model.PaymentUpdate) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

// =====================
// Gateway / publisher / cache mocks
// =====================

type GatewayMock struct {
	mock.Mock
	configured bool
}

func (m *GatewayMock) Configured() bool { return m.configured }

func (m *GatewayMock) StkPush(ctx context.Context, req mpesa.StkPushRequest) (mpesa.StkPushResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(mpesa.StkPushResponse)
	return resp, args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) PublishPaymentEvent(ctx context.Context, event model.PaymentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type UserCacheMock struct{ mock.Mock }

func (m *UserCacheMock) Get(ctx context.Context, userID int64) (cache.CachedUser, bool) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(cache.CachedUser)
	return u, args.Bool(1)
}

func (m *UserCacheMock) Set(ctx context.Context, userID int64, u cache.CachedUser) error {
	args := m.Called(ctx, userID, u)
	return args.Error(0)
}

func (m *UserCacheMock) Invalidate(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
