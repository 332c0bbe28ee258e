package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"smarthub/internal/domain/model"
	infrarepo "smarthub/internal/infra/repository"
	repo "smarthub/internal/repository"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return gormDB, mock
}

func TestStkPayment_FindByCheckoutRequestID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewStkPaymentGormRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stk_payments" WHERE checkout_request_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.FindByCheckoutRequestID(context.Background(), "ws_unknown")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStkPayment_FindByCheckoutRequestIDForUpdate_LocksRow(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewStkPaymentGormRepository(gormDB)

	rows := sqlmock.NewRows([]string{"id", "order_id", "checkout_request_id", "status", "amount"}).
		AddRow("p-1", "o-1", "ws_CO_1", "stk_sent", 1000)
	mock.ExpectQuery(`SELECT \* FROM "stk_payments" WHERE checkout_request_id = \$1 .*FOR UPDATE`).
		WillReturnRows(rows)

	p, err := r.FindByCheckoutRequestIDForUpdate(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	require.NotNil(t, p.OrderID)
	assert.Equal(t, "o-1", *p.OrderID)
	assert.Equal(t, model.PaymentStatusStkSent, p.Status)
	assert.Equal(t, int64(1000), p.Amount)
}

func TestStkPayment_MarkSent(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewStkPaymentGormRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "stk_payments" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := r.MarkSent(context.Background(), "p-1", "m-1", "ws_CO_1")
	assert.NoError(t, err)
}

func TestStkPayment_UpdateResult_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewStkPaymentGormRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "stk_payments" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	now := time.Now()
	err := r.UpdateResult(context.Background(), "missing", model.PaymentResult{
		Status:      model.PaymentStatusConfirmed,
		ConfirmedAt: &now,
	})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestProcessedCallback_Insert(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewProcessedCallbackGormRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "processed_callbacks" .*ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inserted, err := r.Insert(context.Background(), model.ProcessedCallback{
		Key:               "NLJ7RT61SV",
		CheckoutRequestID: "ws_CO_1",
	})
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestProcessedCallback_Insert_Replay(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewProcessedCallbackGormRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "processed_callbacks" .*ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := r.Insert(context.Background(), model.ProcessedCallback{
		Key:               "NLJ7RT61SV",
		CheckoutRequestID: "ws_CO_1",
	})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestManualPayment_Create_DuplicateCode(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewManualPaymentGormRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "manual_payments"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := r.Create(context.Background(), &model.ManualPayment{
		ID:              "mp-1",
		OrderID:         "o-1",
		UserID:          1,
		Amount:          1500,
		TransactionCode: "QJK3ABCD12",
		RawMessage:      "QJK3ABCD12 Confirmed.",
		Status:          model.PaymentStatusPending,
	})
	assert.ErrorIs(t, err, repo.ErrDuplicate)
}

func TestOrder_UpdateStatus_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewOrderGormRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := r.UpdateStatus(context.Background(), "missing", model.OrderStatusConfirmed)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestOrder_FindByIdempotencyKey(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewOrderGormRepository(gormDB)

	rows := sqlmock.NewRows([]string{"id", "user_id", "product_id", "status", "idempotency_key"}).
		AddRow("o-1", 7, "prod-1", "pending", "k-1").
		AddRow("o-2", 7, "prod-2", "pending", "k-1")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE user_id = $1 AND idempotency_key = $2`)).
		WithArgs(int64(7), "k-1").
		WillReturnRows(rows)

	orders, err := r.FindByIdempotencyKey(context.Background(), 7, "k-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o-2", orders[1].ID)
}

func TestTxManager_NotifyInsideTransaction(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	tm := infrarepo.NewTxManagerGorm(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_notify($1, $2)`)).
		WithArgs(model.PaymentUpdatesChannel, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.WithinTx(context.Background(), func(r repo.TxRepos) error {
		return r.Notifier().NotifyPayment(context.Background(), model.PaymentUpdate{
			CheckoutRequestID: "ws_CO_1",
			Status:            model.PaymentStatusConfirmed,
		})
	})
	assert.NoError(t, err)
}

func TestTxManager_RollbackOnError(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	tm := infrarepo.NewTxManagerGorm(gormDB)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tm.WithinTx(context.Background(), func(r repo.TxRepos) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestUser_IncrementTokenVersion_ReturnsNewVersion(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewUserGormRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE "users" SET "token_version"=token_version \+ \$1 WHERE id = \$2 RETURNING "token_version"`).
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}).AddRow(4))
	mock.ExpectCommit()

	v, err := r.IncrementTokenVersion(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}

func TestUser_IncrementTokenVersion_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewUserGormRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE "users" SET "token_version"=token_version \+ \$1 WHERE id = \$2 RETURNING "token_version"`).
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}))
	mock.ExpectCommit()

	_, err := r.IncrementTokenVersion(context.Background(), 404)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUser_TouchLastLogin_OnlyTouchesColumn(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewUserGormRepository(gormDB)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "last_login_at"=$1 WHERE id = $2`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, r.TouchLastLogin(context.Background(), 7, at))
}

func TestAuditLog_List_Filters(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewAuditLogGormRepository(gormDB)

	action := model.AuditActionForceLogout
	mock.ExpectQuery(`SELECT \* FROM "audit_logs" WHERE action = \$1 ORDER BY created_at DESC,id DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action"}).AddRow(3, "FORCE_LOGOUT"))

	logs, err := r.List(context.Background(), repo.AuditLogFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionForceLogout, logs[0].Action)
}

func TestManualPayment_FindActiveByOrderID(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewManualPaymentGormRepository(gormDB)

	rows := sqlmock.NewRows([]string{"id", "order_id", "transaction_code", "status", "amount"}).
		AddRow("mp-1", "o-1", "QJK3ABCD12", "pending", 1500)
	mock.ExpectQuery(`SELECT \* FROM "manual_payments" WHERE order_id = \$1 AND status IN \(\$2,\$3\)`).
		WillReturnRows(rows)

	p, err := r.FindActiveByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, "mp-1", p.ID)
	assert.Equal(t, model.PaymentStatusPending, p.Status)
}

func TestManualPayment_FindActiveByOrderID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	r := infrarepo.NewManualPaymentGormRepository(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "manual_payments" WHERE order_id = \$1 AND status IN`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.FindActiveByOrderID(context.Background(), "o-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
