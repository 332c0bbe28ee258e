package usecase_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smarthub/internal/domain/model"
	repo "smarthub/internal/repository"
	"smarthub/internal/usecase"
)

const confirmationSMS = "QJK3ABCD12 Confirmed. Ksh1,500.00 sent to SMARTHUB COMPUTERS 0712345678 on 12/5/24 at 3:45 PM. New M-PESA balance is Ksh2,000.00."

type manualFixture struct {
	tx       *TxManagerMock
	orders   *OrderRepoMock
	payments *ManualPaymentRepoMock
	audit    *AuditRepoMock
	events   *PublisherMock
	uc       *usecase.ManualPaymentUsecase
}

func newManualFixture() *manualFixture {
	f := &manualFixture{
		tx:       new(TxManagerMock),
		orders:   new(OrderRepoMock),
		payments: new(ManualPaymentRepoMock),
		audit:    new(AuditRepoMock),
		events:   new(PublisherMock),
	}
	f.tx.Repos = &TxReposMock{orders: f.orders, manual: f.payments, audit: f.audit}
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.uc = usecase.NewManualPaymentUsecase(f.tx, f.payments, f.events, zap.NewNop())
	return f
}

func manualOrder() model.Order {
	o := pendingOrder()
	o.PaymentMethod = model.PaymentMethodMpesaManual
	return o
}

// =====================
// Submit
// =====================

func TestManualPaymentUsecase_Submit(t *testing.T) {
	f := newManualFixture()

	f.orders.On("FindByIDForUpdate", mock.Anything, "order-1").Return(manualOrder(), nil)
	f.payments.On("FindActiveByOrderID", mock.Anything, "order-1").Return(model.ManualPayment{}, repo.ErrNotFound)
	f.payments.On("Create", mock.Anything, mock.MatchedBy(func(p *model.ManualPayment) bool {
		return p.TransactionCode == "QJK3ABCD12" &&
			p.Amount == 1500 &&
			p.PhoneNumber == "254712345678" &&
			p.Status == model.PaymentStatusPending
	})).Return(nil)

	out, err := f.uc.Submit(context.Background(), 7, usecase.SubmitManualPaymentInput{OrderID: "order-1", Message: confirmationSMS})
	require.NoError(t, err)
	assert.Equal(t, "QJK3ABCD12", out.TransactionCode)
	assert.Equal(t, model.PaymentStatusPending, out.Status)
	f.payments.AssertExpectations(t)
}

func TestManualPaymentUsecase_Submit_Unrecognized(t *testing.T) {
	f := newManualFixture()

	_, err := f.uc.Submit(context.Background(), 7, usecase.SubmitManualPaymentInput{OrderID: "order-1", Message: "paid already, thanks"})
	assertHTTPError(t, err, http.StatusBadRequest, "unrecognized mpesa message")
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestManualPaymentUsecase_Submit_WrongMethod(t *testing.T) {
	f := newManualFixture()

	f.orders.On("FindByIDForUpdate", mock.Anything, "order-1").Return(pendingOrder(), nil)

	_, err := f.uc.Submit(context.Background(), 7, usecase.SubmitManualPaymentInput{OrderID: "order-1", Message: confirmationSMS})
	assertHTTPError(t, err, http.StatusBadRequest, "order does not use manual payment")
}

func TestManualPaymentUsecase_Submit_DuplicateCode(t *testing.T) {
	f := newManualFixture()

	f.orders.On("FindByIDForUpdate", mock.Anything, "order-1").Return(manualOrder(), nil)
	f.payments.On("FindActiveByOrderID", mock.Anything, "order-1").Return(model.ManualPayment{}, repo.ErrNotFound)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(repo.ErrDuplicate)

	_, err := f.uc.Submit(context.Background(), 7, usecase.SubmitManualPaymentInput{OrderID: "order-1", Message: confirmationSMS})
	assertHTTPError(t, err, http.StatusConflict, "transaction code already submitted")
}

func TestManualPaymentUsecase_Submit_SecondCodeForSameOrder(t *testing.T) {
	f := newManualFixture()

	f.orders.On("FindByIDForUpdate", mock.Anything, "order-1").Return(manualOrder(), nil)
	f.payments.On("FindActiveByOrderID", mock.Anything, "order-1").Return(pendingManualPayment(), nil)

	msg := "QZZ9XYZW77 Confirmed. Ksh1,500.00 sent to SMARTHUB COMPUTERS 0712345678 on 12/5/24 at 3:50 PM. New M-PESA balance is Ksh500.00."
	_, err := f.uc.Submit(context.Background(), 7, usecase.SubmitManualPaymentInput{OrderID: "order-1", Message: msg})
	assertHTTPError(t, err, http.StatusConflict, "payment already submitted")
	f.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestManualPaymentUsecase_Submit_AlreadyPaid(t *testing.T) {
	f := newManualFixture()

	p := pendingManualPayment()
	p.Status = model.PaymentStatusConfirmed
	f.orders.On("FindByIDForUpdate", mock.Anything, "order-1").Return(manualOrder(), nil)
	f.payments.On("FindActiveByOrderID", mock.Anything, "order-1").Return(p, nil)

	_, err := f.uc.Submit(context.Background(), 7, usecase.SubmitManualPaymentInput{OrderID: "order-1", Message: confirmationSMS})
	assertHTTPError(t, err, http.StatusConflict, "order already paid")
	f.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestManualPaymentUsecase_Submit_ResubmitAfterRejection(t *testing.T) {
	f := newManualFixture()

	o := manualOrder()
	o.Status = model.OrderStatusFailed
	f.orders.On("FindByIDForUpdate", mock.Anything, "order-1").Return(o, nil)
	f.orders.On("UpdateStatus", mock.Anything, "order-1", model.OrderStatusPending).Return(nil)
	f.payments.On("FindActiveByOrderID", mock.Anything, "order-1").Return(model.ManualPayment{}, repo.ErrNotFound)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil)

	out, err := f.uc.Submit(context.Background(), 7, usecase.SubmitManualPaymentInput{OrderID: "order-1", Message: confirmationSMS})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, out.Status)
	f.orders.AssertExpectations(t)
	f.payments.AssertExpectations(t)
}

// =====================
// Review
// =====================

func pendingManualPayment() model.ManualPayment {
	return model.ManualPayment{
		ID:              "mp-1",
		OrderID:         "order-1",
		UserID:          7,
		Amount:          1500,
		TransactionCode: "QJK3ABCD12",
		Status:          model.PaymentStatusPending,
	}
}

func TestManualPaymentUsecase_Review_Confirm(t *testing.T) {
	f := newManualFixture()

	f.payments.On("FindByIDForUpdate", mock.Anything, "mp-1").Return(pendingManualPayment(), nil)
	f.payments.On("UpdateReview", mock.Anything, "mp-1", model.PaymentStatusConfirmed, int64(1), mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, "order-1").Return(manualOrder(), nil)
	f.orders.On("UpdateStatus", mock.Anything, "order-1", model.OrderStatusConfirmed).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionReviewManualPayment &&
			l.ResourceType == model.AuditResourcePayment &&
			l.ResourceID == "mp-1" &&
			string(l.AfterJSON) == `{"status":"confirmed"}`
	})).Return(nil)
	f.events.On("PublishPaymentEvent", mock.Anything, mock.MatchedBy(func(e model.PaymentEvent) bool {
		return e.Type == model.PaymentEventConfirmed && e.ReceiptNumber == "QJK3ABCD12"
	})).Return(nil)

	out, err := f.uc.Review(context.Background(), 1, "mp-1", usecase.ReviewManualPaymentInput{Decision: "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusConfirmed, out.Status)
	require.NotNil(t, out.ReviewedBy)
	assert.Equal(t, int64(1), *out.ReviewedBy)

	f.payments.AssertExpectations(t)
	f.orders.AssertExpectations(t)
	f.audit.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestManualPaymentUsecase_Review_AlreadyReviewed(t *testing.T) {
	f := newManualFixture()

	p := pendingManualPayment()
	p.Status = model.PaymentStatusFailed
	f.payments.On("FindByIDForUpdate", mock.Anything, "mp-1").Return(p, nil)

	_, err := f.uc.Review(context.Background(), 1, "mp-1", usecase.ReviewManualPaymentInput{Decision: "confirmed"})
	assertHTTPError(t, err, http.StatusBadRequest, "payment already reviewed")
	f.payments.AssertNotCalled(t, "UpdateReview", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManualPaymentUsecase_Review_ConfirmCancelledOrder(t *testing.T) {
	f := newManualFixture()

	o := manualOrder()
	o.Status = model.OrderStatusCancelled
	f.payments.On("FindByIDForUpdate", mock.Anything, "mp-1").Return(pendingManualPayment(), nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, "order-1").Return(o, nil)

	_, err := f.uc.Review(context.Background(), 1, "mp-1", usecase.ReviewManualPaymentInput{Decision: "confirmed"})
	assertHTTPError(t, err, http.StatusConflict, "order cannot be confirmed")
	f.payments.AssertNotCalled(t, "UpdateReview", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "PublishPaymentEvent", mock.Anything, mock.Anything)
}

func TestManualPaymentUsecase_Review_RejectCancelledOrder(t *testing.T) {
	f := newManualFixture()

	o := manualOrder()
	o.Status = model.OrderStatusCancelled
	f.payments.On("FindByIDForUpdate", mock.Anything, "mp-1").Return(pendingManualPayment(), nil)
	f.payments.On("UpdateReview", mock.Anything, "mp-1", model.PaymentStatusFailed, int64(1), mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, "order-1").Return(o, nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.events.On("PublishPaymentEvent", mock.Anything, mock.Anything).Return(nil)

	out, err := f.uc.Review(context.Background(), 1, "mp-1", usecase.ReviewManualPaymentInput{Decision: "failed"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, out.Status)
	f.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestManualPaymentUsecase_Review_InvalidDecision(t *testing.T) {
	f := newManualFixture()

	_, err := f.uc.Review(context.Background(), 1, "mp-1", usecase.ReviewManualPaymentInput{Decision: "stk_sent"})
	assertHTTPError(t, err, http.StatusBadRequest, "invalid decision")
}

func TestManualPaymentUsecase_ListPending(t *testing.T) {
	f := newManualFixture()

	f.payments.On("ListByStatus", mock.Anything, model.PaymentStatusPending, 50).
		Return([]model.ManualPayment{pendingManualPayment()}, nil)

	outs, err := f.uc.ListPending(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "mp-1", outs[0].ID)
}
