package repository

import (
	"context"

	repo "smarthub/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders             repo.OrderRepository
	stkPayments        repo.StkPaymentRepository
	manualPayments     repo.ManualPaymentRepository
	processedCallbacks repo.ProcessedCallbackRepository
	auditLogs          repo.AuditLogRepository
	users              repo.UserRepository
	notifier           repo.PaymentNotifier
}

func (r *txReposGorm) Orders() repo.OrderRepository                 { return r.orders }
func (r *txReposGorm) StkPayments() repo.StkPaymentRepository       { return r.stkPayments }
func (r *txReposGorm) ManualPayments() repo.ManualPaymentRepository { return r.manualPayments }
func (r *txReposGorm) ProcessedCallbacks() repo.ProcessedCallbackRepository {
	return r.processedCallbacks
}
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository { return r.auditLogs }
func (r *txReposGorm) Users() repo.UserRepository         { return r.users }
func (r *txReposGorm) Notifier() repo.PaymentNotifier     { return r.notifier }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			orders:             NewOrderGormRepository(tx),
			stkPayments:        NewStkPaymentGormRepository(tx),
			manualPayments:     NewManualPaymentGormRepository(tx),
			processedCallbacks: NewProcessedCallbackGormRepository(tx),
			auditLogs:          NewAuditLogGormRepository(tx),
			users:              NewUserGormRepository(tx),
			notifier:           NewPgNotifier(tx),
		}
		return fn(r)
	})
}
