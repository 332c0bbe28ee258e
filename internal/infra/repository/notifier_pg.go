package repository

import (
	"context"
	"encoding/json"

	"smarthub/internal/domain/model"

	"gorm.io/gorm"
)

// pg_notifyで決済更新を流す。tx内ならcommit時にだけ配信される。
type PgNotifier struct {
	db      *gorm.DB
	channel string
}

func NewPgNotifier(db *gorm.DB) *PgNotifier {
	return &PgNotifier{db: db, channel: model.PaymentUpdatesChannel}
}

func (n *PgNotifier) NotifyPayment(ctx context.Context, u model.PaymentUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return n.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", n.channel, string(payload)).Error
}
