package messaging

import (
	"context"

	"smarthub/internal/domain/model"
)

type PaymentEventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event model.PaymentEvent) error
	Close() error
}

// Kafka未設定のとき
type NopPublisher struct{}

func (NopPublisher) PublishPaymentEvent(context.Context, model.PaymentEvent) error { return nil }
func (NopPublisher) Close() error                                                  { return nil }
