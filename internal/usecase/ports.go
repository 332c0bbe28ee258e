package usecase

import (
	"context"

	"smarthub/internal/domain/model"
	"smarthub/internal/gateway/mpesa"
)

// STK pushを送る先（mpesa.Client）
type StkGateway interface {
	Configured() bool
	StkPush(ctx context.Context, req mpesa.StkPushRequest) (mpesa.StkPushResponse, error)
}

// 決済イベントの送り先（Kafka / Nop）
type PaymentEventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event model.PaymentEvent) error
}
