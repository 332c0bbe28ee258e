package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"smarthub/internal/domain/model"
)

// Postgresの LISTEN を受けてHubに流す。
// 接続が切れたらバックオフして張り直す。
type Listener struct {
	dsn     string
	channel string
	hub     *Hub
	log     *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewListener(dsn string, hub *Hub, log *zap.Logger) *Listener {
	return &Listener{
		dsn:        dsn,
		channel:    model.PaymentUpdatesChannel,
		hub:        hub,
		log:        log,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// ctxが終わるまで戻らない
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("payment listener disconnected",
			zap.Error(err),
			zap.Duration("retry_in", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.log.Info("payment listener started", zap.String("channel", l.channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.dispatch(n.Payload)
	}
}

func (l *Listener) dispatch(payload string) {
	var u model.PaymentUpdate
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		l.log.Warn("invalid payment notification", zap.Error(err))
		return
	}
	if u.CheckoutRequestID == "" {
		l.log.Warn("payment notification without checkout_request_id")
		return
	}
	n := l.hub.Publish(u)
	l.log.Debug("payment update dispatched",
		zap.String("checkout_request_id", u.CheckoutRequestID),
		zap.String("status", string(u.Status)),
		zap.Int("subscribers", n),
	)
}
