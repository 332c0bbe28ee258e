package realtime

import (
	"sync"

	"smarthub/internal/domain/model"
)

const subscriberBuffer = 8

// checkout id単位で決済更新を配る。遅い購読者には落とす。
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan model.PaymentUpdate]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan model.PaymentUpdate]struct{})}
}

// 購読を始める。cancelは何度呼んでもよい。
func (h *Hub) Subscribe(checkoutRequestID string) (<-chan model.PaymentUpdate, func()) {
	ch := make(chan model.PaymentUpdate, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[checkoutRequestID]
	if !ok {
		set = make(map[chan model.PaymentUpdate]struct{})
		h.subs[checkoutRequestID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[checkoutRequestID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, checkoutRequestID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// 届いた購読者の数を返す
func (h *Hub) Publish(u model.PaymentUpdate) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subs[u.CheckoutRequestID] {
		select {
		case ch <- u:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub) Subscribers(checkoutRequestID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[checkoutRequestID])
}
