package athm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/borikenlabs/athmovil/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	NotificationPaymentCompleted = "payment.completed"
	NotificationPaymentCancelled = "payment.cancelled"
	NotificationPaymentExpired   = "payment.expired"
	NotificationRefundSent       = "refund.sent"
)

// Notification is a domain event describing a state transition that actually
// happened. Notifications are collected while a transaction is open and
// published only after it commits.
type Notification struct {
	Kind    string          `json:"kind"`
	Payment *models.Payment `json:"payment,omitempty"`
	Refund  *models.Refund  `json:"refund,omitempty"`
}

// Notifier publishes committed domain events.
type Notifier interface {
	Publish(n Notification)
}

// Dispatcher fans notifications out to registered in-process handlers and,
// when a Redis client is configured, publishes JSON envelopes to
// "athm:events:<kind>" channels.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []func(Notification)
	rdb      *redis.Client
}

// NewDispatcher creates a dispatcher. rdb may be nil for in-process-only use.
func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// Subscribe registers an in-process handler invoked for every notification.
func (d *Dispatcher) Subscribe(fn func(Notification)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, fn)
}

func (d *Dispatcher) Publish(n Notification) {
	d.mu.RLock()
	handlers := make([]func(Notification), len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	for _, fn := range handlers {
		fn(n)
	}

	if d.rdb == nil {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		log.Errorf("[Notify] Failed to marshal %s notification: %v", n.Kind, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.rdb.Publish(ctx, "athm:events:"+n.Kind, payload).Err(); err != nil {
		log.Errorf("[Notify] Failed to publish %s to redis: %v", n.Kind, err)
	}
}
