package athm

import (
	"errors"
	"fmt"

	"github.com/borikenlabs/athmovil/app/models"
	"github.com/borikenlabs/athmovil/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// handlerFunc applies one event type inside an open transaction. It returns
// the notifications to publish after commit; returning an error rolls the
// whole transaction back, leaving the event unprocessed.
type handlerFunc func(tx repository.Store, event *models.WebhookEvent, w Webhook) ([]Notification, error)

// Processor turns deduplicated webhook events into payment state transitions.
// Each Process call is one atomic transaction: the target payment row is
// locked, the transition guards decide whether the update applies, and the
// processed flag flips together with the mutation.
type Processor struct {
	store    repository.Store
	notifier Notifier
	dispatch map[EventType]handlerFunc
}

func NewProcessor(store repository.Store, notifier Notifier) *Processor {
	p := &Processor{store: store, notifier: notifier}
	p.dispatch = map[EventType]handlerFunc{
		EventCompleted: p.handleCompleted,
		EventCancelled: p.handleCancelledOrExpired,
		EventExpired:   p.handleCancelledOrExpired,
		EventRefund:    p.handleRefund,
		EventPayment:   p.handleNoop,
		EventDonation:  p.handleNoop,
		EventSimulated: p.handleNoop,
		EventUnknown:   p.handleUnknown,
	}
	return p
}

// StoreEvent classifies the raw payload, derives its idempotency key and
// inserts the event row unless an identical delivery already created it.
// Payloads that fail to parse are still stored (as UNKNOWN, keyed by a digest
// of the raw bytes) so operators can inspect them.
func (p *Processor) StoreEvent(raw []byte, remoteIP string) (*models.WebhookEvent, bool, error) {
	eventType := EventUnknown
	var key string

	w, err := ParseWebhook(raw)
	if err != nil {
		log.Warnf("[Processor] Unparseable webhook payload from %s: %v", remoteIP, err)
		key = DeriveKey(Webhook{TransactionType: "unparseable", ReferenceNumber: string(raw)})
	} else {
		eventType = Classify(w)
		key = DeriveKey(w)
	}

	event := &models.WebhookEvent{
		IdempotencyKey: key,
		EventType:      string(eventType),
		Payload:        string(raw),
		RemoteIP:       remoteIP,
		TraceID:        uuid.NewString(),
	}
	created, stored, err := p.store.CreateWebhookEventIfNotExists(event)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// Process runs the stored event through its type handler inside one
// transaction. Already-processed events are a guaranteed no-op, which is what
// makes gateway redelivery side-effect-free. Notifications fire only after the
// transaction commits, and only for transitions that actually applied.
func (p *Processor) Process(eventID uint) error {
	var pending []Notification

	err := p.store.Transaction(func(tx repository.Store) error {
		event, err := tx.GetWebhookEventForUpdate(eventID)
		if err != nil {
			return fmt.Errorf("load webhook event %d: %w", eventID, err)
		}
		if event.Processed {
			log.Infof("[Processor] Event %d already processed, skipping", event.ID)
			return nil
		}

		w, parseErr := ParseWebhook([]byte(event.Payload))
		eventType := EventType(event.EventType)
		if parseErr != nil {
			eventType = EventUnknown
		}

		handler, ok := p.dispatch[eventType]
		if !ok {
			handler = p.handleUnknown
		}

		notifications, err := handler(tx, event, w)
		if err != nil {
			return err
		}

		event.Processed = true
		event.ProcessingError = ""
		if err := tx.SaveWebhookEvent(event); err != nil {
			return fmt.Errorf("mark event %d processed: %w", eventID, err)
		}

		pending = notifications
		return nil
	})
	if err != nil {
		log.Errorf("[Processor] Event %d failed, transaction rolled back: %v", eventID, err)
		p.recordFailure(eventID, err)
		return err
	}

	for _, n := range pending {
		p.notifier.Publish(n)
	}
	return nil
}

// recordFailure persists diagnostics outside the rolled-back transaction so
// the event stays reprocessable but the operator can see what went wrong. The
// trace id assigned at delivery time is kept so logs stay correlated.
func (p *Processor) recordFailure(eventID uint, cause error) {
	var traceID string
	if event, err := p.store.GetWebhookEventByID(eventID); err == nil {
		traceID = event.TraceID
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if err := p.store.RecordWebhookEventError(eventID, cause.Error(), traceID); err != nil {
		log.Errorf("[Processor] Could not record error for event %d (trace %s): %v", eventID, traceID, err)
	}
}

// Reprocess clears a failed event's error state and runs it again. Used by the
// operator reprocessing endpoint; processed events stay no-ops.
func (p *Processor) Reprocess(eventID uint) error {
	event, err := p.store.GetWebhookEventByID(eventID)
	if err != nil {
		return err
	}
	if event.ProcessingError != "" {
		if err := p.store.RecordWebhookEventError(event.ID, "", ""); err != nil {
			return err
		}
	}
	return p.Process(event.ID)
}

// getOrCreatePaymentForUpdate resolves the payment for an ecommerce event,
// locking the row. Unseen ecommerce ids create the payment lazily with
// defaults taken from the payload itself.
func getOrCreatePaymentForUpdate(tx repository.Store, w Webhook) (*models.Payment, error) {
	payment, err := tx.GetPaymentForUpdateByEcommerceID(w.EcommerceID)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	payment = &models.Payment{
		EcommerceID: w.EcommerceID,
		Status:      models.PaymentStatusOpen,
		Total:       w.Total,
		Subtotal:    w.SubTotal,
		Tax:         w.Tax,
		Metadata1:   w.Metadata1,
		Metadata2:   w.Metadata2,
	}
	if err := tx.CreatePayment(payment); err != nil {
		// Lost a create race with a concurrent event for the same unseen id.
		if existing, lookupErr := tx.GetPaymentForUpdateByEcommerceID(w.EcommerceID); lookupErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return payment, nil
}

// handleCompleted applies a completion. No terminal guard: completions may
// arrive more than once carrying enriched data, and later deliveries keep
// updating the monetary and customer fields. Only the first transition to
// COMPLETED fires the notification.
func (p *Processor) handleCompleted(tx repository.Store, event *models.WebhookEvent, w Webhook) ([]Notification, error) {
	if w.EcommerceID == "" {
		log.Warnf("[Processor] Completed event %d has no ecommerce id, dropping", event.ID)
		return nil, nil
	}

	payment, err := getOrCreatePaymentForUpdate(tx, w)
	if err != nil {
		return nil, err
	}
	wasAlreadyCompleted := payment.Status == models.PaymentStatusCompleted

	payment.Status = models.PaymentStatusCompleted
	if w.ReferenceNumber != "" {
		ref := w.ReferenceNumber
		payment.ReferenceNumber = &ref
	}
	payment.Total = w.Total
	payment.Subtotal = w.SubTotal
	payment.Tax = w.Tax
	payment.Fee = w.Fee
	payment.NetAmount = w.NetAmount
	payment.TotalRefundedAmount = w.TotalRefundedAmount
	payment.CustomerName = w.Name
	payment.CustomerPhone = w.PhoneNumber
	payment.CustomerEmail = w.Email
	payment.BusinessName = w.BusinessName
	payment.Message = w.Message
	payment.Metadata1 = w.Metadata1
	payment.Metadata2 = w.Metadata2
	if ts := parseTransactionDate(w.Date); ts != nil {
		payment.TransactionDate = ts
	}

	client, err := ResolveClient(tx, w.PhoneNumber, w.Name, w.Email)
	if err != nil {
		return nil, err
	}
	if client != nil {
		payment.ClientID = &client.ID
	}

	if err := tx.SavePayment(payment); err != nil {
		return nil, err
	}
	event.PaymentID = &payment.ID

	if wasAlreadyCompleted {
		log.Infof("[Processor] Payment %s re-completed with enriched data, no notification", payment.EcommerceID)
		return nil, nil
	}
	return []Notification{{Kind: NotificationPaymentCompleted, Payment: payment}}, nil
}

// handleCancelledOrExpired applies a cancel/expire only to non-terminal
// payments; stale updates against completed payments are discarded but the
// event is still marked processed.
func (p *Processor) handleCancelledOrExpired(tx repository.Store, event *models.WebhookEvent, w Webhook) ([]Notification, error) {
	if w.EcommerceID == "" {
		log.Warnf("[Processor] Event %d has no ecommerce id, dropping", event.ID)
		return nil, nil
	}

	payment, err := getOrCreatePaymentForUpdate(tx, w)
	if err != nil {
		return nil, err
	}
	event.PaymentID = &payment.ID

	if !payment.CanApplyCancelOrExpire() {
		log.Infof("[Processor] Payment %s is %s, ignoring %s event", payment.EcommerceID, payment.Status, event.EventType)
		return nil, nil
	}

	kind := NotificationPaymentCancelled
	payment.Status = models.PaymentStatusCancel
	if EventType(event.EventType) == EventExpired {
		payment.Status = models.PaymentStatusExpired
		kind = NotificationPaymentExpired
	}
	if err := tx.SavePayment(payment); err != nil {
		return nil, err
	}
	return []Notification{{Kind: kind, Payment: payment}}, nil
}

// handleRefund records a gateway-initiated refund against the completed
// payment it references. Refunds with no resolvable payment are dropped, not
// stored; duplicate reference numbers are skipped.
func (p *Processor) handleRefund(tx repository.Store, event *models.WebhookEvent, w Webhook) ([]Notification, error) {
	if w.ReferenceNumber == "" {
		log.Warnf("[Processor] Refund event %d has no reference number, dropping", event.ID)
		return nil, nil
	}

	payment, err := tx.GetPaymentForUpdateByReferenceNumber(w.ReferenceNumber)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Processor] Refund %s matches no payment, dropping", w.ReferenceNumber)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	event.PaymentID = &payment.ID

	if _, err := tx.GetRefundByReferenceNumber(w.ReferenceNumber); err == nil {
		log.Infof("[Processor] Refund %s already recorded, skipping", w.ReferenceNumber)
		return nil, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	refund := &models.Refund{
		ReferenceNumber:    w.ReferenceNumber,
		DailyTransactionID: w.DailyTransactionID,
		Amount:             w.Total,
		PaymentID:          payment.ID,
		CustomerName:       w.Name,
		CustomerPhone:      w.PhoneNumber,
		CustomerEmail:      w.Email,
		Message:            w.Message,
		TransactionDate:    parseTransactionDate(w.Date),
	}

	client, err := ResolveClient(tx, w.PhoneNumber, w.Name, w.Email)
	if err != nil {
		return nil, err
	}
	if client != nil {
		refund.ClientID = &client.ID
	}

	if err := tx.CreateRefund(refund); err != nil {
		return nil, err
	}
	event.RefundID = &refund.ID

	payment.TotalRefundedAmount = payment.TotalRefundedAmount.Add(refund.Amount)
	if err := tx.SavePayment(payment); err != nil {
		return nil, err
	}

	return []Notification{{Kind: NotificationRefundSent, Payment: payment, Refund: refund}}, nil
}

// handleNoop covers person-to-business payments, donations and simulated
// events: acknowledged and recorded, never mutating payment state. Simulated
// events exist purely so operators can validate the wiring.
func (p *Processor) handleNoop(tx repository.Store, event *models.WebhookEvent, w Webhook) ([]Notification, error) {
	log.Infof("[Processor] %s event %d acknowledged without mutation", event.EventType, event.ID)
	return nil, nil
}

func (p *Processor) handleUnknown(tx repository.Store, event *models.WebhookEvent, w Webhook) ([]Notification, error) {
	log.Warnf("[Processor] Unknown event %d (type %q), marking processed", event.ID, event.EventType)
	return nil, nil
}
