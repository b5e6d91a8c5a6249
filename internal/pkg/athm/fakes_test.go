package athm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/borikenlabs/athmovil/app/models"
	"github.com/borikenlabs/athmovil/app/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func strPtr(s string) *string {
	return &s
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("invalid decimal %q: %v", s, err)
	}
	return d
}

// fakeStore is an in-memory repository.Store. Transactions serialize on one
// mutex and snapshot all tables so returning an error rolls everything back,
// and the idempotency-key uniqueness constraint is enforced the way the real
// store enforces it.
type fakeStore struct {
	mu sync.Mutex

	events      map[uint]models.WebhookEvent
	eventsByKey map[string]uint
	payments    map[uint]models.Payment
	paymentsByE map[string]uint
	refunds     map[uint]models.Refund
	refundsByRN map[string]uint
	clients     map[uint]models.Client
	clientsByPh map[string]uint
	nextID      uint

	failSavePayment error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:      map[uint]models.WebhookEvent{},
		eventsByKey: map[string]uint{},
		payments:    map[uint]models.Payment{},
		paymentsByE: map[string]uint{},
		refunds:     map[uint]models.Refund{},
		refundsByRN: map[string]uint{},
		clients:     map[uint]models.Client{},
		clientsByPh: map[string]uint{},
	}
}

func (s *fakeStore) allocID() uint {
	s.nextID++
	return s.nextID
}

type snapshot struct {
	events      map[uint]models.WebhookEvent
	eventsByKey map[string]uint
	payments    map[uint]models.Payment
	paymentsByE map[string]uint
	refunds     map[uint]models.Refund
	refundsByRN map[string]uint
	clients     map[uint]models.Client
	clientsByPh map[string]uint
	nextID      uint
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *fakeStore) snapshot() snapshot {
	return snapshot{
		events:      copyMap(s.events),
		eventsByKey: copyMap(s.eventsByKey),
		payments:    copyMap(s.payments),
		paymentsByE: copyMap(s.paymentsByE),
		refunds:     copyMap(s.refunds),
		refundsByRN: copyMap(s.refundsByRN),
		clients:     copyMap(s.clients),
		clientsByPh: copyMap(s.clientsByPh),
		nextID:      s.nextID,
	}
}

func (s *fakeStore) restore(snap snapshot) {
	s.events = snap.events
	s.eventsByKey = snap.eventsByKey
	s.payments = snap.payments
	s.paymentsByE = snap.paymentsByE
	s.refunds = snap.refunds
	s.refundsByRN = snap.refundsByRN
	s.clients = snap.clients
	s.clientsByPh = snap.clientsByPh
	s.nextID = snap.nextID
}

func (s *fakeStore) Transaction(fn func(tx repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *fakeStore) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.eventsByKey[event.IdempotencyKey]; ok {
		stored := s.events[id]
		return false, &stored, nil
	}
	event.ID = s.allocID()
	event.CreatedAt = time.Now()
	s.events[event.ID] = *event
	s.eventsByKey[event.IdempotencyKey] = event.ID
	stored := s.events[event.ID]
	return true, &stored, nil
}

func (s *fakeStore) GetWebhookEventByID(id uint) (*models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).GetWebhookEventByID(id)
}

func (s *fakeStore) GetWebhookEventForUpdate(id uint) (*models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).GetWebhookEventForUpdate(id)
}

func (s *fakeStore) SaveWebhookEvent(event *models.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).SaveWebhookEvent(event)
}

func (s *fakeStore) RecordWebhookEventError(id uint, processingError, traceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ev.ProcessingError = processingError
	ev.TraceID = traceID
	s.events[id] = ev
	return nil
}

func (s *fakeStore) CreatePayment(p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).CreatePayment(p)
}

func (s *fakeStore) SavePayment(p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).SavePayment(p)
}

func (s *fakeStore) GetPaymentByID(id uint) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).GetPaymentByID(id)
}

func (s *fakeStore) GetPaymentByEcommerceID(eid string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).GetPaymentByEcommerceID(eid)
}

func (s *fakeStore) GetPaymentForUpdateByID(id uint) (*models.Payment, error) {
	return s.GetPaymentByID(id)
}

func (s *fakeStore) GetPaymentForUpdateByEcommerceID(eid string) (*models.Payment, error) {
	return s.GetPaymentByEcommerceID(eid)
}

func (s *fakeStore) GetPaymentForUpdateByReferenceNumber(rn string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).GetPaymentForUpdateByReferenceNumber(rn)
}

func (s *fakeStore) ListPayments(offset, limit int) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).ListPayments(offset, limit)
}

func (s *fakeStore) CountPayments() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.payments)), nil
}

func (s *fakeStore) ListReconcilablePayments(cutoff time.Time, limit int) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).ListReconcilablePayments(cutoff, limit)
}

func (s *fakeStore) CreateRefund(r *models.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).CreateRefund(r)
}

func (s *fakeStore) GetRefundByReferenceNumber(rn string) (*models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).GetRefundByReferenceNumber(rn)
}

func (s *fakeStore) CreateClient(c *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).CreateClient(c)
}

func (s *fakeStore) SaveClient(c *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).SaveClient(c)
}

func (s *fakeStore) GetClientForUpdateByPhone(phone string) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).GetClientForUpdateByPhone(phone)
}

// fakeTx is the view handed to Transaction callbacks; the parent already
// holds the mutex.
type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) Transaction(fn func(tx repository.Store) error) error {
	return fn(t)
}

func (t *fakeTx) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if id, ok := t.s.eventsByKey[event.IdempotencyKey]; ok {
		stored := t.s.events[id]
		return false, &stored, nil
	}
	event.ID = t.s.allocID()
	t.s.events[event.ID] = *event
	t.s.eventsByKey[event.IdempotencyKey] = event.ID
	stored := t.s.events[event.ID]
	return true, &stored, nil
}

func (t *fakeTx) GetWebhookEventByID(id uint) (*models.WebhookEvent, error) {
	ev, ok := t.s.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &ev, nil
}

func (t *fakeTx) GetWebhookEventForUpdate(id uint) (*models.WebhookEvent, error) {
	return t.GetWebhookEventByID(id)
}

func (t *fakeTx) SaveWebhookEvent(event *models.WebhookEvent) error {
	if _, ok := t.s.events[event.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	t.s.events[event.ID] = *event
	return nil
}

func (t *fakeTx) RecordWebhookEventError(id uint, processingError, traceID string) error {
	ev, ok := t.s.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ev.ProcessingError = processingError
	ev.TraceID = traceID
	t.s.events[id] = ev
	return nil
}

// paymentRefConflict mirrors the unique index on payments.reference_number:
// NULLs repeat freely, assigned numbers may not.
func (t *fakeTx) paymentRefConflict(p *models.Payment) bool {
	ref := p.ReferenceNumberValue()
	if ref == "" {
		return false
	}
	for id, other := range t.s.payments {
		if id != p.ID && other.ReferenceNumberValue() == ref {
			return true
		}
	}
	return false
}

func (t *fakeTx) CreatePayment(p *models.Payment) error {
	if _, ok := t.s.paymentsByE[p.EcommerceID]; ok {
		return errors.New("duplicate ecommerce_id")
	}
	if t.paymentRefConflict(p) {
		return errors.New("duplicate payment reference_number")
	}
	p.ID = t.s.allocID()
	p.CreatedAt = time.Now()
	t.s.payments[p.ID] = *p
	t.s.paymentsByE[p.EcommerceID] = p.ID
	return nil
}

func (t *fakeTx) SavePayment(p *models.Payment) error {
	if t.s.failSavePayment != nil {
		return t.s.failSavePayment
	}
	if _, ok := t.s.payments[p.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	if t.paymentRefConflict(p) {
		return errors.New("duplicate payment reference_number")
	}
	t.s.payments[p.ID] = *p
	return nil
}

func (t *fakeTx) GetPaymentByID(id uint) (*models.Payment, error) {
	p, ok := t.s.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (t *fakeTx) GetPaymentByEcommerceID(eid string) (*models.Payment, error) {
	id, ok := t.s.paymentsByE[eid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	p := t.s.payments[id]
	return &p, nil
}

func (t *fakeTx) GetPaymentForUpdateByID(id uint) (*models.Payment, error) {
	return t.GetPaymentByID(id)
}

func (t *fakeTx) GetPaymentForUpdateByEcommerceID(eid string) (*models.Payment, error) {
	return t.GetPaymentByEcommerceID(eid)
}

func (t *fakeTx) GetPaymentForUpdateByReferenceNumber(rn string) (*models.Payment, error) {
	if rn == "" {
		return nil, gorm.ErrRecordNotFound
	}
	for id, p := range t.s.payments {
		if p.ReferenceNumberValue() == rn {
			p := t.s.payments[id]
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (t *fakeTx) ListPayments(offset, limit int) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range t.s.payments {
		out = append(out, p)
	}
	return out, nil
}

func (t *fakeTx) CountPayments() (int64, error) {
	return int64(len(t.s.payments)), nil
}

func (t *fakeTx) ListReconcilablePayments(cutoff time.Time, limit int) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range t.s.payments {
		if (p.Status == models.PaymentStatusOpen || p.Status == models.PaymentStatusConfirm) && p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *fakeTx) CreateRefund(r *models.Refund) error {
	if _, ok := t.s.refundsByRN[r.ReferenceNumber]; ok {
		return errors.New("duplicate refund reference_number")
	}
	r.ID = t.s.allocID()
	t.s.refunds[r.ID] = *r
	t.s.refundsByRN[r.ReferenceNumber] = r.ID
	return nil
}

func (t *fakeTx) GetRefundByReferenceNumber(rn string) (*models.Refund, error) {
	id, ok := t.s.refundsByRN[rn]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	r := t.s.refunds[id]
	return &r, nil
}

func (t *fakeTx) CreateClient(c *models.Client) error {
	if _, ok := t.s.clientsByPh[c.PhoneNumber]; ok {
		return errors.New("duplicate phone_number")
	}
	c.ID = t.s.allocID()
	t.s.clients[c.ID] = *c
	t.s.clientsByPh[c.PhoneNumber] = c.ID
	return nil
}

func (t *fakeTx) SaveClient(c *models.Client) error {
	if _, ok := t.s.clients[c.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	t.s.clients[c.ID] = *c
	return nil
}

func (t *fakeTx) GetClientForUpdateByPhone(phone string) (*models.Client, error) {
	id, ok := t.s.clientsByPh[phone]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := t.s.clients[id]
	return &c, nil
}

// fakeNotifier records every published notification.
type fakeNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (n *fakeNotifier) Publish(notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
}

func (n *fakeNotifier) byKind(kind string) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notification
	for _, notification := range n.notifications {
		if notification.Kind == kind {
			out = append(out, notification)
		}
	}
	return out
}

// fakeGateway scripts remote responses and records calls.
type fakeGateway struct {
	mu sync.Mutex

	status    string
	statusErr error

	confirmation *RefundConfirmation
	refundErr    error

	statusCalls []string
	refundCalls []fakeRefundCall
}

type fakeRefundCall struct {
	ReferenceNumber string
	Amount          decimal.Decimal
	Message         string
}

func (g *fakeGateway) PaymentStatus(ctx context.Context, ecommerceID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls = append(g.statusCalls, ecommerceID)
	if g.statusErr != nil {
		return "", g.statusErr
	}
	return g.status, nil
}

func (g *fakeGateway) Refund(ctx context.Context, referenceNumber string, amount decimal.Decimal, message string) (*RefundConfirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, fakeRefundCall{ReferenceNumber: referenceNumber, Amount: amount, Message: message})
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	if g.confirmation != nil {
		return g.confirmation, nil
	}
	return &RefundConfirmation{ReferenceNumber: referenceNumber, Amount: amount}, nil
}
