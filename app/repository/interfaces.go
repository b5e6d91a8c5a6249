package repository

import (
	"time"

	"github.com/borikenlabs/athmovil/app/models"
	"gorm.io/gorm"
)

// Store defines the database operations used by the reconciliation core. All
// mutation of payments, refunds and clients happens through a Store obtained
// inside Transaction, where the ForUpdate variants take row locks that are held
// until the transaction ends.
type Store interface {
	// Transaction runs fn against a transactional Store. Returning an error
	// rolls back every write made through that Store.
	Transaction(fn func(tx Store) error) error

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	GetWebhookEventByID(id uint) (*models.WebhookEvent, error)
	GetWebhookEventForUpdate(id uint) (*models.WebhookEvent, error)
	SaveWebhookEvent(event *models.WebhookEvent) error
	// RecordWebhookEventError persists diagnostic detail for a failed event.
	// Called outside the rolled-back transaction, best effort.
	RecordWebhookEventError(id uint, processingError, traceID string) error

	CreatePayment(payment *models.Payment) error
	SavePayment(payment *models.Payment) error
	GetPaymentByID(id uint) (*models.Payment, error)
	GetPaymentByEcommerceID(ecommerceID string) (*models.Payment, error)
	GetPaymentForUpdateByID(id uint) (*models.Payment, error)
	GetPaymentForUpdateByEcommerceID(ecommerceID string) (*models.Payment, error)
	GetPaymentForUpdateByReferenceNumber(referenceNumber string) (*models.Payment, error)
	ListPayments(offset, limit int) ([]models.Payment, error)
	CountPayments() (int64, error)
	// ListReconcilablePayments returns non-terminal payments created before the
	// cutoff, oldest first, for the background reconcile sweep.
	ListReconcilablePayments(cutoff time.Time, limit int) ([]models.Payment, error)

	CreateRefund(refund *models.Refund) error
	GetRefundByReferenceNumber(referenceNumber string) (*models.Refund, error)

	CreateClient(client *models.Client) error
	SaveClient(client *models.Client) error
	GetClientForUpdateByPhone(phoneNumber string) (*models.Client, error)
}

// NewStore creates a GORM-backed Store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) Transaction(fn func(tx Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
