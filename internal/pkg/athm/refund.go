package athm

import (
	"context"
	"errors"

	"github.com/borikenlabs/athmovil/app/models"
	"github.com/borikenlabs/athmovil/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
)

// Validation errors returned synchronously to the caller; never retried.
var (
	ErrPaymentNotRefundable   = errors.New("payment is not refundable")
	ErrMissingReferenceNumber = errors.New("payment has no reference number")
	ErrInvalidRefundAmount    = errors.New("refund amount must be greater than zero")
	ErrRefundExceedsAvailable = errors.New("refund amount exceeds the refundable amount")
)

// refundMessageMaxLen is the gateway's accepted message length.
const refundMessageMaxLen = 50

// RefundOrchestrator executes operator-initiated refunds: validate locally,
// call the gateway, then record the confirmed refund and bump the payment's
// refunded total under a row lock. A failed remote call writes nothing locally.
type RefundOrchestrator struct {
	store    repository.Store
	gateway  RefundSender
	notifier Notifier
}

func NewRefundOrchestrator(store repository.Store, gateway RefundSender, notifier Notifier) *RefundOrchestrator {
	return &RefundOrchestrator{store: store, gateway: gateway, notifier: notifier}
}

// TruncateRefundMessage clips a message to what the gateway accepts.
func TruncateRefundMessage(message string) string {
	runes := []rune(message)
	if len(runes) <= refundMessageMaxLen {
		return message
	}
	return string(runes[:refundMessageMaxLen])
}

// Refund refunds the given amount against the payment. A nil amount means
// the full refundable amount. Validation fails fast with a distinct error per
// condition; remote failures propagate to the caller unmodified.
func (o *RefundOrchestrator) Refund(ctx context.Context, payment *models.Payment, amount *decimal.Decimal, message string) (*models.Refund, error) {
	if !payment.IsRefundable() {
		return nil, ErrPaymentNotRefundable
	}
	reference := payment.ReferenceNumberValue()
	if reference == "" {
		return nil, ErrMissingReferenceNumber
	}

	requested := payment.RefundableAmount()
	if amount != nil {
		requested = *amount
	}
	if !requested.IsPositive() {
		return nil, ErrInvalidRefundAmount
	}
	if requested.GreaterThan(payment.RefundableAmount()) {
		return nil, ErrRefundExceedsAvailable
	}

	message = TruncateRefundMessage(message)

	confirmation, err := o.gateway.Refund(ctx, reference, requested, message)
	if err != nil {
		return nil, err
	}

	approved := requested
	if confirmation.Amount.IsPositive() {
		approved = confirmation.Amount
	}

	refund := &models.Refund{
		ReferenceNumber:    confirmation.ReferenceNumber,
		DailyTransactionID: confirmation.DailyTransactionID,
		Amount:             approved,
		PaymentID:          payment.ID,
		CustomerName:       confirmation.Name,
		CustomerPhone:      confirmation.PhoneNumber,
		CustomerEmail:      confirmation.Email,
		Message:            message,
		TransactionDate:    parseTransactionDate(confirmation.Date),
	}
	if refund.ReferenceNumber == "" {
		refund.ReferenceNumber = reference
	}
	if refund.CustomerName == "" {
		refund.CustomerName = payment.CustomerName
	}
	if refund.CustomerPhone == "" {
		refund.CustomerPhone = payment.CustomerPhone
	}
	if refund.CustomerEmail == "" {
		refund.CustomerEmail = payment.CustomerEmail
	}

	err = o.store.Transaction(func(tx repository.Store) error {
		locked, err := tx.GetPaymentForUpdateByID(payment.ID)
		if err != nil {
			return err
		}
		if err := tx.CreateRefund(refund); err != nil {
			return err
		}
		locked.TotalRefundedAmount = locked.TotalRefundedAmount.Add(approved)
		if err := tx.SavePayment(locked); err != nil {
			return err
		}
		*payment = *locked
		return nil
	})
	if err != nil {
		log.Errorf("[Refund] Gateway approved %s for %s but the local ledger update failed: %v",
			approved.StringFixed(2), reference, err)
		return nil, err
	}

	o.notifier.Publish(Notification{Kind: NotificationRefundSent, Payment: payment, Refund: refund})
	return refund, nil
}
