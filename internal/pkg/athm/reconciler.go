package athm

import (
	"context"
	"strings"

	"github.com/borikenlabs/athmovil/app/models"
	"github.com/borikenlabs/athmovil/app/repository"
	"github.com/gofiber/fiber/v2/log"
)

// Reconciler is the polling fallback for payments whose webhook never arrived.
// It folds the gateway's reported status into local state through the same
// transition guards the webhook path uses, and it never raises remote
// failures to the caller: on any error the local status is returned unchanged.
type Reconciler struct {
	store   repository.Store
	gateway StatusFetcher
}

func NewReconciler(store repository.Store, gateway StatusFetcher) *Reconciler {
	return &Reconciler{store: store, gateway: gateway}
}

// mapRemoteStatus translates the gateway vocabulary to local statuses.
// Unmapped values leave local state untouched.
func mapRemoteStatus(remote string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(remote)) {
	case "OPEN":
		return models.PaymentStatusOpen, true
	case "CONFIRM", "CONFIRMED":
		return models.PaymentStatusConfirm, true
	case "COMPLETED":
		return models.PaymentStatusCompleted, true
	case "CANCEL", "CANCELLED":
		return models.PaymentStatusCancel, true
	case "EXPIRED":
		return models.PaymentStatusExpired, true
	}
	return "", false
}

// SyncStatus queries the gateway for the payment's status and persists an
// applicable transition. Terminal payments short-circuit without a remote
// call: a poll result is status-only and never moves a payment out of
// COMPLETED, CANCEL or EXPIRED.
func (r *Reconciler) SyncStatus(ctx context.Context, payment *models.Payment) string {
	if models.IsTerminalStatus(payment.Status) {
		return payment.Status
	}

	remote, err := r.gateway.PaymentStatus(ctx, payment.EcommerceID)
	if err != nil {
		log.Warnf("[Reconciler] Status lookup for %s failed, keeping %s: %v", payment.EcommerceID, payment.Status, err)
		return payment.Status
	}

	mapped, ok := mapRemoteStatus(remote)
	if !ok {
		log.Warnf("[Reconciler] Unmapped remote status %q for %s, keeping %s", remote, payment.EcommerceID, payment.Status)
		return payment.Status
	}
	if mapped == payment.Status {
		return payment.Status
	}
	if mapped == models.PaymentStatusConfirm && !payment.CanApplyConfirm() {
		return payment.Status
	}
	if mapped == models.PaymentStatusOpen {
		return payment.Status
	}

	err = r.store.Transaction(func(tx repository.Store) error {
		locked, err := tx.GetPaymentForUpdateByID(payment.ID)
		if err != nil {
			return err
		}
		// Re-check under the lock: a concurrent webhook may have advanced the
		// payment past the point where this poll result still applies.
		if models.IsTerminalStatus(locked.Status) {
			*payment = *locked
			return nil
		}
		if mapped == models.PaymentStatusConfirm && !locked.CanApplyConfirm() {
			*payment = *locked
			return nil
		}
		locked.Status = mapped
		if err := tx.SavePayment(locked); err != nil {
			return err
		}
		*payment = *locked
		return nil
	})
	if err != nil {
		log.Errorf("[Reconciler] Failed to persist status %s for %s: %v", mapped, payment.EcommerceID, err)
	}
	return payment.Status
}
