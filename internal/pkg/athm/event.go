package athm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the coarse classification of an inbound gateway notification.
type EventType string

const (
	EventCompleted EventType = "ECOMMERCE_COMPLETED"
	EventCancelled EventType = "ECOMMERCE_CANCELLED"
	EventExpired   EventType = "ECOMMERCE_EXPIRED"
	EventRefund    EventType = "REFUND"
	EventPayment   EventType = "PAYMENT_RECEIVED"
	EventDonation  EventType = "DONATION_RECEIVED"
	EventSimulated EventType = "SIMULATED"
	EventUnknown   EventType = "UNKNOWN"
)

// Webhook is the normalized notification record delivered by ATH Móvil. Which
// fields are populated depends on the transaction type; monetary fields arrive
// as JSON numbers or strings and are decoded exactly.
type Webhook struct {
	EcommerceID         string          `json:"ecommerceId"`
	Status              string          `json:"status"`
	ReferenceNumber     string          `json:"referenceNumber"`
	DailyTransactionID  string          `json:"dailyTransactionId"`
	Name                string          `json:"name"`
	PhoneNumber         string          `json:"phoneNumber"`
	Email               string          `json:"email"`
	Total               decimal.Decimal `json:"total"`
	SubTotal            decimal.Decimal `json:"subTotal"`
	Tax                 decimal.Decimal `json:"tax"`
	Fee                 decimal.Decimal `json:"fee"`
	NetAmount           decimal.Decimal `json:"netAmount"`
	TotalRefundedAmount decimal.Decimal `json:"totalRefundedAmount"`
	BusinessName        string          `json:"businessName"`
	Message             string          `json:"message"`
	Metadata1           string          `json:"metadata1"`
	Metadata2           string          `json:"metadata2"`
	TransactionType     string          `json:"transactionType"`
	Date                string          `json:"date"`
}

// ParseWebhook decodes a raw gateway payload into its normalized form.
func ParseWebhook(raw []byte) (Webhook, error) {
	var w Webhook
	err := json.Unmarshal(raw, &w)
	return w, err
}

// Classify determines the event type from the payload shape. Payloads carrying
// a gateway transaction id (or declaring themselves ecommerce) classify by
// status; everything else classifies by its explicit transaction type.
func Classify(w Webhook) EventType {
	if w.EcommerceID != "" || strings.EqualFold(w.TransactionType, "ecommerce") {
		switch strings.ToUpper(strings.TrimSpace(w.Status)) {
		case "COMPLETED":
			return EventCompleted
		case "CANCEL", "CANCELLED":
			return EventCancelled
		case "EXPIRED":
			return EventExpired
		default:
			return EventUnknown
		}
	}

	switch strings.ToUpper(strings.TrimSpace(w.TransactionType)) {
	case "REFUND":
		return EventRefund
	case "PAYMENT":
		return EventPayment
	case "DONATION":
		return EventDonation
	case "SIMULATED":
		return EventSimulated
	default:
		return EventUnknown
	}
}

// DeriveKey produces the deterministic idempotency key for a payload: 32 hex
// characters of a sha256 digest over a small ordered tuple chosen per
// classification. Redeliveries of the same logical event hash identically;
// a different status for the same ecommerce id hashes differently, so each
// status transition of one payment is a distinct stored event.
func DeriveKey(w Webhook) string {
	var parts []string
	switch Classify(w) {
	case EventCompleted, EventCancelled, EventExpired:
		parts = []string{"ecommerce", w.EcommerceID, strings.ToUpper(strings.TrimSpace(w.Status))}
	case EventRefund:
		parts = []string{"refund", w.ReferenceNumber}
	default:
		parts = []string{strings.ToUpper(strings.TrimSpace(w.TransactionType)), w.ReferenceNumber}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:32]
}

// transactionDateLayouts covers the timestamp formats the gateway has been
// observed to send.
var transactionDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTransactionDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range transactionDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
