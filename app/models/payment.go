package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PaymentStatusOpen      = "OPEN"
	PaymentStatusConfirm   = "CONFIRM"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusCancel    = "CANCEL"
	PaymentStatusExpired   = "EXPIRED"
)

// Payment is one external ATH Móvil payment attempt. EcommerceID is assigned by
// the gateway when the payment is opened and never changes; ReferenceNumber is
// assigned only once the payment completes and is the correlation key for
// refunds. It stays NULL until then, so the unique index only binds assigned
// numbers.
type Payment struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	EcommerceID     string  `gorm:"type:varchar(64);uniqueIndex;not null" json:"ecommerce_id"`
	ReferenceNumber *string `gorm:"type:varchar(64);uniqueIndex;default:null" json:"reference_number,omitempty"`
	Status          string  `gorm:"type:varchar(20);default:'OPEN';index" json:"status" validate:"oneof=OPEN CONFIRM COMPLETED CANCEL EXPIRED"`

	Total               decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"total"`
	Subtotal            decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"subtotal"`
	Tax                 decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"tax"`
	Fee                 decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"fee"`
	NetAmount           decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"net_amount"`
	TotalRefundedAmount decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"total_refunded_amount"`

	CustomerName  string `gorm:"type:varchar(150)" json:"customer_name"`
	CustomerPhone string `gorm:"type:varchar(30)" json:"customer_phone"`
	CustomerEmail string `gorm:"type:varchar(200)" json:"customer_email"`
	BusinessName  string `gorm:"type:varchar(150)" json:"business_name"`
	Message       string `gorm:"type:text" json:"message"`
	Metadata1     string `gorm:"type:varchar(255)" json:"metadata1"`
	Metadata2     string `gorm:"type:varchar(255)" json:"metadata2"`

	ClientID *uint    `gorm:"index" json:"client_id"`
	Client   *Client  `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Refunds  []Refund `gorm:"foreignKey:PaymentID" json:"refunds,omitempty"`

	TransactionDate *time.Time     `gorm:"type:timestamp;default:null" json:"transaction_date"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsTerminalStatus reports whether a status admits no further status-only
// transitions. COMPLETED payments stay mutable for enrichment only.
func IsTerminalStatus(status string) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusCancel, PaymentStatusExpired:
		return true
	}
	return false
}

// ReferenceNumberValue returns the assigned reference number, or "" while the
// payment has not completed and none exists.
func (p *Payment) ReferenceNumberValue() string {
	if p.ReferenceNumber == nil {
		return ""
	}
	return *p.ReferenceNumber
}

// CanApplyCancelOrExpire reports whether a CANCEL or EXPIRED update may be
// applied to the payment's current status.
func (p *Payment) CanApplyCancelOrExpire() bool {
	return p.Status == PaymentStatusOpen || p.Status == PaymentStatusConfirm
}

// CanApplyConfirm guards against regressing an already completed or terminal
// payment back to CONFIRM from a stale poll result.
func (p *Payment) CanApplyConfirm() bool {
	return p.Status == PaymentStatusOpen
}

// RefundableAmount returns the portion of the net amount not yet refunded.
// Payments that never completed have nothing to refund.
func (p *Payment) RefundableAmount() decimal.Decimal {
	if p.Status != PaymentStatusCompleted {
		return decimal.Zero
	}
	remaining := p.NetAmount.Sub(p.TotalRefundedAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

func (p *Payment) IsRefundable() bool {
	return p.Status == PaymentStatusCompleted && p.RefundableAmount().IsPositive()
}
