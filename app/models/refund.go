package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Refund records a single disbursement against a completed payment. The
// customer fields are a snapshot taken at refund time; rows are immutable once
// created and the sum of a payment's refund amounts never exceeds its net amount.
type Refund struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	ReferenceNumber    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference_number"`
	DailyTransactionID string          `gorm:"type:varchar(64)" json:"daily_transaction_id"`
	Amount             decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount" validate:"required"`

	PaymentID uint     `gorm:"not null;index" json:"payment_id"`
	Payment   *Payment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
	ClientID  *uint    `gorm:"index" json:"client_id"`
	Client    *Client  `gorm:"foreignKey:ClientID" json:"client,omitempty"`

	CustomerName  string `gorm:"type:varchar(150)" json:"customer_name"`
	CustomerPhone string `gorm:"type:varchar(30)" json:"customer_phone"`
	CustomerEmail string `gorm:"type:varchar(200)" json:"customer_email"`
	Message       string `gorm:"type:text" json:"message"`

	TransactionDate *time.Time     `gorm:"type:timestamp;default:null" json:"transaction_date"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
