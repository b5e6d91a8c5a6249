package models

import "time"

// WebhookEvent stores one deduplicated gateway delivery. The unique idempotency
// key is the sole dedup mechanism: concurrent redeliveries of the same logical
// event all resolve to this row, and Processed flips to true exactly once.
type WebhookEvent struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	IdempotencyKey string `gorm:"type:varchar(64);uniqueIndex;not null" json:"idempotency_key"`
	EventType      string `gorm:"type:varchar(40);not null;index" json:"event_type"`
	Payload        string `gorm:"type:longtext;not null" json:"payload"`
	RemoteIP       string `gorm:"type:varchar(45)" json:"remote_ip"`
	Processed      bool   `gorm:"default:false;index" json:"processed"`

	PaymentID *uint `gorm:"index" json:"payment_id,omitempty"`
	RefundID  *uint `gorm:"index" json:"refund_id,omitempty"`

	ProcessingError string `gorm:"type:text" json:"processing_error"`
	TraceID         string `gorm:"type:varchar(36)" json:"trace_id"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
