package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Client is a deduplicated customer identity keyed by normalized phone number.
// Name and email follow latest-non-empty-wins: a newer webhook may update them
// but an empty incoming value never erases what is already known.
type Client struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	PhoneNumber string         `gorm:"type:varchar(20);uniqueIndex;not null" json:"phone_number"`
	Name        string         `gorm:"type:varchar(150)" json:"name"`
	Email       string         `gorm:"type:varchar(200)" json:"email" validate:"omitempty,email"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// NormalizePhoneNumber reduces a free-form phone number to its canonical key:
// digits only, truncated to the last 10 so "(787) 555-0123" and "+1 7875550123"
// collapse to the same client.
func NormalizePhoneNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// Merge folds newer identity fields into the client, keeping existing values
// when the incoming ones are empty. Returns true if anything changed.
func (c *Client) Merge(name, email string) bool {
	changed := false
	if n := strings.TrimSpace(name); n != "" && n != c.Name {
		c.Name = n
		changed = true
	}
	if e := strings.TrimSpace(email); e != "" && e != c.Email {
		c.Email = e
		changed = true
	}
	return changed
}
