package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RuntimeConfig is a tunable key/value pair editable at runtime.
type RuntimeConfig struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Key       string       `gorm:"uniqueIndex;not null" json:"key"`
	Value     string       `gorm:"not null" json:"value"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

// Known keys.
const (
	KeyTaxPercent      = "tax_percent"
	KeyDiscountPercent = "discount_percent"
	KeyDiscountValue   = "discount_value"
	// KeyEmergencyDestinations is a semicolon-separated prefix list kept
	// dialable on every subscription.
	KeyEmergencyDestinations = "emergency_destinations"
)

var ErrNotFound = errors.New("runtime config not found")
