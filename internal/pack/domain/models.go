package domain

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/money"
)

// Package is a prepaid bundle. It becomes immutable once referenced by
// a PackageInvoice.
type Package struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	PackageCode  string       `gorm:"uniqueIndex;not null" json:"package_code"`
	PackageValue money.Amount `gorm:"not null" json:"package_value"`
	PackagePrice money.Amount `gorm:"not null" json:"package_price"`
	// PackageDue is the validity window literal: <n><unit> with unit one
	// of d, w, m, y (1d minimum, 1y maximum).
	PackageDue string    `gorm:"not null" json:"package_due"`
	Used       bool      `gorm:"not null;default:false" json:"used"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

// DueDuration parses the package_due literal.
func (p Package) DueDuration() (time.Duration, error) {
	if len(p.PackageDue) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadDue, p.PackageDue)
	}
	n, err := strconv.Atoi(p.PackageDue[:len(p.PackageDue)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadDue, p.PackageDue)
	}
	day := 24 * time.Hour
	var d time.Duration
	switch p.PackageDue[len(p.PackageDue)-1] {
	case 'd':
		d = time.Duration(n) * day
	case 'w':
		d = time.Duration(n) * 7 * day
	case 'm':
		d = time.Duration(n) * 30 * day
	case 'y':
		d = time.Duration(n) * 365 * day
	default:
		return 0, fmt.Errorf("%w: %q", ErrBadDue, p.PackageDue)
	}
	if d < day || d > 365*day {
		return 0, fmt.Errorf("%w: %q", ErrBadDue, p.PackageDue)
	}
	return d, nil
}

// PackageInvoice activates one package on a subscription. At most one
// row per subscription is active at a time.
type PackageInvoice struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	TrackingCode    string        `gorm:"uniqueIndex;not null" json:"tracking_code"`
	SubscriptionID  snowflake.ID  `gorm:"index;not null" json:"subscription_id"`
	PackageID       snowflake.ID  `gorm:"index;not null" json:"package_id"`
	TotalValue      money.Amount  `gorm:"not null" json:"total_value"`
	TotalCost       money.Amount  `gorm:"not null" json:"total_cost"`
	Status          ledger.Status `gorm:"not null" json:"status"`
	ExpiredAt       *time.Time    `json:"expired_at,omitempty"`
	IsActive        bool          `gorm:"not null;default:false" json:"is_active"`
	IsExpired       bool          `gorm:"not null;default:false" json:"is_expired"`
	AutoRenew       bool          `gorm:"not null;default:false" json:"auto_renew"`
	ExpiredValue    money.Amount  `json:"expired_value"`
	PayCoolDown     *time.Time    `json:"pay_cool_down,omitempty"`
	CreditInvoiceID *snowflake.ID `json:"credit_invoice_id,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
}

var (
	ErrNotFound      = errors.New("package not found")
	ErrDuplicateCode = errors.New("package code already exists")
	ErrImmutable     = errors.New("package is immutable after first use")
	ErrActiveExists  = errors.New("an active package invoice already exists")
	ErrBadDue        = errors.New("invalid package due")
)

var OrderableFields = map[string]bool{
	"package_code": true,
	"created_at":   true,
	"updated_at":   true,
}

var InvoiceOrderableFields = map[string]bool{
	"tracking_code": true,
	"total_cost":    true,
	"status":        true,
	"expired_at":    true,
	"created_at":    true,
	"updated_at":    true,
}
