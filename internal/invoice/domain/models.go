package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/money"
)

type InvoiceType string

const (
	TypePeriodic InvoiceType = "periodic"
	TypeInterim  InvoiceType = "interim"
)

// InterimCause labels what triggered an interim issuance; it travels in
// the Trunk notification, not in the row.
type InterimCause string

const (
	CauseDeallocation   InterimCause = "deallocation"
	CauseEightyPercent  InterimCause = "eighty-percent"
	CauseMaxUsage       InterimCause = "max-usage"
	CauseUserRequest    InterimCause = "user-request"
	CauseSupportRequest InterimCause = "support-request"
)

// ClassTotals carries per-class quantized usage (nanoseconds) and
// unrounded cost for one balance bucket.
type ClassTotals struct {
	LocalUsage         int64        `json:"local_usage"`
	LocalCost          money.Amount `json:"local_cost"`
	LongDistanceUsage  int64        `json:"long_distance_usage"`
	LongDistanceCost   money.Amount `json:"long_distance_cost"`
	CorporateUsage     int64        `json:"corporate_usage"`
	CorporateCost      money.Amount `json:"corporate_cost"`
	MobileUsage        int64        `json:"mobile_usage"`
	MobileCost         money.Amount `json:"mobile_cost"`
	InternationalUsage int64        `json:"international_usage"`
	InternationalCost  money.Amount `json:"international_cost"`
}

func (t ClassTotals) CostSum() money.Amount {
	return t.LocalCost + t.LongDistanceCost + t.CorporateCost + t.MobileCost + t.InternationalCost
}

func (t ClassTotals) UsageSum() int64 {
	return t.LocalUsage + t.LongDistanceUsage + t.CorporateUsage + t.MobileUsage + t.InternationalUsage
}

// Invoice is one usage bill over a [from_date, to_date] window.
type Invoice struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	TrackingCode   string       `gorm:"uniqueIndex;not null" json:"tracking_code"`
	SubscriptionID snowflake.ID `gorm:"index;not null" json:"subscription_id"`

	Postpaid ClassTotals `gorm:"embedded;embeddedPrefix:postpaid_" json:"postpaid"`
	Prepaid  ClassTotals `gorm:"embedded;embeddedPrefix:prepaid_" json:"prepaid"`

	SubscriptionFee money.Amount `json:"subscription_fee"`
	TaxPercent      int64        `json:"tax_percent"`
	TaxCost         money.Amount `json:"tax_cost"`
	Discount        money.Amount `json:"discount"`
	// Debt carries the previous lane row's total when it was revoked, or
	// its rounding residual when it was paid.
	Debt      money.Amount `json:"debt"`
	TotalCost money.Amount `json:"total_cost"`

	Status      ledger.Status `gorm:"not null" json:"status"`
	InvoiceType InvoiceType   `gorm:"not null" json:"invoice_type"`
	OnDemand    bool          `gorm:"not null;default:false" json:"on_demand"`

	FromDate time.Time  `gorm:"not null" json:"from_date"`
	ToDate   time.Time  `gorm:"not null" json:"to_date"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	// DueNotifiedAt marks the overdue notification as sent so the sweep
	// fires it once.
	DueNotifiedAt *time.Time `json:"due_notified_at,omitempty"`

	PayCoolDown     *time.Time    `json:"pay_cool_down,omitempty"`
	CreditInvoiceID *snowflake.ID `json:"credit_invoice_id,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
}

// TotalCostRounded is what the customer is actually charged: whole
// currency units, rounded up.
func (i *Invoice) TotalCostRounded() money.Amount {
	return i.TotalCost.CeilUnits()
}

// UsageCost is the billable part of this invoice before fee/tax/debt.
func (i *Invoice) UsageCost() money.Amount {
	return i.Postpaid.CostSum()
}

// BaseBalanceInvoice changes a subscription's base balance by
// total_cost in the direction of operation_type.
type BaseBalanceInvoice struct {
	ID             snowflake.ID         `gorm:"primaryKey" json:"id"`
	TrackingCode   string               `gorm:"uniqueIndex;not null" json:"tracking_code"`
	SubscriptionID snowflake.ID         `gorm:"index;not null" json:"subscription_id"`
	OperationType  ledger.OperationType `gorm:"not null" json:"operation_type"`
	TotalCost      money.Amount         `gorm:"not null" json:"total_cost"`
	Status         ledger.Status        `gorm:"not null" json:"status"`
	// ToCredit returns a decrease to the customer's credit instead of
	// discarding it.
	ToCredit        bool          `gorm:"not null;default:false" json:"to_credit"`
	PayCoolDown     *time.Time    `json:"pay_cool_down,omitempty"`
	CreditInvoiceID *snowflake.ID `json:"credit_invoice_id,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
}

var (
	ErrNotFound        = errors.New("invoice not found")
	ErrInterimInFlight = errors.New("an on-demand interim invoice is already in flight")
	ErrTooSoon         = errors.New("previous invoice is too recent")
)

var OrderableFields = map[string]bool{
	"tracking_code": true,
	"total_cost":    true,
	"status":        true,
	"invoice_type":  true,
	"from_date":     true,
	"to_date":       true,
	"due_date":      true,
	"created_at":    true,
	"updated_at":    true,
}

var BaseOrderableFields = map[string]bool{
	"tracking_code":  true,
	"operation_type": true,
	"total_cost":     true,
	"status":         true,
	"created_at":     true,
	"updated_at":     true,
}
