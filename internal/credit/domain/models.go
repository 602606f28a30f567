package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"gorm.io/datatypes"
)

// CreditInvoice moves customer credit. A decrease with used_for set
// settles the referenced invoice atomically when it goes paid.
type CreditInvoice struct {
	ID            snowflake.ID         `gorm:"primaryKey" json:"id"`
	TrackingCode  string               `gorm:"uniqueIndex;not null" json:"tracking_code"`
	CustomerID    snowflake.ID         `gorm:"index;not null" json:"customer_id"`
	OperationType ledger.OperationType `gorm:"not null" json:"operation_type"`
	UsedFor       *ledger.UsedFor      `json:"used_for,omitempty"`
	UsedForID     *snowflake.ID        `json:"used_for_id,omitempty"`
	TotalCost     money.Amount         `gorm:"not null" json:"total_cost"`
	Status        ledger.Status        `gorm:"not null" json:"status"`
	PayCoolDown   *time.Time           `json:"pay_cool_down,omitempty"`
	CreatedAt     time.Time            `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time            `gorm:"not null" json:"updated_at"`
}

type PaymentGateway string

const (
	GatewayOnline  PaymentGateway = "online"
	GatewayOffline PaymentGateway = "offline"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment is one attempt to pay a CreditInvoice. Amount is copied from
// the CreditInvoice at creation time; the request's amount is ignored.
type Payment struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	CreditInvoiceID snowflake.ID      `gorm:"index;not null" json:"credit_invoice_id"`
	Amount          money.Amount      `gorm:"not null" json:"amount"`
	Gateway         PaymentGateway    `gorm:"not null" json:"gateway"`
	Status          PaymentStatus     `gorm:"not null" json:"status"`
	Attachments     datatypes.JSON    `json:"attachments,omitempty"`
	ExtraData       datatypes.JSONMap `json:"extra_data,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed
}

var (
	ErrNotFound            = errors.New("credit invoice not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrDecreaseNeedsTarget = errors.New("a decrease requires used_for and used_for_id")
	ErrInsufficientCredit  = errors.New("customer credit is insufficient")
	ErrSameStatus          = errors.New("payment already has a terminal status")
	ErrOfflineApprovalOnly = errors.New("only offline payments are resolved through approval")
	ErrBadUsedFor          = errors.New("invalid used_for")
	ErrBadAmount           = errors.New("total_cost must be positive")
	ErrNotPayable          = errors.New("only increase credit invoices accept payments")
	ErrTerminal            = errors.New("credit invoice is terminal")
)

var OrderableFields = map[string]bool{
	"tracking_code":  true,
	"operation_type": true,
	"total_cost":     true,
	"status":         true,
	"created_at":     true,
	"updated_at":     true,
}

var PaymentOrderableFields = map[string]bool{
	"amount":     true,
	"gateway":    true,
	"status":     true,
	"created_at": true,
	"updated_at": true,
}
