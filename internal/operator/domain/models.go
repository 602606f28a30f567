package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/pkg/money"
)

// Operator is an interconnect carrier calls are routed through. Each
// operator carries a routing account in the Rater and belongs to the
// supplier profile of its branch.
type Operator struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OperatorCode string       `gorm:"uniqueIndex;not null" json:"operator_code"`
	Name         string       `json:"name"`
	BranchID     snowflake.ID `gorm:"index;not null" json:"branch_id"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// Profit records the usage cost an operator carried on one invoice.
// Rows are written when the invoice is built, from the per-CDR
// operator tag the Rater attaches.
type Profit struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OperatorID     snowflake.ID `gorm:"index;not null" json:"operator_id"`
	InvoiceID      snowflake.ID `gorm:"index;not null" json:"invoice_id"`
	SubscriptionID snowflake.ID `gorm:"index;not null" json:"subscription_id"`
	TotalCost      money.Amount `gorm:"not null" json:"total_cost"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

var (
	ErrNotFound      = errors.New("operator not found")
	ErrDuplicateCode = errors.New("operator code already exists")
)

var OrderableFields = map[string]bool{
	"operator_code": true,
	"name":          true,
	"created_at":    true,
	"updated_at":    true,
}

var ProfitOrderableFields = map[string]bool{
	"total_cost": true,
	"created_at": true,
}
