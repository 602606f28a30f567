package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/pkg/money"
)

type Customer struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerCode string       `gorm:"uniqueIndex;not null" json:"customer_code"`
	Name         string       `json:"name"`
	// Credit is mutated only by the credit ledger and never goes negative.
	Credit    money.Amount `gorm:"not null;default:0" json:"credit"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

var (
	ErrNotFound      = errors.New("customer not found")
	ErrDuplicateCode = errors.New("customer code already exists")
	ErrInvalidCode   = errors.New("invalid customer code")
)

type CreateCustomerRequest struct {
	CustomerCode string `json:"customer_code"`
	Name         string `json:"name"`
}

type ListCustomerFilter struct {
	GenericOr    string
	CustomerCode string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	OrderBy      string
}

// OrderableFields lists the columns list endpoints may sort by.
var OrderableFields = map[string]bool{
	"customer_code": true,
	"credit":        true,
	"created_at":    true,
	"updated_at":    true,
}
