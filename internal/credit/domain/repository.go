package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	CustomerID    snowflake.ID
	TrackingCode  string
	OperationType ledger.OperationType
	Status        ledger.Status
	OrderBy       string
}

type PaymentListFilter struct {
	CreditInvoiceID snowflake.ID
	Gateway         PaymentGateway
	Status          PaymentStatus
	OrderBy         string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, inv *CreditInvoice) error
	Save(ctx context.Context, db *gorm.DB, inv *CreditInvoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CreditInvoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CreditInvoice, error)
	// LatestForUpdate locks the newest row of the (customer, operation,
	// used_for) lane. usedFor nil matches rows with no target.
	LatestForUpdate(ctx context.Context, db *gorm.DB, customerID snowflake.ID, op ledger.OperationType, usedFor *ledger.UsedFor) (*CreditInvoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Page) ([]*CreditInvoice, int64, error)
}

type PaymentRepository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Payment) error
	Save(ctx context.Context, db *gorm.DB, p *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, filter PaymentListFilter, page pagination.Page) ([]*Payment, int64, error)
}
