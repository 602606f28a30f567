package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"gorm.io/gorm"
)

type ListFilter struct {
	SubscriptionID snowflake.ID
	TrackingCode   string
	Status         ledger.Status
	InvoiceType    InvoiceType
	FromDateFrom   *time.Time
	FromDateTo     *time.Time
	ToDateFrom     *time.Time
	ToDateTo       *time.Time
	TotalCostFrom  *money.Amount
	TotalCostTo    *money.Amount
	OrderBy        string
}

type BaseListFilter struct {
	SubscriptionID snowflake.ID
	TrackingCode   string
	OperationType  ledger.OperationType
	Status         ledger.Status
	OrderBy        string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, inv *Invoice) error
	Save(ctx context.Context, db *gorm.DB, inv *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// Latest returns the newest invoice of the subscription, any status.
	Latest(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Invoice, error)
	// LatestForUpdate is Latest with a row lock; nil without error when
	// the lane is empty.
	LatestForUpdate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Invoice, error)
	// RevokedTotalAfter sums total_cost of revoked invoices created
	// after the cutoff (the unpaid-usage-cost tail).
	RevokedTotalAfter(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, after time.Time) (money.Amount, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Page) ([]*Invoice, int64, error)
}

type BaseRepository interface {
	Insert(ctx context.Context, db *gorm.DB, inv *BaseBalanceInvoice) error
	Save(ctx context.Context, db *gorm.DB, inv *BaseBalanceInvoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BaseBalanceInvoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BaseBalanceInvoice, error)
	// LatestForUpdate locks the newest row of the subscription's lane
	// for the given operation type.
	LatestForUpdate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, op ledger.OperationType) (*BaseBalanceInvoice, error)
	List(ctx context.Context, db *gorm.DB, filter BaseListFilter, page pagination.Page) ([]*BaseBalanceInvoice, int64, error)
}
