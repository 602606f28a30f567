package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	PackageCode string
	OrderBy     string
}

type InvoiceListFilter struct {
	SubscriptionID snowflake.ID
	Status         string
	Active         *bool
	OrderBy        string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pkg *Package) error
	Save(ctx context.Context, db *gorm.DB, pkg *Package) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Package, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Package, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Page) ([]*Package, int64, error)
}

type InvoiceRepository interface {
	Insert(ctx context.Context, db *gorm.DB, inv *PackageInvoice) error
	Save(ctx context.Context, db *gorm.DB, inv *PackageInvoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PackageInvoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PackageInvoice, error)
	// LatestForUpdate row-locks the newest invoice of the subscription's
	// package lane, paid or not. Nil without error when the lane is empty.
	LatestForUpdate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*PackageInvoice, error)
	ActiveBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*PackageInvoice, error)
	List(ctx context.Context, db *gorm.DB, filter InvoiceListFilter, page pagination.Page) ([]*PackageInvoice, int64, error)
}
