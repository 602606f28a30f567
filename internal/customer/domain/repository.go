package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Customer, error)
	// FindByCodeForUpdate row-locks the customer; the credit ledger uses
	// it to serialize credit mutations.
	FindByCodeForUpdate(ctx context.Context, db *gorm.DB, code string) (*Customer, error)
	SetCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, credit money.Amount) error
	List(ctx context.Context, db *gorm.DB, filter ListCustomerFilter, page pagination.Page) ([]*Customer, int64, error)
}
