package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, op *Operator) error
	Save(ctx context.Context, db *gorm.DB, op *Operator) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Operator, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Operator, error)
	ByBranch(ctx context.Context, db *gorm.DB, branchID snowflake.ID) ([]*Operator, error)
	List(ctx context.Context, db *gorm.DB, page pagination.Page, orderBy string) ([]*Operator, int64, error)
}

type ProfitRepository interface {
	Insert(ctx context.Context, db *gorm.DB, profit *Profit) error
	List(ctx context.Context, db *gorm.DB, filter ProfitFilter, page pagination.Page, orderBy string) ([]*Profit, int64, error)
}

type ProfitFilter struct {
	OperatorID *snowflake.ID
	InvoiceID  *snowflake.ID
}
