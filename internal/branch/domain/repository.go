package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, branch *Branch) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Branch, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Branch, error)
	List(ctx context.Context, db *gorm.DB, page pagination.Page) ([]*Branch, int64, error)
	ReplacePrefixes(ctx context.Context, db *gorm.DB, branchID snowflake.ID, prefixes []BranchPrefix) error
}

type DestinationRepository interface {
	Insert(ctx context.Context, db *gorm.DB, dest *Destination) error
	Update(ctx context.Context, db *gorm.DB, dest *Destination) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Destination, error)
	List(ctx context.Context, db *gorm.DB, page pagination.Page, orderBy string) ([]*Destination, int64, error)
	// ByName returns all prefixes registered under one destination name.
	ByName(ctx context.Context, db *gorm.DB, name string) ([]*Destination, error)
	ByCode(ctx context.Context, db *gorm.DB, code DestinationCode) ([]*Destination, error)
	Names(ctx context.Context, db *gorm.DB) ([]string, error)
}
