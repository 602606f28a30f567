package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	CustomerID       snowflake.ID
	SubscriptionCode string
	Number           string
	SubscriptionType SubscriptionType
	Allocated        *bool
	OrderBy          string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Save(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Subscription, error)
	FindByCodeForUpdate(ctx context.Context, db *gorm.DB, code string) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Page) ([]*Subscription, int64, error)
	// AllocatedBillable streams every allocated, non-unlimited
	// subscription for the periodic invoice tick.
	AllocatedBillable(ctx context.Context, db *gorm.DB) ([]*Subscription, error)
	// AbuseDeallocatedSince reports whether the number was deallocated
	// for abuse after the cutoff (the blacklist check).
	AbuseDeallocatedSince(ctx context.Context, db *gorm.DB, number string, cutoff time.Time) (bool, error)
}
