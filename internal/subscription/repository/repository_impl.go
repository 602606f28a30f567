package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/subscription/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	err := db.WithContext(ctx).Create(sub).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(sub).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.first(ctx, db, "id = ?", id)
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Subscription, error) {
	return r.first(ctx, db, "subscription_code = ?", code)
}

func (r *repo) FindByCodeForUpdate(ctx context.Context, db *gorm.DB, code string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&sub, "subscription_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) first(ctx context.Context, db *gorm.DB, query string, arg any) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).First(&sub, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Page) ([]*domain.Subscription, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Subscription{})
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.SubscriptionCode != "" {
		stmt = stmt.Where("subscription_code = ?", filter.SubscriptionCode)
	}
	if filter.Number != "" {
		stmt = stmt.Where("number = ?", filter.Number)
	}
	if filter.SubscriptionType != "" {
		stmt = stmt.Where("subscription_type = ?", filter.SubscriptionType)
	}
	if filter.Allocated != nil {
		stmt = stmt.Where("is_allocated = ?", *filter.Allocated)
	}

	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	clauses, err := pagination.OrderBy(filter.OrderBy, domain.OrderableFields)
	if err != nil {
		return nil, 0, err
	}

	var subs []*domain.Subscription
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&subs).Error; err != nil {
		return nil, 0, err
	}
	return subs, count, nil
}

func (r *repo) AllocatedBillable(ctx context.Context, db *gorm.DB) ([]*domain.Subscription, error) {
	var subs []*domain.Subscription
	err := db.WithContext(ctx).
		Where("is_allocated = ? AND subscription_type <> ?", true, domain.TypeUnlimited).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *repo) AbuseDeallocatedSince(ctx context.Context, db *gorm.DB, number string, cutoff time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("number = ? AND deallocation_cause = ? AND deallocated_at >= ?", number, domain.CauseAbuse, cutoff).
		Count(&count).Error
	return count > 0, err
}
