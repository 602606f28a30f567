package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/invoice/domain"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Create(inv).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	inv.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(inv).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.Invoice, error) {
	return r.latest(ctx, db, subscriptionID, false)
}

func (r *repo) LatestForUpdate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.Invoice, error) {
	return r.latest(ctx, db, subscriptionID, true)
}

func (r *repo) latest(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, lock bool) (*domain.Invoice, error) {
	stmt := db.WithContext(ctx)
	if lock {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var inv domain.Invoice
	err := stmt.
		Where("subscription_id = ?", subscriptionID).
		Order("id DESC").
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) RevokedTotalAfter(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, after time.Time) (money.Amount, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("COALESCE(SUM(total_cost), 0)").
		Where("subscription_id = ? AND status = ? AND created_at > ?", subscriptionID, ledger.StatusRevoked, after).
		Scan(&total).Error
	return money.Amount(total), err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Page) ([]*domain.Invoice, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	if filter.SubscriptionID != 0 {
		stmt = stmt.Where("subscription_id = ?", filter.SubscriptionID)
	}
	if filter.TrackingCode != "" {
		stmt = stmt.Where("tracking_code = ?", filter.TrackingCode)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.InvoiceType != "" {
		stmt = stmt.Where("invoice_type = ?", filter.InvoiceType)
	}
	if filter.FromDateFrom != nil {
		stmt = stmt.Where("from_date >= ?", *filter.FromDateFrom)
	}
	if filter.FromDateTo != nil {
		stmt = stmt.Where("from_date <= ?", *filter.FromDateTo)
	}
	if filter.ToDateFrom != nil {
		stmt = stmt.Where("to_date >= ?", *filter.ToDateFrom)
	}
	if filter.ToDateTo != nil {
		stmt = stmt.Where("to_date <= ?", *filter.ToDateTo)
	}
	if filter.TotalCostFrom != nil {
		stmt = stmt.Where("total_cost >= ?", *filter.TotalCostFrom)
	}
	if filter.TotalCostTo != nil {
		stmt = stmt.Where("total_cost <= ?", *filter.TotalCostTo)
	}

	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	clauses, err := pagination.OrderBy(filter.OrderBy, domain.OrderableFields)
	if err != nil {
		return nil, 0, err
	}

	var invs []*domain.Invoice
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&invs).Error; err != nil {
		return nil, 0, err
	}
	return invs, count, nil
}
