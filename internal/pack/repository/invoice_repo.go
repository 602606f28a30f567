package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/pack/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type invoiceRepo struct{}

func ProvideInvoices() domain.InvoiceRepository {
	return &invoiceRepo{}
}

func (r *invoiceRepo) Insert(ctx context.Context, db *gorm.DB, inv *domain.PackageInvoice) error {
	return db.WithContext(ctx).Create(inv).Error
}

func (r *invoiceRepo) Save(ctx context.Context, db *gorm.DB, inv *domain.PackageInvoice) error {
	inv.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(inv).Error
}

func (r *invoiceRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PackageInvoice, error) {
	var inv domain.PackageInvoice
	err := db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PackageInvoice, error) {
	var inv domain.PackageInvoice
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

func (r *invoiceRepo) LatestForUpdate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.PackageInvoice, error) {
	var inv domain.PackageInvoice
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
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

func (r *invoiceRepo) ActiveBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.PackageInvoice, error) {
	var inv domain.PackageInvoice
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND is_active = ?", subscriptionID, true).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepo) List(ctx context.Context, db *gorm.DB, filter domain.InvoiceListFilter, page pagination.Page) ([]*domain.PackageInvoice, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.PackageInvoice{})
	if filter.SubscriptionID != 0 {
		stmt = stmt.Where("subscription_id = ?", filter.SubscriptionID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Active != nil {
		stmt = stmt.Where("is_active = ?", *filter.Active)
	}

	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	clauses, err := pagination.OrderBy(filter.OrderBy, domain.InvoiceOrderableFields)
	if err != nil {
		return nil, 0, err
	}

	var invs []*domain.PackageInvoice
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&invs).Error; err != nil {
		return nil, 0, err
	}
	return invs, count, nil
}
