package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/invoice/domain"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type baseRepo struct{}

func ProvideBase() domain.BaseRepository {
	return &baseRepo{}
}

func (r *baseRepo) Insert(ctx context.Context, db *gorm.DB, inv *domain.BaseBalanceInvoice) error {
	return db.WithContext(ctx).Create(inv).Error
}

func (r *baseRepo) Save(ctx context.Context, db *gorm.DB, inv *domain.BaseBalanceInvoice) error {
	inv.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(inv).Error
}

func (r *baseRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BaseBalanceInvoice, error) {
	var inv domain.BaseBalanceInvoice
	err := db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *baseRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BaseBalanceInvoice, error) {
	var inv domain.BaseBalanceInvoice
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

func (r *baseRepo) LatestForUpdate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, op ledger.OperationType) (*domain.BaseBalanceInvoice, error) {
	var inv domain.BaseBalanceInvoice
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("subscription_id = ? AND operation_type = ?", subscriptionID, op).
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

func (r *baseRepo) List(ctx context.Context, db *gorm.DB, filter domain.BaseListFilter, page pagination.Page) ([]*domain.BaseBalanceInvoice, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.BaseBalanceInvoice{})
	if filter.SubscriptionID != 0 {
		stmt = stmt.Where("subscription_id = ?", filter.SubscriptionID)
	}
	if filter.TrackingCode != "" {
		stmt = stmt.Where("tracking_code = ?", filter.TrackingCode)
	}
	if filter.OperationType != "" {
		stmt = stmt.Where("operation_type = ?", filter.OperationType)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	clauses, err := pagination.OrderBy(filter.OrderBy, domain.BaseOrderableFields)
	if err != nil {
		return nil, 0, err
	}

	var invs []*domain.BaseBalanceInvoice
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&invs).Error; err != nil {
		return nil, 0, err
	}
	return invs, count, nil
}
