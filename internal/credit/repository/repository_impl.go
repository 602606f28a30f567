package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/credit/domain"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.CreditInvoice) error {
	return db.WithContext(ctx).Create(inv).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, inv *domain.CreditInvoice) error {
	inv.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(inv).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CreditInvoice, error) {
	var inv domain.CreditInvoice
	err := db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CreditInvoice, error) {
	var inv domain.CreditInvoice
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

func (r *repo) LatestForUpdate(ctx context.Context, db *gorm.DB, customerID snowflake.ID, op ledger.OperationType, usedFor *ledger.UsedFor) (*domain.CreditInvoice, error) {
	stmt := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND operation_type = ?", customerID, op)
	if usedFor == nil {
		stmt = stmt.Where("used_for IS NULL")
	} else {
		stmt = stmt.Where("used_for = ?", *usedFor)
	}
	var inv domain.CreditInvoice
	err := stmt.Order("id DESC").First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Page) ([]*domain.CreditInvoice, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.CreditInvoice{})
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
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

	clauses, err := pagination.OrderBy(filter.OrderBy, domain.OrderableFields)
	if err != nil {
		return nil, 0, err
	}

	var invs []*domain.CreditInvoice
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&invs).Error; err != nil {
		return nil, 0, err
	}
	return invs, count, nil
}
