package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/credit/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentRepo struct{}

func ProvidePayments() domain.PaymentRepository {
	return &paymentRepo{}
}

func (r *paymentRepo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *paymentRepo) Save(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	p.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(p).Error
}

func (r *paymentRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) List(ctx context.Context, db *gorm.DB, filter domain.PaymentListFilter, page pagination.Page) ([]*domain.Payment, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Payment{})
	if filter.CreditInvoiceID != 0 {
		stmt = stmt.Where("credit_invoice_id = ?", filter.CreditInvoiceID)
	}
	if filter.Gateway != "" {
		stmt = stmt.Where("gateway = ?", filter.Gateway)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	clauses, err := pagination.OrderBy(filter.OrderBy, domain.PaymentOrderableFields)
	if err != nil {
		return nil, 0, err
	}

	var payments []*domain.Payment
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, count, nil
}
