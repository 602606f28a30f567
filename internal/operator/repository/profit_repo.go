package repository

import (
	"context"

	"github.com/smallbiznis/trunkgate/internal/operator/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type profitRepo struct{}

func ProvideProfits() domain.ProfitRepository {
	return &profitRepo{}
}

func (r *profitRepo) Insert(ctx context.Context, db *gorm.DB, profit *domain.Profit) error {
	return db.WithContext(ctx).Create(profit).Error
}

func (r *profitRepo) List(ctx context.Context, db *gorm.DB, filter domain.ProfitFilter, page pagination.Page, orderBy string) ([]*domain.Profit, int64, error) {
	clauses, err := pagination.OrderBy(orderBy, domain.ProfitOrderableFields)
	if err != nil {
		return nil, 0, err
	}
	stmt := db.WithContext(ctx).Model(&domain.Profit{})
	if filter.OperatorID != nil {
		stmt = stmt.Where("operator_id = ?", *filter.OperatorID)
	}
	if filter.InvoiceID != nil {
		stmt = stmt.Where("invoice_id = ?", *filter.InvoiceID)
	}
	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var profits []*domain.Profit
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&profits).Error; err != nil {
		return nil, 0, err
	}
	return profits, count, nil
}
