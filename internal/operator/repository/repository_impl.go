package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/operator/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, op *domain.Operator) error {
	err := db.WithContext(ctx).Create(op).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, op *domain.Operator) error {
	return db.WithContext(ctx).Save(op).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Operator, error) {
	var op domain.Operator
	err := db.WithContext(ctx).First(&op, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Operator, error) {
	var op domain.Operator
	err := db.WithContext(ctx).First(&op, "operator_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *repo) ByBranch(ctx context.Context, db *gorm.DB, branchID snowflake.ID) ([]*domain.Operator, error) {
	var ops []*domain.Operator
	err := db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("operator_code ASC").
		Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, page pagination.Page, orderBy string) ([]*domain.Operator, int64, error) {
	clauses, err := pagination.OrderBy(orderBy, domain.OrderableFields)
	if err != nil {
		return nil, 0, err
	}
	stmt := db.WithContext(ctx).Model(&domain.Operator{})
	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var ops []*domain.Operator
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&ops).Error; err != nil {
		return nil, 0, err
	}
	return ops, count, nil
}
