package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/pack/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pkg *domain.Package) error {
	err := db.WithContext(ctx).Create(pkg).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, pkg *domain.Package) error {
	pkg.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(pkg).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Package, error) {
	return r.first(ctx, db, "id = ?", id)
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Package, error) {
	return r.first(ctx, db, "package_code = ?", code)
}

func (r *repo) first(ctx context.Context, db *gorm.DB, query string, arg any) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).First(&pkg, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Page) ([]*domain.Package, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Package{})
	if filter.PackageCode != "" {
		stmt = stmt.Where("package_code = ?", filter.PackageCode)
	}

	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	clauses, err := pagination.OrderBy(filter.OrderBy, domain.OrderableFields)
	if err != nil {
		return nil, 0, err
	}

	var pkgs []*domain.Package
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&pkgs).Error; err != nil {
		return nil, 0, err
	}
	return pkgs, count, nil
}
