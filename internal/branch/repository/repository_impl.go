package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, branch *domain.Branch) error {
	err := db.WithContext(ctx).Create(branch).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Branch, error) {
	var branch domain.Branch
	err := db.WithContext(ctx).Preload("Prefixes").First(&branch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Branch, error) {
	var branch domain.Branch
	err := db.WithContext(ctx).Preload("Prefixes").First(&branch, "branch_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, page pagination.Page) ([]*domain.Branch, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Branch{})
	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var branches []*domain.Branch
	err := page.Apply(stmt.Preload("Prefixes").Order("branch_code ASC")).Find(&branches).Error
	if err != nil {
		return nil, 0, err
	}
	return branches, count, nil
}

func (r *repo) ReplacePrefixes(ctx context.Context, db *gorm.DB, branchID snowflake.ID, prefixes []domain.BranchPrefix) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("branch_id = ?", branchID).Delete(&domain.BranchPrefix{}).Error; err != nil {
			return err
		}
		if len(prefixes) == 0 {
			return nil
		}
		return tx.Create(&prefixes).Error
	})
}
