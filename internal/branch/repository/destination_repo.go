package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type destRepo struct{}

func ProvideDestinations() domain.DestinationRepository {
	return &destRepo{}
}

func (r *destRepo) Insert(ctx context.Context, db *gorm.DB, dest *domain.Destination) error {
	return db.WithContext(ctx).Create(dest).Error
}

func (r *destRepo) Update(ctx context.Context, db *gorm.DB, dest *domain.Destination) error {
	return db.WithContext(ctx).Save(dest).Error
}

func (r *destRepo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&domain.Destination{}, "id = ?", id).Error
}

func (r *destRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Destination, error) {
	var dest domain.Destination
	err := db.WithContext(ctx).First(&dest, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dest, nil
}

func (r *destRepo) List(ctx context.Context, db *gorm.DB, page pagination.Page, orderBy string) ([]*domain.Destination, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Destination{})
	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	clauses, err := pagination.OrderBy(orderBy, domain.DestinationOrderableFields)
	if err != nil {
		return nil, 0, err
	}
	var dests []*domain.Destination
	if err := page.Apply(pagination.ApplyOrder(stmt, clauses)).Find(&dests).Error; err != nil {
		return nil, 0, err
	}
	return dests, count, nil
}

func (r *destRepo) ByName(ctx context.Context, db *gorm.DB, name string) ([]*domain.Destination, error) {
	var dests []*domain.Destination
	err := db.WithContext(ctx).Where("name = ?", name).Find(&dests).Error
	return dests, err
}

func (r *destRepo) ByCode(ctx context.Context, db *gorm.DB, code domain.DestinationCode) ([]*domain.Destination, error) {
	var dests []*domain.Destination
	err := db.WithContext(ctx).Where("code = ?", code).Find(&dests).Error
	return dests, err
}

func (r *destRepo) Names(ctx context.Context, db *gorm.DB) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).
		Model(&domain.Destination{}).
		Distinct("name").
		Order("name ASC").
		Pluck("name", &names).Error
	return names, err
}
