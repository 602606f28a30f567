package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/trunk/domain"
	"gorm.io/gorm"
)

type failedJobRepo struct{}

func Provide() domain.FailedJobRepository {
	return &failedJobRepo{}
}

func (r *failedJobRepo) Insert(ctx context.Context, db *gorm.DB, job *domain.FailedJob) error {
	return db.WithContext(ctx).Create(job).Error
}

func (r *failedJobRepo) Save(ctx context.Context, db *gorm.DB, job *domain.FailedJob) error {
	job.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(job).Error
}

func (r *failedJobRepo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&domain.FailedJob{}, "id = ?", id).Error
}

func (r *failedJobRepo) All(ctx context.Context, db *gorm.DB) ([]*domain.FailedJob, error) {
	var jobs []*domain.FailedJob
	err := db.WithContext(ctx).Order("id ASC").Find(&jobs).Error
	return jobs, err
}
