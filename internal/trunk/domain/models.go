package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FailedJob is one outbound call that did not reach Trunk. The
// scheduler replays these until they succeed.
type FailedJob struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	Service   string         `gorm:"not null" json:"service"`
	Version   string         `gorm:"not null" json:"version"`
	Class     string         `gorm:"not null" json:"class"`
	Method    string         `gorm:"not null" json:"method"`
	Arguments datatypes.JSON `json:"arguments"`
	LastError string         `json:"last_error"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

type FailedJobRepository interface {
	Insert(ctx context.Context, db *gorm.DB, job *FailedJob) error
	Save(ctx context.Context, db *gorm.DB, job *FailedJob) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	All(ctx context.Context, db *gorm.DB) ([]*FailedJob, error)
}
