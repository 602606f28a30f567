// Package apilog persists one audit row per API request into the
// secondary log database so request history survives main-DB restores.
package apilog

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/clock"
	"github.com/smallbiznis/trunkgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type APILog struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Method    string       `gorm:"not null" json:"method"`
	Path      string       `gorm:"not null;index" json:"path"`
	Query     string       `json:"query"`
	Status    int          `gorm:"not null" json:"status"`
	LatencyMs int64        `gorm:"not null" json:"latency_ms"`
	ClientIP  string       `json:"client_ip"`
	UserAgent string       `json:"user_agent"`
	CreatedAt time.Time    `gorm:"not null;index" json:"created_at"`
}

func (APILog) TableName() string { return "api_logs" }

// LogDB wraps the handle to the secondary log database. When no log
// database is configured it falls back to the main one.
type LogDB struct {
	*gorm.DB
}

func OpenLogDB(cfg config.Config, log *zap.Logger, main *gorm.DB) (*LogDB, error) {
	if cfg.LogDBHost == "" {
		return &LogDB{main}, nil
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.LogDBHost,
		cfg.LogDBUser,
		cfg.LogDBPassword,
		cfg.LogDBName,
		cfg.LogDBPort,
		cfg.DBSSLMode,
	)
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open log database: %w", err)
	}
	log.Named("apilog").Info("log database connected", zap.String("name", cfg.LogDBName))
	return &LogDB{gdb}, nil
}

type Params struct {
	fx.In

	Config config.Config
	LogDB  *LogDB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
}

type Service struct {
	cfg   config.Config
	db    *LogDB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) *Service {
	return &Service{
		cfg:   p.Config,
		db:    p.LogDB,
		log:   p.Log.Named("apilog"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Record inserts one audit row. Failures are logged, never surfaced;
// auditing must not take requests down with it.
func (s *Service) Record(ctx context.Context, entry *APILog) {
	entry.ID = s.genID.Generate()
	entry.CreatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.log.Warn("api log insert failed", zap.Error(err))
	}
}

// Purge deletes rows older than the configured retention window and
// returns how many went.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -s.cfg.APILogRetention)
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&APILog{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("api logs purged",
			zap.Int64("rows", res.RowsAffected),
			zap.Time("cutoff", cutoff))
	}
	return res.RowsAffected, nil
}

var Module = fx.Module("apilog",
	fx.Provide(OpenLogDB),
	fx.Provide(New),
)
