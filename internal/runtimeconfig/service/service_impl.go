package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/cache"
	"github.com/smallbiznis/trunkgate/internal/runtimeconfig/domain"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cacheScope is the pseudo subscription code runtime-config entries are
// cached under.
const cacheScope = "global"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Cache *cache.Cache
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	cache *cache.Cache
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("runtimeconfig.service"),
		genID: p.GenID,
		cache: p.Cache,
	}
}

func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if v, ok := s.cache.Get(ctx, cache.KeyRuntimeConfig+":"+key, cacheScope); ok {
		return v, nil
	}
	var row domain.RuntimeConfig
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	s.cache.Set(ctx, cache.KeyRuntimeConfig+":"+key, cacheScope, row.Value, s.cache.TTL())
	return row.Value, nil
}

// Set upserts a key and invalidates its cache entry.
func (s *Service) Set(ctx context.Context, key, value string) (*domain.RuntimeConfig, error) {
	now := time.Now().UTC()
	var row domain.RuntimeConfig
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = domain.RuntimeConfig{
			ID:        s.genID.Generate(),
			Key:       key,
			Value:     value,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		row.Value = value
		row.UpdatedAt = now
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return nil, err
		}
	}
	s.cache.Delete(ctx, cache.KeyRuntimeConfig+":"+key, cacheScope)
	return &row, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.RuntimeConfig, error) {
	var rows []*domain.RuntimeConfig
	err := s.db.WithContext(ctx).Order("key ASC").Find(&rows).Error
	return rows, err
}

func (s *Service) intValue(ctx context.Context, key string, fallback int64) int64 {
	v, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Service) TaxPercent(ctx context.Context) int64 {
	return s.intValue(ctx, domain.KeyTaxPercent, 0)
}

func (s *Service) DiscountPercent(ctx context.Context) int64 {
	return s.intValue(ctx, domain.KeyDiscountPercent, 0)
}

func (s *Service) DiscountValue(ctx context.Context) money.Amount {
	return money.FromUnits(s.intValue(ctx, domain.KeyDiscountValue, 0))
}

func (s *Service) EmergencyDestinations(ctx context.Context) []string {
	v, err := s.Get(ctx, domain.KeyEmergencyDestinations)
	if err != nil || strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
