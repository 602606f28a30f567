package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/customer/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (*domain.Customer, error) {
	code := strings.TrimSpace(req.CustomerCode)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}

	now := time.Now().UTC()
	customer := &domain.Customer{
		ID:           s.genID.Generate(),
		CustomerCode: code,
		Name:         strings.TrimSpace(req.Name),
		Credit:       0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*domain.Customer, error) {
	return s.repo.FindByCode(ctx, s.db, strings.TrimSpace(code))
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Customer, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, filter domain.ListCustomerFilter, page pagination.Page) ([]*domain.Customer, int64, error) {
	return s.repo.List(ctx, s.db, filter, page)
}
