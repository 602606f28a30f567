package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	branchdomain "github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/internal/clock"
	"github.com/smallbiznis/trunkgate/internal/operator/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RoutingInstaller pushes operator routing state to the Rater.
type RoutingInstaller interface {
	SetOperatorAccount(ctx context.Context, operatorCode string, disabled bool) error
	RebuildSupplierProfile(ctx context.Context, branchCode string, operatorCodes []string) error
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Profits  domain.ProfitRepository
	Branches branchdomain.Repository
	Rater    RoutingInstaller
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	profits  domain.ProfitRepository
	branches branchdomain.Repository
	rater    RoutingInstaller
}

func New(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("operator.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		profits:  p.Profits,
		branches: p.Branches,
		rater:    p.Rater,
	}
}

type CreateOperatorRequest struct {
	OperatorCode string       `json:"operator_code" binding:"required"`
	Name         string       `json:"name"`
	BranchID     snowflake.ID `json:"branch_id,string" binding:"required"`
}

// Create registers an operator, installs its routing account, and
// rebuilds the branch's supplier profile. The Rater is updated before
// the row lands.
func (s *Service) Create(ctx context.Context, req CreateOperatorRequest) (*domain.Operator, error) {
	branch, err := s.branches.FindByID(ctx, s.db, req.BranchID)
	if err != nil {
		return nil, err
	}
	if err := s.rater.SetOperatorAccount(ctx, req.OperatorCode, false); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	op := &domain.Operator{
		ID:           s.genID.Generate(),
		OperatorCode: req.OperatorCode,
		Name:         req.Name,
		BranchID:     branch.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, op); err != nil {
			return err
		}
		return s.rebuildSuppliers(ctx, tx, branch)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("operator created",
		zap.String("operator_code", op.OperatorCode),
		zap.String("branch_code", branch.BranchCode))
	return op, nil
}

type UpdateOperatorRequest struct {
	Name string `json:"name"`
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req UpdateOperatorRequest) (*domain.Operator, error) {
	op, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	op.Name = req.Name
	op.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, s.db, op); err != nil {
		return nil, err
	}
	return op, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Operator, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, page pagination.Page, orderBy string) ([]*domain.Operator, int64, error) {
	return s.repo.List(ctx, s.db, page, orderBy)
}

func (s *Service) ListProfits(ctx context.Context, filter domain.ProfitFilter, page pagination.Page, orderBy string) ([]*domain.Profit, int64, error) {
	return s.profits.List(ctx, s.db, filter, page, orderBy)
}

// RecordProfits writes one profit row per operator that carried usage
// on the invoice. Codes without a registered operator are logged and
// skipped so a stray CDR tag cannot fail invoicing.
func (s *Service) RecordProfits(ctx context.Context, tx *gorm.DB, invoiceID, subscriptionID snowflake.ID, perOperator map[string]money.Amount) error {
	for code, amount := range perOperator {
		if amount == 0 {
			continue
		}
		op, err := s.repo.FindByCode(ctx, tx, code)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("cdr names unknown operator",
				zap.String("operator_code", code),
				zap.Int64("invoice_id", int64(invoiceID)))
			continue
		}
		if err != nil {
			return err
		}
		profit := &domain.Profit{
			ID:             s.genID.Generate(),
			OperatorID:     op.ID,
			InvoiceID:      invoiceID,
			SubscriptionID: subscriptionID,
			TotalCost:      amount,
			CreatedAt:      s.clock.Now(),
		}
		if err := s.profits.Insert(ctx, tx, profit); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) rebuildSuppliers(ctx context.Context, tx *gorm.DB, branch *branchdomain.Branch) error {
	ops, err := s.repo.ByBranch(ctx, tx, branch.ID)
	if err != nil {
		return err
	}
	codes := make([]string, 0, len(ops))
	for _, op := range ops {
		codes = append(codes, op.OperatorCode)
	}
	return s.rater.RebuildSupplierProfile(ctx, branch.BranchCode, codes)
}
