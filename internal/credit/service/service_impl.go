package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/trunkgate/internal/clock"
	"github.com/smallbiznis/trunkgate/internal/config"
	"github.com/smallbiznis/trunkgate/internal/credit/domain"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	packservice "github.com/smallbiznis/trunkgate/internal/pack/service"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	subservice "github.com/smallbiznis/trunkgate/internal/subscription/service"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Payments    domain.PaymentRepository
	Customers   customerdomain.Repository
	Subs        subdomain.Repository
	Coordinator *subservice.Service
	Engine      *invservice.Engine
	Packs       *packservice.Service
}

// Service is the credit ledger. Every credit mutation and every
// settlement of the three invoice kinds funnels through here, under the
// customer's row lock.
type Service struct {
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	payments    domain.PaymentRepository
	customers   customerdomain.Repository
	subs        subdomain.Repository
	coordinator *subservice.Service
	engine      *invservice.Engine
	packs       *packservice.Service
}

func New(p Params) *Service {
	return &Service{
		cfg:         p.Config,
		db:          p.DB,
		log:         p.Log.Named("credit.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		payments:    p.Payments,
		customers:   p.Customers,
		subs:        p.Subs,
		coordinator: p.Coordinator,
		engine:      p.Engine,
		packs:       p.Packs,
	}
}

type IssueRequest struct {
	CustomerCode  string               `json:"customer_code" binding:"required"`
	OperationType ledger.OperationType `json:"operation_type" binding:"required"`
	UsedFor       *ledger.UsedFor      `json:"used_for,omitempty"`
	UsedForID     *snowflake.ID        `json:"used_for_id,string,omitempty"`
	TotalCost     money.Amount         `json:"total_cost"`
	// Hybrid sizes an increase to the shortfall between the target
	// invoice and the customer's current credit.
	Hybrid bool `json:"hybrid"`
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.CreditInvoice, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter, page pagination.Page) ([]*domain.CreditInvoice, int64, error) {
	return s.repo.List(ctx, s.db, filter, page)
}

func (s *Service) GetPayment(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	return s.payments.FindByID(ctx, s.db, id)
}

func (s *Service) ListPayments(ctx context.Context, filter domain.PaymentListFilter, page pagination.Page) ([]*domain.Payment, int64, error) {
	return s.payments.List(ctx, s.db, filter, page)
}

// Issue opens a credit invoice. Decreases settle immediately from
// credit; increases wait for a payment.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*domain.CreditInvoice, error) {
	if req.OperationType != ledger.OpIncrease && req.OperationType != ledger.OpDecrease {
		return nil, domain.ErrBadUsedFor
	}
	if req.UsedFor != nil {
		switch *req.UsedFor {
		case ledger.UsedForInvoice, ledger.UsedForBaseBalanceInvoice, ledger.UsedForPackageInvoice:
		default:
			return nil, domain.ErrBadUsedFor
		}
	}

	var inv *domain.CreditInvoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cust, err := s.customers.FindByCodeForUpdate(ctx, tx, req.CustomerCode)
		if err != nil {
			return err
		}
		if req.OperationType == ledger.OpDecrease {
			inv, err = s.issueDecrease(ctx, tx, cust, req)
			return err
		}
		inv, err = s.issueIncrease(ctx, tx, cust, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) issueDecrease(ctx context.Context, tx *gorm.DB, cust *customerdomain.Customer, req IssueRequest) (*domain.CreditInvoice, error) {
	if req.UsedFor == nil || req.UsedForID == nil {
		return nil, domain.ErrDecreaseNeedsTarget
	}
	due, err := s.amountDue(ctx, tx, *req.UsedFor, *req.UsedForID)
	if err != nil {
		return nil, err
	}
	if _, err := s.openLane(ctx, tx, cust.ID, ledger.OpDecrease, req.UsedFor); err != nil {
		return nil, err
	}
	if cust.Credit < due {
		return nil, domain.ErrInsufficientCredit
	}

	inv := s.newInvoice(cust.ID, ledger.OpDecrease, req.UsedFor, req.UsedForID, due)
	inv.Status = ledger.StatusPaid
	if err := s.repo.Insert(ctx, tx, inv); err != nil {
		return nil, err
	}
	// Rater mutations inside settleTarget precede the credit write.
	if err := s.settleTarget(ctx, tx, *req.UsedFor, *req.UsedForID); err != nil {
		return nil, err
	}
	if err := s.customers.SetCredit(ctx, tx, cust.ID, cust.Credit-due); err != nil {
		return nil, err
	}
	s.log.Info("decrease credit invoice settled",
		zap.String("tracking_code", inv.TrackingCode),
		zap.String("used_for", string(*req.UsedFor)),
		zap.Int64("total_cost", int64(due)))
	return inv, nil
}

func (s *Service) issueIncrease(ctx context.Context, tx *gorm.DB, cust *customerdomain.Customer, req IssueRequest) (*domain.CreditInvoice, error) {
	total := req.TotalCost
	if req.UsedFor != nil && req.UsedForID != nil {
		due, err := s.amountDue(ctx, tx, *req.UsedFor, *req.UsedForID)
		if err != nil {
			return nil, err
		}
		if req.Hybrid && *req.UsedFor == ledger.UsedForInvoice {
			total = (due - cust.Credit).ClampGatewayMin()
		} else if total == 0 {
			total = due
		}
	}
	if total <= 0 {
		return nil, domain.ErrBadAmount
	}
	if _, err := s.openLane(ctx, tx, cust.ID, ledger.OpIncrease, req.UsedFor); err != nil {
		return nil, err
	}
	inv := s.newInvoice(cust.ID, ledger.OpIncrease, req.UsedFor, req.UsedForID, total)
	if err := s.repo.Insert(ctx, tx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// openLane revokes the lane's newest non-terminal row. A pending row
// has a payment awaiting approval and blocks the lane outright; an
// unpaid row inside its cool-down fence blocks until the fence lapses.
func (s *Service) openLane(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, op ledger.OperationType, usedFor *ledger.UsedFor) (*domain.CreditInvoice, error) {
	prev, err := s.repo.LatestForUpdate(ctx, tx, customerID, op, usedFor)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.Status.Terminal() {
		return prev, nil
	}
	if prev.Status == ledger.StatusPending {
		return nil, ledger.ErrPaymentInFlight
	}
	if prev.PayCoolDown != nil && prev.PayCoolDown.After(s.clock.Now()) {
		return nil, ledger.ErrCoolDown
	}
	prev.Status = ledger.StatusRevoked
	if err := s.repo.Save(ctx, tx, prev); err != nil {
		return nil, err
	}
	if prev.UsedFor != nil && prev.UsedForID != nil {
		if err := s.reopenTarget(ctx, tx, *prev.UsedFor, *prev.UsedForID); err != nil {
			return nil, err
		}
	}
	return prev, nil
}

func (s *Service) newInvoice(customerID snowflake.ID, op ledger.OperationType, usedFor *ledger.UsedFor, usedForID *snowflake.ID, total money.Amount) *domain.CreditInvoice {
	now := s.clock.Now()
	return &domain.CreditInvoice{
		ID:            s.genID.Generate(),
		TrackingCode:  uuid.NewString(),
		CustomerID:    customerID,
		OperationType: op,
		UsedFor:       usedFor,
		UsedForID:     usedForID,
		TotalCost:     total,
		Status:        ledger.StatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *Service) amountDue(ctx context.Context, db *gorm.DB, usedFor ledger.UsedFor, id snowflake.ID) (money.Amount, error) {
	switch usedFor {
	case ledger.UsedForInvoice:
		return s.engine.AmountDue(ctx, db, id)
	case ledger.UsedForBaseBalanceInvoice:
		return s.engine.BaseAmountDue(ctx, db, id)
	case ledger.UsedForPackageInvoice:
		return s.packs.AmountDue(ctx, db, id)
	}
	return 0, domain.ErrBadUsedFor
}

// settleTarget runs the paid cascade for the referenced invoice kind.
// Rater writes happen inside the callee before any status flips.
func (s *Service) settleTarget(ctx context.Context, tx *gorm.DB, usedFor ledger.UsedFor, id snowflake.ID) error {
	switch usedFor {
	case ledger.UsedForInvoice:
		return s.engine.SettlePaid(ctx, tx, id)
	case ledger.UsedForBaseBalanceInvoice:
		binv, err := s.engine.GetBase(ctx, tx, id)
		if err != nil {
			return err
		}
		sub, err := s.subs.FindByID(ctx, tx, binv.SubscriptionID)
		if err != nil {
			return err
		}
		if err := s.coordinator.ApplyBaseChange(ctx, tx, sub.SubscriptionCode, binv.OperationType, binv.TotalCost); err != nil {
			return err
		}
		if _, err := s.engine.SettleBasePaid(ctx, tx, id); err != nil {
			return err
		}
		if binv.OperationType == ledger.OpDecrease && binv.ToCredit {
			return s.NoPayIncrease(ctx, tx, sub.CustomerID, binv.TotalCost)
		}
		return nil
	case ledger.UsedForPackageInvoice:
		return s.packs.SettlePaid(ctx, tx, id)
	}
	return domain.ErrBadUsedFor
}

func (s *Service) markTargetPending(ctx context.Context, tx *gorm.DB, inv *domain.CreditInvoice) error {
	if inv.UsedFor == nil || inv.UsedForID == nil {
		return nil
	}
	switch *inv.UsedFor {
	case ledger.UsedForInvoice:
		return s.engine.MarkPending(ctx, tx, *inv.UsedForID, inv.ID, inv.PayCoolDown)
	case ledger.UsedForBaseBalanceInvoice:
		return s.engine.MarkBasePending(ctx, tx, *inv.UsedForID, inv.ID, inv.PayCoolDown)
	case ledger.UsedForPackageInvoice:
		return s.packs.MarkPending(ctx, tx, *inv.UsedForID, inv.ID, inv.PayCoolDown)
	}
	return domain.ErrBadUsedFor
}

func (s *Service) reopenTarget(ctx context.Context, tx *gorm.DB, usedFor ledger.UsedFor, id snowflake.ID) error {
	switch usedFor {
	case ledger.UsedForInvoice:
		return s.engine.Reopen(ctx, tx, id)
	case ledger.UsedForBaseBalanceInvoice:
		return s.engine.ReopenBase(ctx, tx, id)
	case ledger.UsedForPackageInvoice:
		return s.packs.Reopen(ctx, tx, id)
	}
	return domain.ErrBadUsedFor
}
