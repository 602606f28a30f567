package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	branchdomain "github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/internal/cache"
	"github.com/smallbiznis/trunkgate/internal/clock"
	"github.com/smallbiznis/trunkgate/internal/config"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/trunkgate/internal/invoice/domain"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/internal/rater"
	"github.com/smallbiznis/trunkgate/internal/subscription/domain"
	"github.com/smallbiznis/trunkgate/internal/trunk"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"github.com/smallbiznis/trunkgate/pkg/phonenum"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountProvisioner is the slice of the Rater client the coordinator
// drives: account lifecycle, monetary balances, thresholds, action
// plans, and the per-subscription profiles.
type AccountProvisioner interface {
	AccountAvailable(ctx context.Context, subscriptionCode string) (bool, error)
	SetAccount(ctx context.Context, subscriptionCode string, disabled bool) error
	SetBalance(ctx context.Context, subscriptionCode string, kind rater.BalanceKind, units int64, disabled bool) error
	AddBalance(ctx context.Context, subscriptionCode string, kind rater.BalanceKind, units int64) error
	DebitBalance(ctx context.Context, subscriptionCode string, kind rater.BalanceKind, units int64) error
	GetBalance(ctx context.Context, subscriptionCode string, kind rater.BalanceKind) (float64, error)
	SetTopupResetAction(ctx context.Context, subscriptionCode string, kind rater.BalanceKind, baseUnits int64) error
	SetActionPlanExpiry(ctx context.Context, subscriptionCode, timeLiteral string) error
	RemoveActionPlan(ctx context.Context, subscriptionCode string) error
	SetThreshold(ctx context.Context, subscriptionCode string, pct rater.ThresholdPercent, kind rater.BalanceKind, valueUnits int64, notifyEvent string) error
	RemoveThreshold(ctx context.Context, subscriptionCode string, pct rater.ThresholdPercent, kind rater.BalanceKind) error
	SetAttributeProfile(ctx context.Context, subscriptionCode string, classification map[string]string, emergency []string) error
	SetInboundAttributeProfile(ctx context.Context, subscriptionCode string, attrs map[string]string) error
	RemoveAttributeProfile(ctx context.Context, subscriptionCode string) error
	SetRatingProfile(ctx context.Context, subscriptionCode, branchCode string) error
}

// BranchDirectory answers classification and rate-bound questions for
// the subscription's branch.
type BranchDirectory interface {
	GetByID(ctx context.Context, id snowflake.ID) (*branchdomain.Branch, error)
	Classify(ctx context.Context, branchID snowflake.ID, number string) (branchdomain.CallClass, error)
	MinMaxRate(ctx context.Context, branchCode string) (money.Amount, money.Amount, error)
}

// RuntimeSettings exposes the runtime-config values the coordinator
// folds into Rater profiles.
type RuntimeSettings interface {
	EmergencyDestinations(ctx context.Context) []string
}

// BaseChangeTicket is the handle returned for a base-balance change
// routed through the credit ledger.
type BaseChangeTicket struct {
	TrackingCode string        `json:"tracking_code"`
	Status       ledger.Status `json:"status"`
}

// CreditDesk is the slice of the credit ledger the coordinator needs:
// issuing base-balance invoices and granting leftover credit.
type CreditDesk interface {
	IssueBaseChange(ctx context.Context, subscriptionCode string, op ledger.OperationType, amount money.Amount, toCredit bool) (*BaseChangeTicket, error)
	NoPayIncrease(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, amount money.Amount) error
}

// PackageEnroller creates and retires package invoices for a
// subscription inside the caller's transaction.
type PackageEnroller interface {
	Enroll(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, packageCode string, autoRenew bool) error
	DeactivateActive(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID) error
}

// Dispatcher schedules deferred billing work on the task queue.
type Dispatcher interface {
	Enqueue(ctx context.Context, kind string, payload any) error
}

// TrunkGateway posts subscription lifecycle events to the carrier
// backend.
type TrunkGateway interface {
	Notify(ctx context.Context, event string, body map[string]any) error
}

type Params struct {
	fx.In

	Config    config.Config
	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Customers customerdomain.Repository
	Rater     AccountProvisioner
	Branches  BranchDirectory
	Runtime   RuntimeSettings
	Cache     *cache.Cache
	Queue     Dispatcher
	Gateway   TrunkGateway
}

// Service is the balance coordinator. It owns the subscription rows and
// keeps the Rater's account objects in step with them.
type Service struct {
	cfg       config.Config
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	customers customerdomain.Repository
	rater     AccountProvisioner
	branches  BranchDirectory
	runtime   RuntimeSettings
	cache     *cache.Cache
	queue     Dispatcher
	gateway   TrunkGateway
	credit    CreditDesk
	packages  PackageEnroller
}

func New(p Params) *Service {
	return &Service{
		cfg:       p.Config,
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		customers: p.Customers,
		rater:     p.Rater,
		branches:  p.Branches,
		runtime:   p.Runtime,
		cache:     p.Cache,
		queue:     p.Queue,
		gateway:   p.Gateway,
	}
}

// BindCredit and BindPackages break the construction cycle with the
// credit and package services, which themselves depend on the
// coordinator. Both are wired during fx startup, before any request
// reaches the service.
func (s *Service) BindCredit(desk CreditDesk) { s.credit = desk }

func (s *Service) BindPackages(enr PackageEnroller) { s.packages = enr }

type CreateSubscriptionRequest struct {
	SubscriptionCode string                  `json:"subscription_code" binding:"required"`
	CustomerID       snowflake.ID            `json:"customer_id,string" binding:"required"`
	BranchID         snowflake.ID            `json:"branch_id,string" binding:"required"`
	Number           string                  `json:"number" binding:"required"`
	SubscriptionType domain.SubscriptionType `json:"subscription_type" binding:"required"`
	BaseBalance      money.Amount            `json:"base_balance"`
	PackageCode      string                  `json:"package_code"`
	AutoRenew        bool                    `json:"auto_renew"`
	AutoPay          bool                    `json:"auto_pay"`
}

func kindFor(t domain.SubscriptionType) (rater.BalanceKind, bool) {
	switch t {
	case domain.TypePostpaid:
		return rater.BalancePostpaid, true
	case domain.TypePrepaid:
		return rater.BalancePrepaid, true
	}
	return "", false
}

func otherKind(kind rater.BalanceKind) rater.BalanceKind {
	if kind == rater.BalancePostpaid {
		return rater.BalancePrepaid
	}
	return rater.BalancePostpaid
}

func eventSuffix(kind rater.BalanceKind) string {
	return strings.TrimPrefix(string(kind), "balance_")
}

// Create allocates a subscription and installs the full Rater side:
// account, enabled balance, topup-reset action, both thresholds, rating
// profile, and the outbound attribute profile.
func (s *Service) Create(ctx context.Context, req CreateSubscriptionRequest) (*domain.Subscription, error) {
	switch req.SubscriptionType {
	case domain.TypePostpaid, domain.TypePrepaid, domain.TypeUnlimited:
	default:
		return nil, domain.ErrInvalidType
	}

	number, err := phonenum.Normalize(req.Number)
	if err != nil {
		return nil, err
	}

	cutoff := s.clock.Now().AddDate(0, 0, -s.cfg.BlackListInDays)
	blacklisted, err := s.repo.AbuseDeallocatedSince(ctx, s.db, number, cutoff)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, domain.ErrBlacklisted
	}

	if _, err := s.customers.FindByID(ctx, s.db, req.CustomerID); err != nil {
		return nil, err
	}
	branch, err := s.branches.GetByID(ctx, req.BranchID)
	if err != nil {
		return nil, err
	}

	available, err := s.rater.AccountAvailable(ctx, req.SubscriptionCode)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, domain.ErrAccountExists
	}

	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:               s.genID.Generate(),
		SubscriptionCode: req.SubscriptionCode,
		CustomerID:       req.CustomerID,
		BranchID:         req.BranchID,
		Number:           number,
		SubscriptionType: req.SubscriptionType,
		BaseBalance:      req.BaseBalance,
		IsAllocated:      true,
		AutoPay:          req.AutoPay,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Rater first. A failure here leaves no gateway row behind.
	if err := s.rater.SetAccount(ctx, sub.SubscriptionCode, false); err != nil {
		return nil, err
	}
	if kind, ok := kindFor(sub.SubscriptionType); ok {
		if err := s.installBalance(ctx, sub, kind, sub.BaseBalance, branch); err != nil {
			return nil, err
		}
	}
	if err := s.rater.SetRatingProfile(ctx, sub.SubscriptionCode, branch.BranchCode); err != nil {
		return nil, err
	}
	if err := s.pushOutboundProfile(ctx, sub); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return err
		}
		if req.PackageCode != "" && sub.SubscriptionType == domain.TypePrepaid && s.packages != nil {
			return s.packages.Enroll(ctx, tx, sub.ID, req.PackageCode, req.AutoRenew)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_code", sub.SubscriptionCode),
		zap.String("subscription_type", string(sub.SubscriptionType)))
	return sub, nil
}

// installBalance enables one monetary balance at base, disables the
// other, and installs the topup-reset action plus both thresholds.
func (s *Service) installBalance(ctx context.Context, sub *domain.Subscription, kind rater.BalanceKind, base money.Amount, branch *branchdomain.Branch) error {
	if err := s.rater.SetBalance(ctx, sub.SubscriptionCode, kind, base.FloorUnits(), false); err != nil {
		return err
	}
	if err := s.rater.SetBalance(ctx, sub.SubscriptionCode, otherKind(kind), 0, true); err != nil {
		return err
	}
	if err := s.rater.SetTopupResetAction(ctx, sub.SubscriptionCode, kind, base.FloorUnits()); err != nil {
		return err
	}
	return s.installThresholds(ctx, sub.SubscriptionCode, kind, base, branch.MaxRate)
}

// installThresholds wires the two usage fences: 80% fires once a fifth
// of the base remains, 100% fires once the balance can no longer cover
// a minute at the branch's most expensive rate.
func (s *Service) installThresholds(ctx context.Context, code string, kind rater.BalanceKind, base, branchMax money.Amount) error {
	suffix := eventSuffix(kind)
	band := base.PercentCeil(20)
	if err := s.rater.SetThreshold(ctx, code, rater.ThresholdEighty, kind, band.FloorUnits(), "80-"+suffix); err != nil {
		return err
	}
	return s.rater.SetThreshold(ctx, code, rater.ThresholdHundred, kind, branchMax.FloorUnits(), "100-"+suffix)
}

func (s *Service) removeThresholds(ctx context.Context, code string, kind rater.BalanceKind) error {
	if err := s.rater.RemoveThreshold(ctx, code, rater.ThresholdEighty, kind); err != nil {
		return err
	}
	return s.rater.RemoveThreshold(ctx, code, rater.ThresholdHundred, kind)
}

// pushOutboundProfile rebuilds the outbound attribute profile from the
// branch classification of the subscription's own number plus the
// current emergency destinations.
func (s *Service) pushOutboundProfile(ctx context.Context, sub *domain.Subscription) error {
	class, err := s.branches.Classify(ctx, sub.BranchID, sub.Number)
	if err != nil {
		return err
	}
	return s.rater.SetAttributeProfile(ctx, sub.SubscriptionCode,
		map[string]string{"Classification": string(class)},
		s.runtime.EmergencyDestinations(ctx))
}

func (s *Service) GetByCode(ctx context.Context, code string) (*domain.Subscription, error) {
	return s.repo.FindByCode(ctx, s.db, code)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter, page pagination.Page) ([]*domain.Subscription, int64, error) {
	return s.repo.List(ctx, s.db, filter, page)
}

// ConvertToPostpaid turns a prepaid subscription postpaid: prepaid
// thresholds and expiry plan go away, the prepaid remainder is debited
// and returned as paid credit, and the postpaid balance comes up at
// newBase.
func (s *Service) ConvertToPostpaid(ctx context.Context, code string, newBase money.Amount) (*domain.Subscription, error) {
	sub, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if !sub.IsAllocated {
		return nil, domain.ErrDeallocated
	}
	if sub.SubscriptionType == domain.TypeUnlimited {
		return nil, domain.ErrUnlimited
	}
	if sub.SubscriptionType == domain.TypePostpaid {
		return nil, domain.ErrSameType
	}

	branch, err := s.branches.GetByID(ctx, sub.BranchID)
	if err != nil {
		return nil, err
	}

	if err := s.removeThresholds(ctx, code, rater.BalancePrepaid); err != nil {
		return nil, err
	}
	if err := s.rater.RemoveActionPlan(ctx, code); err != nil && !isNotFound(err) {
		return nil, err
	}

	leftoverUnits, err := s.rater.GetBalance(ctx, code, rater.BalancePrepaid)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if leftoverUnits > 0 {
		if err := s.rater.DebitBalance(ctx, code, rater.BalancePrepaid, int64(leftoverUnits)); err != nil {
			return nil, err
		}
	}

	if err := s.installBalance(ctx, sub, rater.BalancePostpaid, newBase, branch); err != nil {
		return nil, err
	}

	leftover := money.FromFloat(leftoverUnits)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		locked.SubscriptionType = domain.TypePostpaid
		locked.BaseBalance = newBase
		if err := s.repo.Save(ctx, tx, locked); err != nil {
			return err
		}
		sub = locked
		if s.packages != nil {
			if err := s.packages.DeactivateActive(ctx, tx, locked.ID); err != nil {
				return err
			}
		}
		if leftover > 0 && s.credit != nil {
			return s.credit.NoPayIncrease(ctx, tx, locked.CustomerID, leftover)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.DeleteSubscriptionRelated(ctx, code); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("subscription_code", code), zap.Error(err))
	}
	s.log.Info("subscription converted to postpaid",
		zap.String("subscription_code", code),
		zap.Int64("leftover", int64(leftover)))
	return sub, nil
}

// ChangeBaseBalance routes a base-balance change through the credit
// ledger. The Rater and the stored base only move once the resulting
// invoice is paid.
func (s *Service) ChangeBaseBalance(ctx context.Context, code string, op ledger.OperationType, amount money.Amount, toCredit bool) (*BaseChangeTicket, error) {
	sub, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if !sub.IsAllocated {
		return nil, domain.ErrDeallocated
	}
	if sub.SubscriptionType == domain.TypeUnlimited {
		return nil, domain.ErrUnlimited
	}
	if op == ledger.OpDecrease && amount > sub.BaseBalance {
		return nil, domain.ErrBaseTooLow
	}
	return s.credit.IssueBaseChange(ctx, code, op, amount, toCredit)
}

// ApplyBaseChange performs the paid half of a base-balance change: move
// the Rater balance, re-pin the topup-reset action and the 80% fence,
// and persist the new base. The credit ledger calls it inside its
// settlement transaction.
func (s *Service) ApplyBaseChange(ctx context.Context, tx *gorm.DB, code string, op ledger.OperationType, amount money.Amount) error {
	sub, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
	if err != nil {
		return err
	}
	kind, ok := kindFor(sub.SubscriptionType)
	if !ok {
		return domain.ErrUnlimited
	}

	newBase := sub.BaseBalance + amount
	if op == ledger.OpDecrease {
		newBase = sub.BaseBalance - amount
		if newBase < 0 {
			return domain.ErrBaseTooLow
		}
	}

	units := amount.FloorUnits()
	if op == ledger.OpIncrease {
		err = s.rater.AddBalance(ctx, code, kind, units)
	} else {
		err = s.rater.DebitBalance(ctx, code, kind, units)
	}
	if err != nil {
		return err
	}
	if err := s.rater.SetTopupResetAction(ctx, code, kind, newBase.FloorUnits()); err != nil {
		return err
	}
	band := newBase.PercentCeil(20)
	if err := s.rater.SetThreshold(ctx, code, rater.ThresholdEighty, kind, band.FloorUnits(), "80-"+eventSuffix(kind)); err != nil {
		return err
	}

	sub.BaseBalance = newBase
	if err := s.repo.Save(ctx, tx, sub); err != nil {
		return err
	}
	if err := s.cache.DeleteSubscriptionRelated(ctx, code); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("subscription_code", code), zap.Error(err))
	}
	return nil
}

// ActivatePackage flips the subscription prepaid for a freshly paid
// package invoice: prepaid balance at the package value, postpaid
// disabled, prepaid thresholds, expiry action plan, and both attribute
// profiles. Runs inside the credit ledger's settlement transaction.
func (s *Service) ActivatePackage(ctx context.Context, tx *gorm.DB, code string, value money.Amount, expiredAt time.Time) error {
	sub, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
	if err != nil {
		return err
	}
	if !sub.IsAllocated {
		return domain.ErrDeallocated
	}
	if sub.SubscriptionType == domain.TypeUnlimited {
		return domain.ErrUnlimited
	}
	branch, err := s.branches.GetByID(ctx, sub.BranchID)
	if err != nil {
		return err
	}

	if err := s.rater.SetBalance(ctx, code, rater.BalancePrepaid, value.FloorUnits(), false); err != nil {
		return err
	}
	if err := s.rater.SetBalance(ctx, code, rater.BalancePostpaid, 0, true); err != nil {
		return err
	}
	if err := s.rater.SetTopupResetAction(ctx, code, rater.BalancePrepaid, value.FloorUnits()); err != nil {
		return err
	}
	if err := s.installThresholds(ctx, code, rater.BalancePrepaid, value, branch.MaxRate); err != nil {
		return err
	}
	if err := s.rater.SetActionPlanExpiry(ctx, code, expiredAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := s.pushOutboundProfile(ctx, sub); err != nil {
		return err
	}
	if err := s.rater.SetInboundAttributeProfile(ctx, code, map[string]string{"PackageActive": "true"}); err != nil {
		return err
	}

	sub.SubscriptionType = domain.TypePrepaid
	sub.BaseBalance = value
	if err := s.repo.Save(ctx, tx, sub); err != nil {
		return err
	}
	if err := s.cache.DeleteSubscriptionRelated(ctx, code); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("subscription_code", code), zap.Error(err))
	}
	return nil
}

// RestorePostpaidDefaults parks a prepaid subscription whose package
// ran out and could not renew: prepaid balance gone, postpaid enabled
// but empty, no expiry plan.
func (s *Service) RestorePostpaidDefaults(ctx context.Context, code string) error {
	if _, err := s.repo.FindByCode(ctx, s.db, code); err != nil {
		return err
	}

	if err := s.removeThresholds(ctx, code, rater.BalancePrepaid); err != nil {
		return err
	}
	if err := s.rater.RemoveActionPlan(ctx, code); err != nil && !isNotFound(err) {
		return err
	}
	if err := s.rater.SetBalance(ctx, code, rater.BalancePrepaid, 0, true); err != nil {
		return err
	}
	if err := s.rater.SetBalance(ctx, code, rater.BalancePostpaid, 0, false); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		locked.SubscriptionType = domain.TypePostpaid
		locked.BaseBalance = 0
		return s.repo.Save(ctx, tx, locked)
	})
	if err != nil {
		return err
	}

	if err := s.cache.DeleteSubscriptionRelated(ctx, code); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("subscription_code", code), zap.Error(err))
	}
	s.log.Info("subscription parked on postpaid defaults", zap.String("subscription_code", code))
	return nil
}

// Deallocate disables the account and releases the number. Abuse
// deallocations feed the blacklist window.
func (s *Service) Deallocate(ctx context.Context, code string, cause domain.DeallocationCause) (*domain.Subscription, error) {
	if cause != domain.CauseNormal && cause != domain.CauseAbuse {
		return nil, domain.ErrInvalidCause
	}
	sub, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if !sub.IsAllocated {
		return nil, domain.ErrDeallocated
	}

	if err := s.rater.SetAccount(ctx, code, true); err != nil {
		return nil, err
	}
	if err := s.rater.RemoveAttributeProfile(ctx, code); err != nil && !isNotFound(err) {
		return nil, err
	}
	if err := s.rater.RemoveActionPlan(ctx, code); err != nil && !isNotFound(err) {
		return nil, err
	}
	for _, kind := range []rater.BalanceKind{rater.BalancePostpaid, rater.BalancePrepaid} {
		if err := s.removeThresholds(ctx, code, kind); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		locked.IsAllocated = false
		locked.DeallocatedAt = &now
		locked.DeallocationCause = cause
		if err := s.repo.Save(ctx, tx, locked); err != nil {
			return err
		}
		sub = locked
		if s.packages != nil {
			return s.packages.DeactivateActive(ctx, tx, locked.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.DeleteSubscriptionRelated(ctx, code); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("subscription_code", code), zap.Error(err))
	}

	// The final bill and the carrier notification ride outside the
	// transaction; neither may undo the deallocation.
	if s.queue != nil {
		err := s.queue.Enqueue(ctx, invservice.TaskInterimInvoice, invservice.InterimTaskPayload{
			SubscriptionCode: code,
			Cause:            invoicedomain.CauseDeallocation,
			Bypass:           true,
		})
		if err != nil {
			s.log.Error("final bill not queued", zap.String("subscription_code", code), zap.Error(err))
		}
	}
	s.notifyDeallocation(ctx, sub, cause)

	s.log.Info("subscription deallocated",
		zap.String("subscription_code", code),
		zap.String("cause", string(cause)))
	return sub, nil
}

func (s *Service) notifyDeallocation(ctx context.Context, sub *domain.Subscription, cause domain.DeallocationCause) {
	if s.gateway == nil {
		return
	}
	cust, err := s.customers.FindByID(ctx, s.db, sub.CustomerID)
	if err != nil {
		s.log.Warn("customer lookup for notify failed", zap.Error(err))
		return
	}
	body := map[string]any{
		"customer_code":     cust.CustomerCode,
		"subscription_code": sub.SubscriptionCode,
		"number":            sub.Number,
		"cause":             string(cause),
	}
	if err := s.gateway.Notify(ctx, trunk.EventDeallocation, body); err != nil {
		s.log.Warn("trunk notify failed", zap.Error(err))
	}
}

// RenewBranch re-classifies the subscription's number against its
// branch and pushes a fresh outbound profile and rating profile.
func (s *Service) RenewBranch(ctx context.Context, code string) error {
	sub, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return err
	}
	if !sub.IsAllocated {
		return domain.ErrDeallocated
	}
	branch, err := s.branches.GetByID(ctx, sub.BranchID)
	if err != nil {
		return err
	}
	if err := s.rater.SetRatingProfile(ctx, code, branch.BranchCode); err != nil {
		return err
	}
	if err := s.pushOutboundProfile(ctx, sub); err != nil {
		return err
	}
	return s.cache.DeleteSubscriptionRelated(ctx, code)
}

// ApplyRuntimeConfigChange re-pushes the outbound profile of every
// allocated subscription so a changed emergency-destination set (or any
// other runtime value folded into profiles) reaches the Rater as one
// unit.
func (s *Service) ApplyRuntimeConfigChange(ctx context.Context) error {
	subs, err := s.repo.AllocatedBillable(ctx, s.db)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := s.pushOutboundProfile(ctx, sub); err != nil {
			s.log.Error("outbound profile refresh failed",
				zap.String("subscription_code", sub.SubscriptionCode), zap.Error(err))
			return err
		}
	}
	s.cache.Delete(ctx, cache.KeyRuntimeConfig, "global")
	return nil
}

// SetAutoPay flips the auto-pay flag.
func (s *Service) SetAutoPay(ctx context.Context, code string, autoPay bool) (*domain.Subscription, error) {
	var sub *domain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		locked.AutoPay = autoPay
		sub = locked
		return s.repo.Save(ctx, tx, locked)
	})
	return sub, err
}

func isNotFound(err error) bool {
	return errors.Is(err, rater.ErrNotFound)
}
