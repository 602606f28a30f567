package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/trunkgate/internal/clock"
	"github.com/smallbiznis/trunkgate/internal/config"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/internal/pack/domain"
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
	Invoices    domain.InvoiceRepository
	Subs        subdomain.Repository
	Coordinator *subservice.Service
}

type Service struct {
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	invoices    domain.InvoiceRepository
	subs        subdomain.Repository
	coordinator *subservice.Service
}

func New(p Params) *Service {
	return &Service{
		cfg:         p.Config,
		db:          p.DB,
		log:         p.Log.Named("pack.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoices:    p.Invoices,
		subs:        p.Subs,
		coordinator: p.Coordinator,
	}
}

type CreatePackageRequest struct {
	PackageCode  string       `json:"package_code"`
	PackageValue money.Amount `json:"package_value" binding:"required"`
	PackagePrice money.Amount `json:"package_price" binding:"required"`
	PackageDue   string       `json:"package_due" binding:"required"`
}

type UpdatePackageRequest struct {
	PackageValue money.Amount `json:"package_value"`
	PackagePrice money.Amount `json:"package_price"`
	PackageDue   string       `json:"package_due"`
}

func (s *Service) CreatePackage(ctx context.Context, req CreatePackageRequest) (*domain.Package, error) {
	now := s.clock.Now()
	pkg := &domain.Package{
		ID:           s.genID.Generate(),
		PackageCode:  req.PackageCode,
		PackageValue: req.PackageValue,
		PackagePrice: req.PackagePrice,
		PackageDue:   req.PackageDue,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if pkg.PackageCode == "" {
		pkg.PackageCode = s.cfg.PackageCodePfx + "-" + pkg.ID.String()
	}
	if _, err := pkg.DueDuration(); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, s.db, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *Service) UpdatePackage(ctx context.Context, code string, req UpdatePackageRequest) (*domain.Package, error) {
	pkg, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if pkg.Used {
		return nil, domain.ErrImmutable
	}
	if req.PackageValue != 0 {
		pkg.PackageValue = req.PackageValue
	}
	if req.PackagePrice != 0 {
		pkg.PackagePrice = req.PackagePrice
	}
	if req.PackageDue != "" {
		pkg.PackageDue = req.PackageDue
		if _, err := pkg.DueDuration(); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Save(ctx, s.db, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *Service) GetPackage(ctx context.Context, code string) (*domain.Package, error) {
	return s.repo.FindByCode(ctx, s.db, code)
}

func (s *Service) ListPackages(ctx context.Context, filter domain.ListFilter, page pagination.Page) ([]*domain.Package, int64, error) {
	return s.repo.List(ctx, s.db, filter, page)
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (*domain.PackageInvoice, error) {
	return s.invoices.FindByID(ctx, s.db, id)
}

func (s *Service) ListInvoices(ctx context.Context, filter domain.InvoiceListFilter, page pagination.Page) ([]*domain.PackageInvoice, int64, error) {
	return s.invoices.List(ctx, s.db, filter, page)
}

func (s *Service) ActiveInvoice(ctx context.Context, subscriptionID snowflake.ID) (*domain.PackageInvoice, error) {
	return s.invoices.ActiveBySubscription(ctx, s.db, subscriptionID)
}

// Enroll opens a fresh unpaid package invoice in the subscription's
// package lane. The previous non-terminal row is revoked first; a live
// payment cool-down blocks the lane entirely.
func (s *Service) Enroll(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, packageCode string, autoRenew bool) error {
	pkg, err := s.repo.FindByCode(ctx, tx, packageCode)
	if err != nil {
		return err
	}
	if _, err := s.openLane(ctx, tx, subscriptionID); err != nil {
		return err
	}
	now := s.clock.Now()
	inv := &domain.PackageInvoice{
		ID:             s.genID.Generate(),
		TrackingCode:   uuid.NewString(),
		SubscriptionID: subscriptionID,
		PackageID:      pkg.ID,
		TotalValue:     pkg.PackageValue,
		TotalCost:      pkg.PackagePrice,
		Status:         ledger.StatusUnpaid,
		AutoRenew:      autoRenew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s.invoices.Insert(ctx, tx, inv)
}

// openLane revokes the newest non-terminal invoice of the lane. A
// pending row blocks the lane until its payment resolves; a live
// cool-down fence blocks until it lapses.
func (s *Service) openLane(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID) (*domain.PackageInvoice, error) {
	prev, err := s.invoices.LatestForUpdate(ctx, tx, subscriptionID)
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
	if err := s.invoices.Save(ctx, tx, prev); err != nil {
		return nil, err
	}
	return prev, nil
}

// CloneForRenewal re-issues the same package as a fresh unpaid invoice.
func (s *Service) CloneForRenewal(ctx context.Context, tx *gorm.DB, prev *domain.PackageInvoice) (*domain.PackageInvoice, error) {
	now := s.clock.Now()
	inv := &domain.PackageInvoice{
		ID:             s.genID.Generate(),
		TrackingCode:   uuid.NewString(),
		SubscriptionID: prev.SubscriptionID,
		PackageID:      prev.PackageID,
		TotalValue:     prev.TotalValue,
		TotalCost:      prev.TotalCost,
		Status:         ledger.StatusUnpaid,
		AutoRenew:      prev.AutoRenew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.invoices.Insert(ctx, tx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// DeactivateActive retires the active package invoice, if any.
func (s *Service) DeactivateActive(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID) error {
	return s.ExpireActive(ctx, tx, subscriptionID, 0)
}

// ExpireActive retires the active package invoice and records how much
// value it still carried.
func (s *Service) ExpireActive(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, expiredValue money.Amount) error {
	inv, err := s.invoices.ActiveBySubscription(ctx, tx, subscriptionID)
	if err != nil || inv == nil {
		return err
	}
	inv.IsActive = false
	inv.IsExpired = true
	inv.ExpiredValue = expiredValue
	return s.invoices.Save(ctx, tx, inv)
}

// AmountDue reports what a decrease credit invoice must cover to settle
// the package invoice.
func (s *Service) AmountDue(ctx context.Context, db *gorm.DB, id snowflake.ID) (money.Amount, error) {
	inv, err := s.invoices.FindByID(ctx, db, id)
	if err != nil {
		return 0, err
	}
	return inv.TotalCost, nil
}

// MarkPending parks the package invoice behind its in-flight payment.
func (s *Service) MarkPending(ctx context.Context, tx *gorm.DB, id, creditInvoiceID snowflake.ID, coolDownUntil *time.Time) error {
	inv, err := s.invoices.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	inv.Status = ledger.StatusPending
	inv.CreditInvoiceID = &creditInvoiceID
	inv.PayCoolDown = coolDownUntil
	return s.invoices.Save(ctx, tx, inv)
}

// Reopen puts a pending invoice back to unpaid after its credit invoice
// was revoked.
func (s *Service) Reopen(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	inv, err := s.invoices.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if inv.Status.Terminal() {
		return nil
	}
	inv.Status = ledger.StatusUnpaid
	inv.CreditInvoiceID = nil
	return s.invoices.Save(ctx, tx, inv)
}

// SettlePaid is the paid half of a package purchase: the invoice goes
// paid and active, the package becomes immutable, the expiry clock
// starts, and the coordinator flips the subscription prepaid.
func (s *Service) SettlePaid(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	inv, err := s.invoices.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if inv.Status == ledger.StatusPaid {
		return nil
	}
	if inv.Status == ledger.StatusRevoked {
		return ledger.ErrRevoked
	}

	active, err := s.invoices.ActiveBySubscription(ctx, tx, inv.SubscriptionID)
	if err != nil {
		return err
	}
	if active != nil && active.ID != inv.ID {
		return domain.ErrActiveExists
	}

	pkg, err := s.repo.FindByID(ctx, tx, inv.PackageID)
	if err != nil {
		return err
	}
	due, err := pkg.DueDuration()
	if err != nil {
		return err
	}
	if !pkg.Used {
		pkg.Used = true
		if err := s.repo.Save(ctx, tx, pkg); err != nil {
			return err
		}
	}

	sub, err := s.subs.FindByID(ctx, tx, inv.SubscriptionID)
	if err != nil {
		return err
	}

	expiredAt := s.clock.Now().Add(due)
	inv.Status = ledger.StatusPaid
	inv.IsActive = true
	inv.IsExpired = false
	inv.ExpiredAt = &expiredAt
	if err := s.invoices.Save(ctx, tx, inv); err != nil {
		return err
	}

	if err := s.coordinator.ActivatePackage(ctx, tx, sub.SubscriptionCode, inv.TotalValue, expiredAt); err != nil {
		return err
	}
	s.log.Info("package invoice settled",
		zap.String("tracking_code", inv.TrackingCode),
		zap.String("subscription_code", sub.SubscriptionCode))
	return nil
}
