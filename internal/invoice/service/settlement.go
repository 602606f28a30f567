package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/trunkgate/internal/invoice/domain"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/internal/rater"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"gorm.io/gorm"
)

// The methods below are the invoice-side half of credit settlement. The
// credit ledger drives them while holding the customer row lock.

// Find fetches one invoice through the caller's transaction handle.
func (e *Engine) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return e.repo.FindByID(ctx, db, id)
}

// AmountDue is what a decrease credit invoice must cover: the rounded
// total.
func (e *Engine) AmountDue(ctx context.Context, db *gorm.DB, id snowflake.ID) (money.Amount, error) {
	inv, err := e.repo.FindByID(ctx, db, id)
	if err != nil {
		return 0, err
	}
	return inv.TotalCostRounded(), nil
}

// MarkPending parks the invoice behind its in-flight payment. The fence
// is nil for offline payments, which wait on approval rather than time.
func (e *Engine) MarkPending(ctx context.Context, tx *gorm.DB, id, creditInvoiceID snowflake.ID, coolDownUntil *time.Time) error {
	inv, err := e.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	inv.Status = ledger.StatusPending
	inv.CreditInvoiceID = &creditInvoiceID
	inv.PayCoolDown = coolDownUntil
	return e.repo.Save(ctx, tx, inv)
}

// Reopen puts a pending invoice back to unpaid after its credit invoice
// was revoked.
func (e *Engine) Reopen(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	inv, err := e.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if inv.Status.Terminal() {
		return nil
	}
	inv.Status = ledger.StatusUnpaid
	inv.CreditInvoiceID = nil
	return e.repo.Save(ctx, tx, inv)
}

// SettlePaid is the paid half of an invoice settlement. For postpaid
// subscriptions the unpaid-usage tail (revoked totals since the last
// paid invoice plus this invoice's usage cost) is returned to the
// Rater's postpaid balance and the thresholds are refreshed, so the
// balance reflects only unbilled usage again. Rater writes precede the
// status flip.
func (e *Engine) SettlePaid(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	inv, err := e.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if inv.Status == ledger.StatusPaid {
		return nil
	}
	if inv.Status == ledger.StatusRevoked {
		return ledger.ErrRevoked
	}
	sub, err := e.subs.FindByID(ctx, tx, inv.SubscriptionID)
	if err != nil {
		return err
	}

	if sub.SubscriptionType == subdomain.TypePostpaid {
		since := sub.CreatedAt
		if sub.LatestPaidAt != nil {
			since = *sub.LatestPaidAt
		}
		revoked, err := e.repo.RevokedTotalAfter(ctx, tx, sub.ID, since)
		if err != nil {
			return err
		}
		tail := revoked + inv.UsageCost()
		if units := tail.FloorUnits(); units > 0 {
			if err := e.usage.AddBalance(ctx, sub.SubscriptionCode, rater.BalancePostpaid, units); err != nil {
				return err
			}
		}
		branch, err := e.branches.GetByID(ctx, sub.BranchID)
		if err != nil {
			return err
		}
		band := sub.BaseBalance.PercentCeil(20)
		if err := e.usage.SetThreshold(ctx, sub.SubscriptionCode, rater.ThresholdEighty, rater.BalancePostpaid, band.FloorUnits(), "80-postpaid"); err != nil {
			return err
		}
		if err := e.usage.SetThreshold(ctx, sub.SubscriptionCode, rater.ThresholdHundred, rater.BalancePostpaid, branch.MaxRate.FloorUnits(), "100-postpaid"); err != nil {
			return err
		}
	}

	inv.Status = ledger.StatusPaid
	if err := e.repo.Save(ctx, tx, inv); err != nil {
		return err
	}
	now := e.clock.Now()
	sub.LatestPaidAt = &now
	return e.subs.Save(ctx, tx, sub)
}

// IssueBase opens a base-balance invoice in the subscription's
// per-operation lane.
func (e *Engine) IssueBase(ctx context.Context, tx *gorm.DB, sub *subdomain.Subscription, op ledger.OperationType, amount money.Amount, toCredit bool) (*domain.BaseBalanceInvoice, error) {
	prev, err := e.baseRepo.LatestForUpdate(ctx, tx, sub.ID, op)
	if err != nil {
		return nil, err
	}
	if prev != nil && !prev.Status.Terminal() {
		if prev.Status == ledger.StatusPending {
			return nil, ledger.ErrPaymentInFlight
		}
		if prev.PayCoolDown != nil && prev.PayCoolDown.After(e.clock.Now()) {
			return nil, ledger.ErrCoolDown
		}
		prev.Status = ledger.StatusRevoked
		if err := e.baseRepo.Save(ctx, tx, prev); err != nil {
			return nil, err
		}
	}
	now := e.clock.Now()
	inv := &domain.BaseBalanceInvoice{
		ID:             e.genID.Generate(),
		TrackingCode:   uuid.NewString(),
		SubscriptionID: sub.ID,
		OperationType:  op,
		TotalCost:      amount,
		Status:         ledger.StatusUnpaid,
		ToCredit:       toCredit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.baseRepo.Insert(ctx, tx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// GetBase fetches one base-balance invoice.
func (e *Engine) GetBase(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BaseBalanceInvoice, error) {
	return e.baseRepo.FindByID(ctx, db, id)
}

// BaseAmountDue reports what settles a base-balance invoice.
func (e *Engine) BaseAmountDue(ctx context.Context, db *gorm.DB, id snowflake.ID) (money.Amount, error) {
	inv, err := e.baseRepo.FindByID(ctx, db, id)
	if err != nil {
		return 0, err
	}
	return inv.TotalCost, nil
}

// MarkBasePending parks the base-balance invoice behind its in-flight
// payment.
func (e *Engine) MarkBasePending(ctx context.Context, tx *gorm.DB, id, creditInvoiceID snowflake.ID, coolDownUntil *time.Time) error {
	inv, err := e.baseRepo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	inv.Status = ledger.StatusPending
	inv.CreditInvoiceID = &creditInvoiceID
	inv.PayCoolDown = coolDownUntil
	return e.baseRepo.Save(ctx, tx, inv)
}

// ReopenBase puts a pending base-balance invoice back to unpaid.
func (e *Engine) ReopenBase(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	inv, err := e.baseRepo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if inv.Status.Terminal() {
		return nil
	}
	inv.Status = ledger.StatusUnpaid
	inv.CreditInvoiceID = nil
	return e.baseRepo.Save(ctx, tx, inv)
}

// SettleBasePaid flips a base-balance invoice paid. The Rater-side base
// move is the caller's duty and must precede this call.
func (e *Engine) SettleBasePaid(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.BaseBalanceInvoice, error) {
	inv, err := e.baseRepo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == ledger.StatusPaid {
		return inv, nil
	}
	if inv.Status == ledger.StatusRevoked {
		return nil, ledger.ErrRevoked
	}
	inv.Status = ledger.StatusPaid
	if err := e.baseRepo.Save(ctx, tx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}
