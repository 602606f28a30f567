package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/credit/domain"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	subservice "github.com/smallbiznis/trunkgate/internal/subscription/service"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IssueBaseChange opens a base-balance invoice for the subscription.
// Decreases apply to the Rater immediately and can return the amount to
// credit; increases wait for a decrease credit invoice to settle them.
func (s *Service) IssueBaseChange(ctx context.Context, subscriptionCode string, op ledger.OperationType, amount money.Amount, toCredit bool) (*subservice.BaseChangeTicket, error) {
	if amount <= 0 {
		return nil, domain.ErrBadAmount
	}
	var ticket *subservice.BaseChangeTicket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.subs.FindByCode(ctx, tx, subscriptionCode)
		if err != nil {
			return err
		}
		inv, err := s.engine.IssueBase(ctx, tx, sub, op, amount, toCredit)
		if err != nil {
			return err
		}
		if op == ledger.OpDecrease {
			// Rater first; the row flips paid only after the base moved.
			if err := s.coordinator.ApplyBaseChange(ctx, tx, subscriptionCode, op, amount); err != nil {
				return err
			}
			if inv, err = s.engine.SettleBasePaid(ctx, tx, inv.ID); err != nil {
				return err
			}
			if toCredit {
				if err := s.NoPayIncrease(ctx, tx, sub.CustomerID, amount); err != nil {
					return err
				}
			}
		}
		ticket = &subservice.BaseChangeTicket{
			TrackingCode: inv.TrackingCode,
			Status:       inv.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// AutoSettleInvoice pays a freshly issued invoice from customer credit
// inside the issuing transaction. The invoice engine calls it when
// auto-pay applies.
func (s *Service) AutoSettleInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) error {
	inv, err := s.engine.Find(ctx, tx, invoiceID)
	if err != nil {
		return err
	}
	sub, err := s.subs.FindByID(ctx, tx, inv.SubscriptionID)
	if err != nil {
		return err
	}
	cust, err := s.customers.FindByIDForUpdate(ctx, tx, sub.CustomerID)
	if err != nil {
		return err
	}
	due := inv.TotalCostRounded()
	usedFor := ledger.UsedForInvoice
	if _, err := s.openLane(ctx, tx, cust.ID, ledger.OpDecrease, &usedFor); err != nil {
		return err
	}
	if cust.Credit < due {
		return domain.ErrInsufficientCredit
	}
	dec := s.newInvoice(cust.ID, ledger.OpDecrease, &usedFor, &invoiceID, due)
	dec.Status = ledger.StatusPaid
	if err := s.repo.Insert(ctx, tx, dec); err != nil {
		return err
	}
	if err := s.engine.SettlePaid(ctx, tx, invoiceID); err != nil {
		return err
	}
	return s.customers.SetCredit(ctx, tx, cust.ID, cust.Credit-due)
}

// PurchasePackageFromCredit settles a package invoice straight from the
// customer's credit. The notification reactor drives renewals through
// here.
func (s *Service) PurchasePackageFromCredit(ctx context.Context, customerID, packageInvoiceID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cust, err := s.customers.FindByIDForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}
		due, err := s.packs.AmountDue(ctx, tx, packageInvoiceID)
		if err != nil {
			return err
		}
		usedFor := ledger.UsedForPackageInvoice
		if _, err := s.openLane(ctx, tx, cust.ID, ledger.OpDecrease, &usedFor); err != nil {
			return err
		}
		if cust.Credit < due {
			return domain.ErrInsufficientCredit
		}
		dec := s.newInvoice(cust.ID, ledger.OpDecrease, &usedFor, &packageInvoiceID, due)
		dec.Status = ledger.StatusPaid
		if err := s.repo.Insert(ctx, tx, dec); err != nil {
			return err
		}
		if err := s.packs.SettlePaid(ctx, tx, packageInvoiceID); err != nil {
			return err
		}
		if err := s.customers.SetCredit(ctx, tx, cust.ID, cust.Credit-due); err != nil {
			return err
		}
		s.log.Info("package purchased from credit",
			zap.Int64("package_invoice_id", int64(packageInvoiceID)),
			zap.Int64("total_cost", int64(due)))
		return nil
	})
}
