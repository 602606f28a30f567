package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/credit/domain"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentRequest struct {
	CreditInvoiceID snowflake.ID          `json:"credit_invoice_id,string" binding:"required"`
	Gateway         domain.PaymentGateway `json:"gateway" binding:"required"`
	Attachments     datatypes.JSON        `json:"attachments,omitempty"`
	ExtraData       datatypes.JSONMap     `json:"extra_data,omitempty"`
}

// CreatePayment opens a payment attempt against an increase credit
// invoice. The amount is copied from the invoice, never taken from the
// request, and clamped to the online gateway minimum. A non-offline
// attempt starts the lane's cool-down fence; an offline slip waits for
// approval instead.
func (s *Service) CreatePayment(ctx context.Context, req PaymentRequest) (*domain.Payment, error) {
	if req.Gateway != domain.GatewayOnline && req.Gateway != domain.GatewayOffline {
		return nil, domain.ErrNotPayable
	}
	var payment *domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.FindByIDForUpdate(ctx, tx, req.CreditInvoiceID)
		if err != nil {
			return err
		}
		if inv.Status.Terminal() {
			return domain.ErrTerminal
		}
		if inv.OperationType != ledger.OpIncrease {
			return domain.ErrNotPayable
		}

		now := s.clock.Now()
		inv.Status = ledger.StatusPending
		if req.Gateway != domain.GatewayOffline {
			coolDown := now.Add(s.cfg.CoolDown())
			inv.PayCoolDown = &coolDown
		}
		if err := s.repo.Save(ctx, tx, inv); err != nil {
			return err
		}
		if err := s.markTargetPending(ctx, tx, inv); err != nil {
			return err
		}

		payment = &domain.Payment{
			ID:              s.genID.Generate(),
			CreditInvoiceID: inv.ID,
			Amount:          inv.TotalCost.ClampGatewayMin(),
			Gateway:         req.Gateway,
			Status:          domain.PaymentPending,
			Attachments:     req.Attachments,
			ExtraData:       req.ExtraData,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return s.payments.Insert(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ApprovePayment resolves a pending offline payment. Success pays the
// credit invoice, bumps the customer's credit, and when the invoice
// targets another invoice kind the credit is immediately spent to
// settle it. Failure returns the lane to unpaid; the cool-down fence
// stays.
func (s *Service) ApprovePayment(ctx context.Context, paymentID snowflake.ID, newStatus domain.PaymentStatus) (*domain.Payment, error) {
	if newStatus != domain.PaymentSuccess && newStatus != domain.PaymentFailed {
		return nil, domain.ErrSameStatus
	}
	var payment *domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.payments.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			return domain.ErrSameStatus
		}
		if p.Gateway != domain.GatewayOffline {
			return domain.ErrOfflineApprovalOnly
		}
		inv, err := s.repo.FindByIDForUpdate(ctx, tx, p.CreditInvoiceID)
		if err != nil {
			return err
		}
		// A revoked invoice can still carry an orphaned pending payment.
		// Settling it would pay a terminal row and mint credit.
		if inv.Status.Terminal() {
			return domain.ErrTerminal
		}

		p.Status = newStatus
		if err := s.payments.Save(ctx, tx, p); err != nil {
			return err
		}
		payment = p

		if newStatus == domain.PaymentFailed {
			inv.Status = ledger.StatusUnpaid
			if err := s.repo.Save(ctx, tx, inv); err != nil {
				return err
			}
			if inv.UsedFor != nil && inv.UsedForID != nil {
				return s.reopenTarget(ctx, tx, *inv.UsedFor, *inv.UsedForID)
			}
			return nil
		}
		return s.settleIncreasePaid(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("payment resolved",
		zap.Int64("payment_id", int64(paymentID)),
		zap.String("status", string(newStatus)))
	return payment, nil
}

// settleIncreasePaid marks an increase invoice paid, credits the
// customer, and chains into the target's settlement when the increase
// was raised to cover one.
func (s *Service) settleIncreasePaid(ctx context.Context, tx *gorm.DB, inv *domain.CreditInvoice) error {
	cust, err := s.customers.FindByIDForUpdate(ctx, tx, inv.CustomerID)
	if err != nil {
		return err
	}
	inv.Status = ledger.StatusPaid
	if err := s.repo.Save(ctx, tx, inv); err != nil {
		return err
	}
	credit := cust.Credit + inv.TotalCost
	if err := s.customers.SetCredit(ctx, tx, cust.ID, credit); err != nil {
		return err
	}
	if inv.UsedFor == nil || inv.UsedForID == nil {
		return nil
	}

	due, err := s.amountDue(ctx, tx, *inv.UsedFor, *inv.UsedForID)
	if err != nil {
		return err
	}
	if credit < due {
		return nil
	}
	dec := s.newInvoice(cust.ID, ledger.OpDecrease, inv.UsedFor, inv.UsedForID, due)
	dec.Status = ledger.StatusPaid
	if err := s.repo.Insert(ctx, tx, dec); err != nil {
		return err
	}
	if err := s.settleTarget(ctx, tx, *inv.UsedFor, *inv.UsedForID); err != nil {
		return err
	}
	return s.customers.SetCredit(ctx, tx, cust.ID, credit-due)
}

// NoPayIncrease grants credit without a payment: the increase invoice
// is born paid. Used for prepaid leftovers and base-balance returns.
func (s *Service) NoPayIncrease(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, amount money.Amount) error {
	if amount <= 0 {
		return domain.ErrBadAmount
	}
	cust, err := s.customers.FindByIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return err
	}
	inv := s.newInvoice(customerID, ledger.OpIncrease, nil, nil, amount)
	inv.Status = ledger.StatusPaid
	if err := s.repo.Insert(ctx, tx, inv); err != nil {
		return err
	}
	return s.customers.SetCredit(ctx, tx, cust.ID, cust.Credit+amount)
}
