// Package reactor consumes the asynchronous threshold and expiry
// events the Rater posts back, decides whether they are real, and
// drives interim invoices, package renewals, and Trunk notifications.
package reactor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	branchservice "github.com/smallbiznis/trunkgate/internal/branch/service"
	"github.com/smallbiznis/trunkgate/internal/clock"
	"github.com/smallbiznis/trunkgate/internal/config"
	creditservice "github.com/smallbiznis/trunkgate/internal/credit/service"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/trunkgate/internal/invoice/domain"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	packservice "github.com/smallbiznis/trunkgate/internal/pack/service"
	"github.com/smallbiznis/trunkgate/internal/rater"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	subservice "github.com/smallbiznis/trunkgate/internal/subscription/service"
	"github.com/smallbiznis/trunkgate/internal/taskqueue"
	"github.com/smallbiznis/trunkgate/internal/trunk"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskRaterNotification is the queue kind for Rater callback events.
const TaskRaterNotification = "rater.notification"

// Notification event types as the Rater posts them.
const (
	EventEightyPostpaid  = "80-postpaid"
	EventHundredPostpaid = "100-postpaid"
	EventEightyPrepaid   = "80-prepaid"
	EventHundredPrepaid  = "100-prepaid"
	EventExpiryPrepaid   = "expiry-prepaid"
)

// NotificationPayload is the task body for a Rater callback.
type NotificationPayload struct {
	Type             string `json:"type"`
	SubscriptionCode string `json:"subscription_code"`
}

type Params struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Subs        subdomain.Repository
	Customers   customerdomain.Repository
	Branches    *branchservice.Service
	Engine      *invservice.Engine
	Credit      *creditservice.Service
	Packs       *packservice.Service
	Coordinator *subservice.Service
	Notifier    *trunk.Notifier
	Queue       *taskqueue.Queue
}

type Reactor struct {
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	subs        subdomain.Repository
	customers   customerdomain.Repository
	branches    *branchservice.Service
	engine      *invservice.Engine
	credit      *creditservice.Service
	packs       *packservice.Service
	coordinator *subservice.Service
	notifier    *trunk.Notifier
	queue       *taskqueue.Queue
}

func New(p Params) *Reactor {
	return &Reactor{
		cfg:         p.Config,
		db:          p.DB,
		log:         p.Log.Named("reactor"),
		clock:       p.Clock,
		subs:        p.Subs,
		customers:   p.Customers,
		branches:    p.Branches,
		engine:      p.Engine,
		credit:      p.Credit,
		packs:       p.Packs,
		coordinator: p.Coordinator,
		notifier:    p.Notifier,
		queue:       p.Queue,
	}
}

// RegisterHandlers wires the reactor into the worker pool.
func (r *Reactor) RegisterHandlers(w *taskqueue.Workers) {
	w.Register(TaskRaterNotification, r.handleNotification)
	w.Register(invservice.TaskInterimInvoice, r.handleDeferredInterim)
}

func (r *Reactor) handleNotification(ctx context.Context, raw json.RawMessage) error {
	var payload NotificationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	sub, err := r.subs.FindByCode(ctx, r.db, payload.SubscriptionCode)
	if err != nil {
		return err
	}
	if !sub.IsAllocated {
		r.log.Info("event for deallocated subscription dropped",
			zap.String("subscription_code", sub.SubscriptionCode),
			zap.String("type", payload.Type))
		return nil
	}

	switch payload.Type {
	case EventEightyPostpaid:
		return r.eightyPostpaid(ctx, sub)
	case EventHundredPostpaid:
		return r.hundredPostpaid(ctx, sub)
	case EventEightyPrepaid:
		return r.eightyPrepaid(ctx, sub)
	case EventHundredPrepaid:
		return r.prepaidRollover(ctx, sub, trunk.EventPrepaidMaxUsage)
	case EventExpiryPrepaid:
		return r.prepaidRollover(ctx, sub, trunk.EventPrepaidExpired)
	}
	return fmt.Errorf("unknown notification type %q", payload.Type)
}

func (r *Reactor) handleDeferredInterim(ctx context.Context, raw json.RawMessage) error {
	var payload invservice.InterimTaskPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	sub, err := r.subs.FindByCode(ctx, r.db, payload.SubscriptionCode)
	if err != nil {
		return err
	}
	// A deallocation bill is the one interim that must still go out for
	// a released subscription.
	if !sub.IsAllocated && payload.Cause != invoicedomain.CauseDeallocation {
		return nil
	}
	_, err = r.engine.IssueInterim(ctx, sub, payload.Cause, payload.OnDemand, payload.Bypass)
	return err
}

func (r *Reactor) eightyPostpaid(ctx context.Context, sub *subdomain.Subscription) error {
	spurious, _, err := r.engine.VerifyAndRepair(ctx, sub, rater.ThresholdEighty)
	if err != nil || spurious {
		return err
	}
	_, err = r.engine.IssueInterim(ctx, sub, invoicedomain.CauseEightyPercent, false, true)
	return err
}

// hundredPostpaid notifies Trunk and re-checks later: the gap between
// the branch's cheapest and dearest rate bounds how much more usage can
// accrue before the re-check.
func (r *Reactor) hundredPostpaid(ctx context.Context, sub *subdomain.Subscription) error {
	spurious, _, err := r.engine.VerifyAndRepair(ctx, sub, rater.ThresholdHundred)
	if err != nil || spurious {
		return err
	}
	if err := r.notifySubscription(ctx, sub, trunk.EventPostpaidMaxUsage, nil); err != nil {
		r.log.Warn("trunk notify failed", zap.Error(err))
	}

	branch, err := r.branches.GetByID(ctx, sub.BranchID)
	if err != nil {
		return err
	}
	minutes := int64(1)
	if branch.MinRate > 0 {
		minutes = int64((branch.MaxRate + branch.MinRate - 1) / branch.MinRate)
	}
	eta := r.clock.Now().Add(time.Duration(minutes) * time.Minute)
	return r.queue.EnqueueAt(ctx, invservice.TaskInterimInvoice, invservice.InterimTaskPayload{
		SubscriptionCode: sub.SubscriptionCode,
		Cause:            invoicedomain.CauseMaxUsage,
		Bypass:           true,
	}, eta)
}

func (r *Reactor) eightyPrepaid(ctx context.Context, sub *subdomain.Subscription) error {
	spurious, _, err := r.engine.VerifyAndRepair(ctx, sub, rater.ThresholdEighty)
	if err != nil || spurious {
		return err
	}
	return r.notifySubscription(ctx, sub, trunk.EventPrepaidEightyPercent, nil)
}

// prepaidRollover retires the active package and renews it from credit
// when auto-renew allows; otherwise the subscription parks on postpaid
// defaults. The balance the real usage leaves is recorded on the
// expired invoice.
func (r *Reactor) prepaidRollover(ctx context.Context, sub *subdomain.Subscription, fallbackEvent string) error {
	spurious, remaining, err := r.engine.VerifyAndRepair(ctx, sub, rater.ThresholdHundred)
	if err != nil || spurious {
		return err
	}

	active, err := r.packs.ActiveInvoice(ctx, sub.ID)
	if err != nil {
		return err
	}
	if active == nil {
		// Duplicate delivery after an earlier rollover already handled it.
		return nil
	}
	cust, err := r.customers.FindByID(ctx, r.db, sub.CustomerID)
	if err != nil {
		return err
	}

	renewable := active.AutoRenew && cust.Credit >= active.TotalCost
	var clone *snowflake.ID
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.packs.ExpireActive(ctx, tx, sub.ID, remaining); err != nil {
			return err
		}
		if !renewable {
			return nil
		}
		next, err := r.packs.CloneForRenewal(ctx, tx, active)
		if err != nil {
			return err
		}
		clone = &next.ID
		return nil
	})
	if err != nil {
		return err
	}

	if renewable && clone != nil {
		if err := r.credit.PurchasePackageFromCredit(ctx, sub.CustomerID, *clone); err != nil {
			return err
		}
		return r.notifySubscription(ctx, sub, trunk.EventPrepaidRenewed, nil)
	}

	if err := r.coordinator.RestorePostpaidDefaults(ctx, sub.SubscriptionCode); err != nil {
		return err
	}
	return r.notifySubscription(ctx, sub, fallbackEvent, nil)
}

func (r *Reactor) notifySubscription(ctx context.Context, sub *subdomain.Subscription, event string, extra map[string]any) error {
	cust, err := r.customers.FindByID(ctx, r.db, sub.CustomerID)
	if err != nil {
		return err
	}
	body := map[string]any{
		"customer_code":     cust.CustomerCode,
		"subscription_code": sub.SubscriptionCode,
		"number":            sub.Number,
	}
	for k, v := range extra {
		body[k] = v
	}
	return r.notifier.Notify(ctx, event, body)
}

var Module = fx.Module("reactor",
	fx.Provide(New),
	fx.Invoke(func(w *taskqueue.Workers, r *Reactor) {
		r.RegisterHandlers(w)
	}),
)
