// Package scheduler runs the recurring billing sweeps: monthly
// periodic invoices, overdue notifications, package expiry, failed
// notification replay, and log retention. Jobs are serialized across
// instances with redis locks.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/trunkgate/internal/apilog"
	"github.com/smallbiznis/trunkgate/internal/clock"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/trunkgate/internal/invoice/domain"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/internal/reactor"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	"github.com/smallbiznis/trunkgate/internal/taskqueue"
	"github.com/smallbiznis/trunkgate/internal/trunk"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockPrefix = "trunkgate:scheduler:"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Redis     *redis.Client
	Subs      subdomain.Repository
	Customers customerdomain.Repository
	Invoices  invoicedomain.Repository
	Engine    *invservice.Engine
	Notifier  *trunk.Notifier
	APILogs   *apilog.Service
	Queue     *taskqueue.Queue
	Config    Config `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	rdb       *redis.Client
	subs      subdomain.Repository
	customers customerdomain.Repository
	invoices  invoicedomain.Repository
	engine    *invservice.Engine
	notifier  *trunk.Notifier
	apiLogs   *apilog.Service
	queue     *taskqueue.Queue
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler"),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		rdb:       p.Redis,
		subs:      p.Subs,
		customers: p.Customers,
		invoices:  p.Invoices,
		engine:    p.Engine,
		notifier:  p.Notifier,
		apiLogs:   p.APILogs,
		queue:     p.Queue,
	}
}

// RunForever sweeps all jobs on a fixed interval until the context
// ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"periodic_invoices", s.PeriodicInvoicesJob},
		{"due_date_sweep", s.DueDateSweepJob},
		{"package_expiry_sweep", s.PackageExpirySweepJob},
		{"replay_failed_jobs", s.ReplayFailedJobsJob},
		{"purge_api_logs", s.PurgeAPILogsJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(ctx, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, name) {
			return true
		}
	}
	return false
}

// runJob takes the job's redis lock, bounds the run, and releases the
// lock. A lock held elsewhere means another instance is on it.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(context.Context) error) error {
	key := lockPrefix + name
	ok, err := s.rdb.SetNX(parent, key, s.clock.Now().Format(time.RFC3339), s.cfg.LockTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer s.rdb.Del(parent, key)

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	err = fn(ctx)
	log := s.log.With(
		zap.String("job", name),
		zap.Duration("took", s.clock.Now().Sub(start)),
	)
	if err != nil {
		log.Warn("job failed", zap.Error(err))
		return err
	}
	log.Debug("job finished")
	return nil
}

// PeriodicInvoicesJob issues the monthly invoice for every billable
// subscription whose previous window closed at least a month ago.
func (s *Scheduler) PeriodicInvoicesJob(ctx context.Context) error {
	subs, err := s.subs.AllocatedBillable(ctx, s.db)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	var errs error
	for _, sub := range subs {
		prev, err := s.invoices.Latest(ctx, s.db, sub.ID)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		anchor := sub.CreatedAt
		if prev != nil {
			anchor = prev.ToDate
		}
		if now.Before(anchor.AddDate(0, 1, 0)) {
			continue
		}
		if _, err := s.engine.IssuePeriodic(ctx, sub); err != nil {
			if errors.Is(err, ledger.ErrCoolDown) {
				continue
			}
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// DueDateSweepJob notifies Trunk once per invoice that passed its due
// date unpaid.
func (s *Scheduler) DueDateSweepJob(ctx context.Context) error {
	now := s.clock.Now()
	var overdue []*invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("status = ?", ledger.StatusUnpaid).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("due_notified_at IS NULL").
		Limit(200).
		Find(&overdue).Error
	if err != nil {
		return err
	}

	var errs error
	for _, inv := range overdue {
		sub, err := s.subs.FindByID(ctx, s.db, inv.SubscriptionID)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		cust, err := s.customers.FindByID(ctx, s.db, sub.CustomerID)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		err = s.notifier.Notify(ctx, trunk.EventDueDate, map[string]any{
			"customer_code":     cust.CustomerCode,
			"subscription_code": sub.SubscriptionCode,
			"tracking_code":     inv.TrackingCode,
			"total_cost":        inv.TotalCostRounded(),
			"due_date":          inv.DueDate,
		})
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		inv.DueNotifiedAt = &now
		if err := s.invoices.Save(ctx, s.db, inv); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// packageExpiryRow is the slim projection the expiry sweep needs.
type packageExpiryRow struct {
	SubscriptionCode string
}

// PackageExpirySweepJob backstops the Rater's expiry action: any
// package still active past its expiry gets the expiry event enqueued.
func (s *Scheduler) PackageExpirySweepJob(ctx context.Context) error {
	var rows []packageExpiryRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT s.subscription_code
		 FROM package_invoices p
		 JOIN subscriptions s ON s.id = p.subscription_id
		 WHERE p.is_active AND NOT p.is_expired AND p.expired_at < ?
		 LIMIT 200`,
		s.clock.Now(),
	).Scan(&rows).Error
	if err != nil {
		return err
	}

	var errs error
	for _, row := range rows {
		errs = errors.Join(errs, s.queue.Enqueue(ctx, reactor.TaskRaterNotification, reactor.NotificationPayload{
			Type:             reactor.EventExpiryPrepaid,
			SubscriptionCode: row.SubscriptionCode,
		}))
	}
	return errs
}

func (s *Scheduler) ReplayFailedJobsJob(ctx context.Context) error {
	return s.notifier.ReplayFailedJobs(ctx)
}

func (s *Scheduler) PurgeAPILogsJob(ctx context.Context) error {
	_, err := s.apiLogs.Purge(ctx)
	return err
}
