package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	branchdomain "github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/internal/clock"
	"github.com/smallbiznis/trunkgate/internal/config"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	"github.com/smallbiznis/trunkgate/internal/invoice/domain"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/internal/rater"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskInterimInvoice is the queue kind for deferred interim issuance.
const TaskInterimInvoice = "invoice.interim"

// InterimTaskPayload is the deferred-issuance task body.
type InterimTaskPayload struct {
	SubscriptionCode string              `json:"subscription_code"`
	Cause            domain.InterimCause `json:"cause"`
	OnDemand         bool                `json:"on_demand"`
	Bypass           bool                `json:"bypass"`
}

// UsageSource is the slice of the Rater client the engine reads usage
// from and repairs balances through.
type UsageSource interface {
	ListCDRs(ctx context.Context, filter rater.CDRFilter) ([]rater.CDR, error)
	SubjectFilter(subscriptionCode string) string
	ActiveSessions(ctx context.Context, subscriptionCode string) ([]rater.Session, error)
	ForceDisconnect(ctx context.Context, originID string) error
	GetBalance(ctx context.Context, subscriptionCode string, kind rater.BalanceKind) (float64, error)
	AddBalance(ctx context.Context, subscriptionCode string, kind rater.BalanceKind, units int64) error
	SetThreshold(ctx context.Context, subscriptionCode string, pct rater.ThresholdPercent, kind rater.BalanceKind, valueUnits int64, notifyEvent string) error
}

// FeeProvider fetches the external subscription fee for a window end.
type FeeProvider interface {
	SubscriptionFee(ctx context.Context, sub *subdomain.Subscription, to time.Time) (money.Amount, error)
}

// TaxSettings is the runtime-config slice the fee math needs.
type TaxSettings interface {
	TaxPercent(ctx context.Context) int64
	DiscountPercent(ctx context.Context) int64
	DiscountValue(ctx context.Context) money.Amount
}

// PrefixResolver answers classification prefix sets and rate bounds.
type PrefixResolver interface {
	GetByID(ctx context.Context, id snowflake.ID) (*branchdomain.Branch, error)
	PrefixSets(ctx context.Context, branchID snowflake.ID) (map[branchdomain.CallClass][]string, error)
}

// AutoPayer settles a freshly created invoice from customer credit. The
// credit ledger binds itself here at startup.
type AutoPayer interface {
	AutoSettleInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) error
}

// ProfitRecorder writes per-operator profit rows for a built invoice.
// The operator module binds itself here at startup.
type ProfitRecorder interface {
	RecordProfits(ctx context.Context, tx *gorm.DB, invoiceID, subscriptionID snowflake.ID, perOperator map[string]money.Amount) error
}

// Delayer schedules deferred work on the task queue.
type Delayer interface {
	EnqueueAt(ctx context.Context, kind string, payload any, eta time.Time) error
}

// Notifier posts invoice events to Trunk.
type Notifier interface {
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
	BaseRepo  domain.BaseRepository
	Customers customerdomain.Repository
	Subs      subdomain.Repository
	Branches  PrefixResolver
	Settings  TaxSettings
	Fees      FeeProvider
	Usage     UsageSource
	Queue     Delayer
	Notify    Notifier
}

// Engine computes invoices from rated CDRs and keeps them honest
// against the Rater.
type Engine struct {
	cfg       config.Config
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	baseRepo  domain.BaseRepository
	customers customerdomain.Repository
	subs      subdomain.Repository
	branches  PrefixResolver
	settings  TaxSettings
	fees      FeeProvider
	usage     UsageSource
	queue     Delayer
	notify    Notifier
	autoPayer AutoPayer
	profits   ProfitRecorder
}

func New(p Params) *Engine {
	return &Engine{
		cfg:       p.Config,
		db:        p.DB,
		log:       p.Log.Named("invoice.engine"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		baseRepo:  p.BaseRepo,
		customers: p.Customers,
		subs:      p.Subs,
		branches:  p.Branches,
		settings:  p.Settings,
		fees:      p.Fees,
		usage:     p.Usage,
		queue:     p.Queue,
		notify:    p.Notify,
	}
}

// BindAutoPayer breaks the construction cycle with the credit ledger.
func (e *Engine) BindAutoPayer(p AutoPayer) { e.autoPayer = p }

// BindProfits is optional; without it invoices carry no profit rows.
func (e *Engine) BindProfits(p ProfitRecorder) { e.profits = p }

// IssueResult reports what an issuance attempt produced.
type IssueResult struct {
	Invoice      *domain.Invoice `json:"invoice,omitempty"`
	AutoPayed    bool            `json:"auto_payed"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
}

func (e *Engine) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	return e.repo.FindByID(ctx, e.db, id)
}

func (e *Engine) List(ctx context.Context, filter domain.ListFilter, page pagination.Page) ([]*domain.Invoice, int64, error) {
	return e.repo.List(ctx, e.db, filter, page)
}

func (e *Engine) ListBase(ctx context.Context, filter domain.BaseListFilter, page pagination.Page) ([]*domain.BaseBalanceInvoice, int64, error) {
	return e.baseRepo.List(ctx, e.db, filter, page)
}

// IssuePeriodic bills the window since the previous invoice's to_date.
// The scheduler calls it once a month per billable subscription.
func (e *Engine) IssuePeriodic(ctx context.Context, sub *subdomain.Subscription) (*IssueResult, error) {
	if sub.SubscriptionType == subdomain.TypeUnlimited {
		return nil, subdomain.ErrUnlimited
	}
	now := e.clock.Now()
	result := &IssueResult{}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := e.repo.LatestForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if prev != nil && prev.PayCoolDown != nil && prev.PayCoolDown.After(now) {
			return ledger.ErrCoolDown
		}
		from := sub.CreatedAt
		if prev != nil {
			from = prev.ToDate.Add(time.Microsecond)
		}
		due := now.AddDate(0, 1, 0)
		inv, err := e.build(ctx, tx, sub, prev, from, now, domain.TypePeriodic, false, &due)
		if err != nil {
			return err
		}
		result.Invoice = inv
		return e.settle(ctx, tx, sub, inv, result)
	})
	if err != nil {
		return nil, err
	}
	e.notifyInvoice(ctx, sub, result, "periodic-invoice", "")
	return result, nil
}

// IssueInterim bills up to now, subject to the in-flight, recency, and
// cool-down guards. A bypass caller under a live cool-down gets the
// issuance deferred one millisecond past the fence.
func (e *Engine) IssueInterim(ctx context.Context, sub *subdomain.Subscription, cause domain.InterimCause, onDemand, bypass bool) (*IssueResult, error) {
	if sub.SubscriptionType == subdomain.TypeUnlimited {
		return nil, subdomain.ErrUnlimited
	}
	now := e.clock.Now()
	result := &IssueResult{}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := e.repo.LatestForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if prev != nil {
			if prev.PayCoolDown != nil && prev.PayCoolDown.After(now) {
				if !bypass {
					return ledger.ErrCoolDown
				}
				eta := prev.PayCoolDown.Add(time.Millisecond)
				if err := e.queue.EnqueueAt(ctx, TaskInterimInvoice, InterimTaskPayload{
					SubscriptionCode: sub.SubscriptionCode,
					Cause:            cause,
					OnDemand:         onDemand,
					Bypass:           bypass,
				}, eta); err != nil {
					return err
				}
				result.ScheduledFor = &eta
				return nil
			}
			if onDemand && prev.OnDemand && prev.InvoiceType == domain.TypeInterim && !prev.Status.Terminal() {
				return domain.ErrInterimInFlight
			}
			if now.Sub(prev.CreatedAt) < time.Duration(e.cfg.NewInvoiceHours)*time.Hour {
				return domain.ErrTooSoon
			}
		}
		from := sub.CreatedAt
		if prev != nil {
			from = prev.ToDate.Add(time.Microsecond)
		}
		inv, err := e.build(ctx, tx, sub, prev, from, now, domain.TypeInterim, onDemand, nil)
		if err != nil {
			return err
		}
		result.Invoice = inv
		return e.settle(ctx, tx, sub, inv, result)
	})
	if err != nil {
		return nil, err
	}
	if result.ScheduledFor != nil {
		return result, nil
	}
	event := "interim-invoice"
	if result.AutoPayed {
		event = "interim-invoice-auto-payed"
	}
	e.notifyInvoice(ctx, sub, result, event, cause)
	return result, nil
}

// build bins the window's CDRs into the five destination classes, runs
// the fee math, and persists the invoice. prev is the lane's locked
// latest row; a non-terminal prev is revoked here and its total becomes
// debt.
func (e *Engine) build(ctx context.Context, tx *gorm.DB, sub *subdomain.Subscription, prev *domain.Invoice, from, to time.Time, kind domain.InvoiceType, onDemand bool, due *time.Time) (*domain.Invoice, error) {
	sets, err := e.branches.PrefixSets(ctx, sub.BranchID)
	if err != nil {
		return nil, err
	}

	var postpaid, prepaid domain.ClassTotals
	seen := make(map[string]bool)
	perOperator := make(map[string]money.Amount)
	for _, class := range branchdomain.Classes {
		prefixes := sets[class]
		if len(prefixes) == 0 {
			continue
		}
		cdrs, err := e.usage.ListCDRs(ctx, rater.CDRFilter{
			Subjects:            []string{e.usage.SubjectFilter(sub.SubscriptionCode)},
			DestinationPrefixes: prefixes,
			SetupTimeStart:      &from,
			SetupTimeEnd:        &to,
		})
		if err != nil {
			return nil, err
		}
		for _, cdr := range cdrs {
			if seen[cdr.CGRID] {
				continue
			}
			seen[cdr.CGRID] = true
			usage := quantizeUsage(class, cdr.Usage)
			cost := money.FromFloat(cdr.Cost)
			if cdr.BalanceType() == string(rater.BalancePrepaid) {
				addClass(&prepaid, class, usage, cost)
			} else {
				addClass(&postpaid, class, usage, cost)
			}
			if op := cdr.ExtraFields["Operator"]; op != "" {
				perOperator[op] += cost
			}
		}
	}

	fee, err := e.fees.SubscriptionFee(ctx, sub, to)
	if err != nil {
		return nil, err
	}

	taxPercent := e.settings.TaxPercent(ctx)
	usageCost := postpaid.CostSum()
	tax := (usageCost + fee).CeilUnits().PercentCeil(taxPercent)

	allCost := usageCost + prepaid.CostSum()
	discount := allCost.PercentCeil(e.settings.DiscountPercent(ctx)) + e.settings.DiscountValue(ctx)

	var debt money.Amount
	if prev != nil {
		if prev.Status == ledger.StatusPaid {
			debt = prev.TotalCost - prev.TotalCostRounded()
		} else if !prev.Status.Terminal() {
			debt = prev.TotalCost
			prev.Status = ledger.StatusRevoked
			if err := e.repo.Save(ctx, tx, prev); err != nil {
				return nil, err
			}
		}
	}

	total := usageCost + tax + fee + debt
	if discount > total {
		discount = total
	}
	if discount < 0 {
		discount = 0
	}
	total -= discount
	if total < 0 {
		total = 0
	}

	now := e.clock.Now()
	inv := &domain.Invoice{
		ID:              e.genID.Generate(),
		TrackingCode:    uuid.NewString(),
		SubscriptionID:  sub.ID,
		Postpaid:        postpaid,
		Prepaid:         prepaid,
		SubscriptionFee: fee,
		TaxPercent:      taxPercent,
		TaxCost:         tax,
		Discount:        discount,
		Debt:            debt,
		TotalCost:       total,
		Status:          ledger.StatusUnpaid,
		InvoiceType:     kind,
		OnDemand:        onDemand,
		FromDate:        from,
		ToDate:          to,
		DueDate:         due,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.repo.Insert(ctx, tx, inv); err != nil {
		return nil, err
	}
	if e.profits != nil && len(perOperator) > 0 {
		if err := e.profits.RecordProfits(ctx, tx, inv.ID, sub.ID, perOperator); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// settle applies the zero-total and auto-pay rules inside the issuing
// transaction.
func (e *Engine) settle(ctx context.Context, tx *gorm.DB, sub *subdomain.Subscription, inv *domain.Invoice, result *IssueResult) error {
	if inv.TotalCost == 0 {
		inv.Status = ledger.StatusPaid
		if err := e.repo.Save(ctx, tx, inv); err != nil {
			return err
		}
		now := e.clock.Now()
		sub.LatestPaidAt = &now
		if err := e.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		result.AutoPayed = true
		result.Invoice = inv
		return nil
	}
	if !sub.AutoPay || e.autoPayer == nil {
		return nil
	}
	cust, err := e.customers.FindByID(ctx, tx, sub.CustomerID)
	if err != nil {
		return err
	}
	if cust.Credit < inv.TotalCostRounded() {
		return nil
	}
	if err := e.autoPayer.AutoSettleInvoice(ctx, tx, inv.ID); err != nil {
		return err
	}
	result.AutoPayed = true
	return nil
}

func (e *Engine) notifyInvoice(ctx context.Context, sub *subdomain.Subscription, result *IssueResult, event string, cause domain.InterimCause) {
	if result.Invoice == nil {
		return
	}
	cust, err := e.customers.FindByID(ctx, e.db, sub.CustomerID)
	if err != nil {
		e.log.Warn("customer lookup for notify failed", zap.Error(err))
		return
	}
	body := map[string]any{
		"customer_code":     cust.CustomerCode,
		"subscription_code": sub.SubscriptionCode,
		"number":            sub.Number,
		"tracking_code":     result.Invoice.TrackingCode,
		"total_cost":        result.Invoice.TotalCostRounded(),
		"auto_payed":        result.AutoPayed,
	}
	if cause != "" {
		body["cause"] = string(cause)
	}
	if err := e.notify.Notify(ctx, event, body); err != nil {
		e.log.Warn("trunk notify failed", zap.String("event", event), zap.Error(err))
	}
}

// VerifyAndRepair decides whether a threshold event is real. It
// disconnects overlong sessions, sums in-flight and un-invoiced cost
// since the last paid invoice, and if the base minus that sum is still
// above the threshold value it restores the balance and reports the
// event spurious. The second return is the balance the real usage
// leaves, clamped at zero.
func (e *Engine) VerifyAndRepair(ctx context.Context, sub *subdomain.Subscription, pct rater.ThresholdPercent) (bool, money.Amount, error) {
	kind := rater.BalancePostpaid
	if sub.SubscriptionType == subdomain.TypePrepaid {
		kind = rater.BalancePrepaid
	}

	sessions, err := e.usage.ActiveSessions(ctx, sub.SubscriptionCode)
	if err != nil {
		return false, 0, err
	}
	var inFlight float64
	for _, sess := range sessions {
		if time.Duration(sess.Usage) > e.cfg.MaxCallDuration {
			if err := e.usage.ForceDisconnect(ctx, sess.OriginID); err != nil {
				e.log.Warn("force disconnect failed", zap.String("origin_id", sess.OriginID), zap.Error(err))
			}
		}
		inFlight += sess.Cost
	}

	since := sub.CreatedAt
	if sub.LatestPaidAt != nil {
		since = *sub.LatestPaidAt
	}
	cdrs, err := e.usage.ListCDRs(ctx, rater.CDRFilter{
		Subjects:       []string{e.usage.SubjectFilter(sub.SubscriptionCode)},
		SetupTimeStart: &since,
	})
	if err != nil {
		return false, 0, err
	}
	seen := make(map[string]bool)
	for _, cdr := range cdrs {
		if seen[cdr.CGRID] || cdr.BalanceType() != string(kind) {
			continue
		}
		seen[cdr.CGRID] = true
		inFlight += cdr.Cost
	}

	branch, err := e.branches.GetByID(ctx, sub.BranchID)
	if err != nil {
		return false, 0, err
	}
	threshold := branch.MaxRate
	if pct == rater.ThresholdEighty {
		threshold = sub.BaseBalance.PercentCeil(20)
	}

	remaining := sub.BaseBalance.Float() - inFlight
	left := money.FromFloat(remaining)
	if left < 0 {
		left = 0
	}
	if remaining <= threshold.Float() {
		return false, left, nil
	}

	// Spurious: the balance drifted below what the real usage supports.
	current, err := e.usage.GetBalance(ctx, sub.SubscriptionCode, kind)
	if err != nil && !rater.IsNotFound(err) {
		return false, left, err
	}
	if delta := int64(remaining - current); delta > 0 {
		if err := e.usage.AddBalance(ctx, sub.SubscriptionCode, kind, delta); err != nil {
			return false, left, err
		}
	}
	suffix := "postpaid"
	if kind == rater.BalancePrepaid {
		suffix = "prepaid"
	}
	band := sub.BaseBalance.PercentCeil(20)
	if err := e.usage.SetThreshold(ctx, sub.SubscriptionCode, rater.ThresholdEighty, kind, band.FloorUnits(), "80-"+suffix); err != nil {
		return false, left, err
	}
	if err := e.usage.SetThreshold(ctx, sub.SubscriptionCode, rater.ThresholdHundred, kind, branch.MaxRate.FloorUnits(), "100-"+suffix); err != nil {
		return false, left, err
	}
	return true, left, nil
}

func quantizeUsage(class branchdomain.CallClass, usage int64) int64 {
	if usage <= 0 {
		return 0
	}
	step := int64(30 * time.Second)
	if class == branchdomain.ClassLocal {
		step = int64(time.Minute)
	}
	return (usage + step - 1) / step * step
}

func addClass(t *domain.ClassTotals, class branchdomain.CallClass, usage int64, cost money.Amount) {
	switch class {
	case branchdomain.ClassLocal:
		t.LocalUsage += usage
		t.LocalCost += cost
	case branchdomain.ClassLongDistance:
		t.LongDistanceUsage += usage
		t.LongDistanceCost += cost
	case branchdomain.ClassCorporate:
		t.CorporateUsage += usage
		t.CorporateCost += cost
	case branchdomain.ClassMobile:
		t.MobileUsage += usage
		t.MobileCost += cost
	case branchdomain.ClassInternational:
		t.InternationalUsage += usage
		t.InternationalCost += cost
	}
}
