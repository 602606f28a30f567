package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	branchdomain "github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/internal/config"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	customerrepo "github.com/smallbiznis/trunkgate/internal/customer/repository"
	"github.com/smallbiznis/trunkgate/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/trunkgate/internal/invoice/repository"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/internal/rater"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	subrepo "github.com/smallbiznis/trunkgate/internal/subscription/repository"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type fakeUsage struct {
	cdrs     []rater.CDR
	sessions []rater.Session
	balances map[rater.BalanceKind]float64

	added        map[rater.BalanceKind]int64
	disconnected []string
	thresholds   int
}

func (f *fakeUsage) ListCDRs(ctx context.Context, filter rater.CDRFilter) ([]rater.CDR, error) {
	var out []rater.CDR
	for _, cdr := range f.cdrs {
		if filter.SetupTimeStart != nil && cdr.SetupTime.Before(*filter.SetupTimeStart) {
			continue
		}
		if filter.SetupTimeEnd != nil && cdr.SetupTime.After(*filter.SetupTimeEnd) {
			continue
		}
		if len(filter.DestinationPrefixes) > 0 && !hasPrefix(cdr.Destination, filter.DestinationPrefixes) {
			continue
		}
		out = append(out, cdr)
	}
	return out, nil
}

func hasPrefix(dest string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(dest) >= len(p) && dest[:len(p)] == p {
			return true
		}
	}
	return false
}

func (f *fakeUsage) SubjectFilter(code string) string { return "AN_" + code }

func (f *fakeUsage) ActiveSessions(ctx context.Context, code string) ([]rater.Session, error) {
	return f.sessions, nil
}

func (f *fakeUsage) ForceDisconnect(ctx context.Context, originID string) error {
	f.disconnected = append(f.disconnected, originID)
	return nil
}

func (f *fakeUsage) GetBalance(ctx context.Context, code string, kind rater.BalanceKind) (float64, error) {
	return f.balances[kind], nil
}

func (f *fakeUsage) AddBalance(ctx context.Context, code string, kind rater.BalanceKind, units int64) error {
	if f.added == nil {
		f.added = make(map[rater.BalanceKind]int64)
	}
	f.added[kind] += units
	return nil
}

func (f *fakeUsage) SetThreshold(ctx context.Context, code string, pct rater.ThresholdPercent, kind rater.BalanceKind, valueUnits int64, notifyEvent string) error {
	f.thresholds++
	return nil
}

type fakeFees struct{ fee money.Amount }

func (f fakeFees) SubscriptionFee(ctx context.Context, sub *subdomain.Subscription, to time.Time) (money.Amount, error) {
	return f.fee, nil
}

type fakeSettings struct {
	tax           int64
	discountPct   int64
	discountValue money.Amount
}

func (f fakeSettings) TaxPercent(ctx context.Context) int64           { return f.tax }
func (f fakeSettings) DiscountPercent(ctx context.Context) int64      { return f.discountPct }
func (f fakeSettings) DiscountValue(ctx context.Context) money.Amount { return f.discountValue }

type fakeBranches struct{ branch *branchdomain.Branch }

func (f fakeBranches) GetByID(ctx context.Context, id snowflake.ID) (*branchdomain.Branch, error) {
	return f.branch, nil
}

func (f fakeBranches) PrefixSets(ctx context.Context, id snowflake.ID) (map[branchdomain.CallClass][]string, error) {
	return map[branchdomain.CallClass][]string{
		branchdomain.ClassLocal:        {"021"},
		branchdomain.ClassLongDistance: {"026"},
	}, nil
}

type fakeDelayer struct {
	kinds []string
	etas  []time.Time
}

func (f *fakeDelayer) EnqueueAt(ctx context.Context, kind string, payload any, eta time.Time) error {
	f.kinds = append(f.kinds, kind)
	f.etas = append(f.etas, eta)
	return nil
}

type fakeNotifier struct{ events []string }

func (f *fakeNotifier) Notify(ctx context.Context, event string, body map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

type fakeAutoPayer struct{ settled []snowflake.ID }

func (f *fakeAutoPayer) AutoSettleInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) error {
	f.settled = append(f.settled, invoiceID)
	return nil
}

type engineFixture struct {
	db       *gorm.DB
	engine   *Engine
	usage    *fakeUsage
	delayer  *fakeDelayer
	notifier *fakeNotifier
	clock    *fixedClock
	node     *snowflake.Node
	sub      *subdomain.Subscription
	cust     *customerdomain.Customer
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&subdomain.Subscription{},
		&domain.Invoice{},
		&domain.BaseBalanceInvoice{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	clk := &fixedClock{now: now}

	cust := &customerdomain.Customer{
		ID:           node.Generate(),
		CustomerCode: "cust-1",
		Credit:       0,
		CreatedAt:    now.AddDate(0, -2, 0),
		UpdatedAt:    now.AddDate(0, -2, 0),
	}
	require.NoError(t, db.Create(cust).Error)

	sub := &subdomain.Subscription{
		ID:               node.Generate(),
		SubscriptionCode: "sub-1",
		CustomerID:       cust.ID,
		BranchID:         node.Generate(),
		Number:           "+982112345678",
		SubscriptionType: subdomain.TypePostpaid,
		BaseBalance:      money.FromUnits(500),
		IsAllocated:      true,
		CreatedAt:        now.AddDate(0, -1, 0),
		UpdatedAt:        now.AddDate(0, -1, 0),
	}
	require.NoError(t, db.Create(sub).Error)

	usage := &fakeUsage{balances: map[rater.BalanceKind]float64{}}
	delayer := &fakeDelayer{}
	notifier := &fakeNotifier{}

	engine := New(Params{
		Config: config.Config{
			NewInvoiceHours: 24,
			MaxCallDuration: 2 * time.Hour,
		},
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      invoicerepo.Provide(),
		BaseRepo:  invoicerepo.ProvideBase(),
		Customers: customerrepo.Provide(),
		Subs:      subrepo.Provide(),
		Branches: fakeBranches{branch: &branchdomain.Branch{
			ID:      sub.BranchID,
			MinRate: money.FromUnits(1),
			MaxRate: money.FromUnits(10),
		}},
		Settings: fakeSettings{tax: 10},
		Fees:     fakeFees{},
		Usage:    usage,
		Queue:    delayer,
		Notify:   notifier,
	})

	return &engineFixture{
		db:       db,
		engine:   engine,
		usage:    usage,
		delayer:  delayer,
		notifier: notifier,
		clock:    clk,
		node:     node,
		sub:      sub,
		cust:     cust,
	}
}

func postpaidCDR(id, dest string, cost float64, at time.Time) rater.CDR {
	return rater.CDR{
		CGRID:       id,
		Destination: dest,
		SetupTime:   at,
		Usage:       int64(90 * time.Second),
		Cost:        cost,
		ExtraFields: map[string]string{"BalanceType": "balance_postpaid"},
	}
}

func TestIssuePeriodicMath(t *testing.T) {
	f := newEngineFixture(t)
	at := f.clock.now.AddDate(0, 0, -10)
	f.usage.cdrs = []rater.CDR{
		postpaidCDR("cgr-1", "02122334455", 200, at),
		postpaidCDR("cgr-2", "02633445566", 100, at),
	}

	result, err := f.engine.IssuePeriodic(context.Background(), f.sub)
	require.NoError(t, err)
	require.NotNil(t, result.Invoice)

	inv := result.Invoice
	// 300 units of usage, 10% tax on the ceil'd usage+fee.
	assert.Equal(t, money.FromUnits(300), inv.UsageCost())
	assert.Equal(t, money.FromUnits(30), inv.TaxCost)
	assert.Equal(t, money.FromUnits(330), inv.TotalCost)
	assert.Equal(t, ledger.StatusUnpaid, inv.Status)
	assert.Equal(t, domain.TypePeriodic, inv.InvoiceType)
	assert.Equal(t, f.sub.CreatedAt.UTC(), inv.FromDate.UTC())
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, f.clock.now.AddDate(0, 1, 0), inv.DueDate.UTC())
	assert.False(t, result.AutoPayed)
	assert.Equal(t, []string{"periodic-invoice"}, f.notifier.events)

	// Local usage rounds up to whole minutes, long distance to 30s.
	assert.Equal(t, int64(2*time.Minute), inv.Postpaid.LocalUsage)
	assert.Equal(t, int64(90*time.Second), inv.Postpaid.LongDistanceUsage)
}

func TestIssuePeriodicDedupesCGRIDs(t *testing.T) {
	f := newEngineFixture(t)
	at := f.clock.now.AddDate(0, 0, -5)
	// Same CGRID returned by two class queries must count once.
	f.usage.cdrs = []rater.CDR{
		postpaidCDR("cgr-dup", "02122334455", 150, at),
		postpaidCDR("cgr-dup", "02122334455", 150, at),
	}

	result, err := f.engine.IssuePeriodic(context.Background(), f.sub)
	require.NoError(t, err)
	assert.Equal(t, money.FromUnits(150), result.Invoice.UsageCost())
}

func TestIssuePeriodicZeroTotalIsPaid(t *testing.T) {
	f := newEngineFixture(t)

	result, err := f.engine.IssuePeriodic(context.Background(), f.sub)
	require.NoError(t, err)
	assert.True(t, result.AutoPayed)
	assert.Equal(t, ledger.StatusPaid, result.Invoice.Status)

	var sub subdomain.Subscription
	require.NoError(t, f.db.First(&sub, "id = ?", f.sub.ID).Error)
	require.NotNil(t, sub.LatestPaidAt)
}

func TestIssuePeriodicAutoPayFromCredit(t *testing.T) {
	f := newEngineFixture(t)
	payer := &fakeAutoPayer{}
	f.engine.BindAutoPayer(payer)

	f.sub.AutoPay = true
	require.NoError(t, f.db.Save(f.sub).Error)
	f.cust.Credit = money.FromUnits(1000)
	require.NoError(t, f.db.Save(f.cust).Error)

	at := f.clock.now.AddDate(0, 0, -3)
	f.usage.cdrs = []rater.CDR{postpaidCDR("cgr-1", "02122334455", 300, at)}

	result, err := f.engine.IssuePeriodic(context.Background(), f.sub)
	require.NoError(t, err)
	assert.True(t, result.AutoPayed)
	require.Len(t, payer.settled, 1)
	assert.Equal(t, result.Invoice.ID, payer.settled[0])
}

func TestIssuePeriodicSkipsAutoPayOnShortCredit(t *testing.T) {
	f := newEngineFixture(t)
	payer := &fakeAutoPayer{}
	f.engine.BindAutoPayer(payer)

	f.sub.AutoPay = true
	require.NoError(t, f.db.Save(f.sub).Error)
	f.cust.Credit = money.FromUnits(100)
	require.NoError(t, f.db.Save(f.cust).Error)

	at := f.clock.now.AddDate(0, 0, -3)
	f.usage.cdrs = []rater.CDR{postpaidCDR("cgr-1", "02122334455", 300, at)}

	result, err := f.engine.IssuePeriodic(context.Background(), f.sub)
	require.NoError(t, err)
	assert.False(t, result.AutoPayed)
	assert.Empty(t, payer.settled)
}

func TestIssueInterimRevokesPreviousAndCarriesDebt(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	at := f.clock.now.AddDate(0, 0, -20)
	f.usage.cdrs = []rater.CDR{postpaidCDR("cgr-1", "02122334455", 200, at)}
	first, err := f.engine.IssuePeriodic(ctx, f.sub)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusUnpaid, first.Invoice.Status)

	// Two days later a second issuance revokes the unpaid row.
	f.clock.now = f.clock.now.AddDate(0, 0, 2)
	f.usage.cdrs = append(f.usage.cdrs, postpaidCDR("cgr-2", "02122334455", 100, f.clock.now.Add(-time.Hour)))

	second, err := f.engine.IssueInterim(ctx, f.sub, domain.CauseUserRequest, true, false)
	require.NoError(t, err)

	var prev domain.Invoice
	require.NoError(t, f.db.First(&prev, "id = ?", first.Invoice.ID).Error)
	assert.Equal(t, ledger.StatusRevoked, prev.Status)

	inv := second.Invoice
	assert.Equal(t, first.Invoice.TotalCost, inv.Debt)
	// New window only sees the second CDR.
	assert.Equal(t, money.FromUnits(100), inv.UsageCost())
	assert.Equal(t, first.Invoice.ToDate.Add(time.Microsecond).UTC(), inv.FromDate.UTC())
}

func TestIssueInterimTooSoon(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.IssuePeriodic(ctx, f.sub)
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(2 * time.Hour)
	_, err = f.engine.IssueInterim(ctx, f.sub, domain.CauseUserRequest, true, false)
	assert.ErrorIs(t, err, domain.ErrTooSoon)
}

func TestIssueInterimInFlightGuard(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	at := f.clock.now.AddDate(0, 0, -10)
	f.usage.cdrs = []rater.CDR{postpaidCDR("cgr-1", "02122334455", 200, at)}
	_, err := f.engine.IssueInterim(ctx, f.sub, domain.CauseUserRequest, true, false)
	require.NoError(t, err)

	f.clock.now = f.clock.now.AddDate(0, 0, 3)
	_, err = f.engine.IssueInterim(ctx, f.sub, domain.CauseUserRequest, true, false)
	assert.ErrorIs(t, err, domain.ErrInterimInFlight)
}

func TestIssueInterimCoolDownDefersWithBypass(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	at := f.clock.now.AddDate(0, 0, -10)
	f.usage.cdrs = []rater.CDR{postpaidCDR("cgr-1", "02122334455", 200, at)}
	first, err := f.engine.IssuePeriodic(ctx, f.sub)
	require.NoError(t, err)

	coolDown := f.clock.now.Add(30 * time.Minute)
	require.NoError(t, f.db.Model(&domain.Invoice{}).
		Where("id = ?", first.Invoice.ID).
		Update("pay_cool_down", coolDown).Error)

	// Without bypass the fence rejects.
	_, err = f.engine.IssueInterim(ctx, f.sub, domain.CauseMaxUsage, false, false)
	assert.ErrorIs(t, err, ledger.ErrCoolDown)

	// With bypass the issuance is deferred one millisecond past the fence.
	result, err := f.engine.IssueInterim(ctx, f.sub, domain.CauseMaxUsage, false, true)
	require.NoError(t, err)
	assert.Nil(t, result.Invoice)
	require.NotNil(t, result.ScheduledFor)
	assert.Equal(t, coolDown.Add(time.Millisecond).UTC(), result.ScheduledFor.UTC())
	require.Len(t, f.delayer.kinds, 1)
	assert.Equal(t, TaskInterimInvoice, f.delayer.kinds[0])
}

func TestIssuePeriodicPaidResidualDebt(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	at := f.clock.now.AddDate(0, 0, -10)
	// 200.40 units of usage, 10% tax on ceil(200.40)=201 -> 20.10 tax.
	f.usage.cdrs = []rater.CDR{postpaidCDR("cgr-1", "02122334455", 200.40, at)}
	first, err := f.engine.IssuePeriodic(ctx, f.sub)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&domain.Invoice{}).
		Where("id = ?", first.Invoice.ID).
		Update("status", ledger.StatusPaid).Error)

	f.clock.now = f.clock.now.AddDate(0, 1, 0)
	second, err := f.engine.IssuePeriodic(ctx, f.sub)
	require.NoError(t, err)

	// The customer paid the rounded-up total; the residual comes back.
	wantDebt := first.Invoice.TotalCost - first.Invoice.TotalCostRounded()
	assert.Equal(t, wantDebt, second.Invoice.Debt)
	assert.True(t, wantDebt < 0)
}

func TestUnlimitedNeverInvoiced(t *testing.T) {
	f := newEngineFixture(t)
	f.sub.SubscriptionType = subdomain.TypeUnlimited

	_, err := f.engine.IssuePeriodic(context.Background(), f.sub)
	assert.ErrorIs(t, err, subdomain.ErrUnlimited)
	_, err = f.engine.IssueInterim(context.Background(), f.sub, domain.CauseUserRequest, true, false)
	assert.ErrorIs(t, err, subdomain.ErrUnlimited)
}

func TestVerifyAndRepairSpurious(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// No usage at all: remaining equals the full base, far above the
	// 80% threshold value, so the event is spurious and the balance is
	// restored.
	f.usage.balances[rater.BalancePostpaid] = 120

	spurious, remaining, err := f.engine.VerifyAndRepair(ctx, f.sub, rater.ThresholdEighty)
	require.NoError(t, err)
	assert.True(t, spurious)
	assert.Equal(t, money.FromUnits(500), remaining)
	assert.Equal(t, int64(500-120), f.usage.added[rater.BalancePostpaid])
	assert.Equal(t, 2, f.usage.thresholds)
}

func TestVerifyAndRepairReal(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// 450 units already consumed leaves 50, inside the 20% band.
	f.usage.cdrs = []rater.CDR{postpaidCDR("cgr-1", "02122334455", 450, f.clock.now.Add(-time.Hour))}

	spurious, remaining, err := f.engine.VerifyAndRepair(ctx, f.sub, rater.ThresholdEighty)
	require.NoError(t, err)
	assert.False(t, spurious)
	assert.Equal(t, money.FromUnits(50), remaining)
	assert.Empty(t, f.usage.added)
}

func TestVerifyAndRepairDisconnectsOverlongSessions(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.usage.sessions = []rater.Session{
		{OriginID: "call-1", Usage: int64(3 * time.Hour), Cost: 480},
		{OriginID: "call-2", Usage: int64(10 * time.Minute), Cost: 5},
	}

	spurious, remaining, err := f.engine.VerifyAndRepair(ctx, f.sub, rater.ThresholdEighty)
	require.NoError(t, err)
	assert.False(t, spurious)
	assert.Equal(t, money.FromUnits(15), remaining)
	assert.Equal(t, []string{"call-1"}, f.usage.disconnected)
}
