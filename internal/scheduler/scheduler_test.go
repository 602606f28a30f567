package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/trunkgate/internal/apilog"
	branchdomain "github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/internal/config"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	customerrepo "github.com/smallbiznis/trunkgate/internal/customer/repository"
	invdomain "github.com/smallbiznis/trunkgate/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/trunkgate/internal/invoice/repository"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	packdomain "github.com/smallbiznis/trunkgate/internal/pack/domain"
	"github.com/smallbiznis/trunkgate/internal/rater"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	subrepo "github.com/smallbiznis/trunkgate/internal/subscription/repository"
	"github.com/smallbiznis/trunkgate/internal/taskqueue"
	"github.com/smallbiznis/trunkgate/internal/trunk"
	trunkdomain "github.com/smallbiznis/trunkgate/internal/trunk/domain"
	trunkrepo "github.com/smallbiznis/trunkgate/internal/trunk/repository"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type usageStub struct{}

func (usageStub) ListCDRs(ctx context.Context, f rater.CDRFilter) ([]rater.CDR, error) {
	return nil, nil
}
func (usageStub) SubjectFilter(code string) string { return "AN_" + code }
func (usageStub) ActiveSessions(ctx context.Context, code string) ([]rater.Session, error) {
	return nil, nil
}
func (usageStub) ForceDisconnect(ctx context.Context, originID string) error { return nil }
func (usageStub) GetBalance(ctx context.Context, code string, kind rater.BalanceKind) (float64, error) {
	return 0, nil
}
func (usageStub) AddBalance(ctx context.Context, code string, kind rater.BalanceKind, units int64) error {
	return nil
}
func (usageStub) SetThreshold(ctx context.Context, code string, pct rater.ThresholdPercent, kind rater.BalanceKind, valueUnits int64, notifyEvent string) error {
	return nil
}

type feeStub struct{}

func (feeStub) SubscriptionFee(ctx context.Context, sub *subdomain.Subscription, to time.Time) (money.Amount, error) {
	return 0, nil
}

type taxStub struct{}

func (taxStub) TaxPercent(ctx context.Context) int64           { return 0 }
func (taxStub) DiscountPercent(ctx context.Context) int64      { return 0 }
func (taxStub) DiscountValue(ctx context.Context) money.Amount { return 0 }

type prefixStub struct{ branch *branchdomain.Branch }

func (p prefixStub) GetByID(ctx context.Context, id snowflake.ID) (*branchdomain.Branch, error) {
	return p.branch, nil
}
func (p prefixStub) PrefixSets(ctx context.Context, id snowflake.ID) (map[branchdomain.CallClass][]string, error) {
	return nil, nil
}

type noDelay struct{}

func (noDelay) EnqueueAt(ctx context.Context, kind string, payload any, eta time.Time) error {
	return nil
}

type schedFixture struct {
	db     *gorm.DB
	rdb    *goredis.Client
	sched  *Scheduler
	clock  *fixedClock
	node   *snowflake.Node
	cust   *customerdomain.Customer
	branch *branchdomain.Branch
	events *[]string
}

func newSchedFixture(t *testing.T) *schedFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&subdomain.Subscription{},
		&invdomain.Invoice{},
		&invdomain.BaseBalanceInvoice{},
		&packdomain.Package{},
		&packdomain.PackageInvoice{},
		&trunkdomain.FailedJob{},
		&apilog.APILog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &fixedClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
	log := zap.NewNop()
	cfg := config.Config{NewInvoiceHours: 24, APILogRetention: 30}

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	queue := taskqueue.NewQueue(rdb, log)

	events := &[]string{}
	trunkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*events = append(*events, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(trunkSrv.Close)

	notifier := trunk.New(trunk.Params{
		Config: config.Config{TrunkURL: trunkSrv.URL, TrunkToken: "token"},
		DB:     db,
		Log:    log,
		GenID:  node,
		Jobs:   trunkrepo.Provide(),
	})

	branch := &branchdomain.Branch{
		ID:         node.Generate(),
		BranchCode: "thr",
		MinRate:    money.FromUnits(1),
		MaxRate:    money.FromUnits(10),
	}

	engine := invservice.New(invservice.Params{
		Config:    cfg,
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      invoicerepo.Provide(),
		BaseRepo:  invoicerepo.ProvideBase(),
		Customers: customerrepo.Provide(),
		Subs:      subrepo.Provide(),
		Branches:  prefixStub{branch: branch},
		Settings:  taxStub{},
		Fees:      feeStub{},
		Usage:     usageStub{},
		Queue:     noDelay{},
		Notify:    notifier,
	})

	logs := apilog.New(apilog.Params{
		Config: cfg,
		LogDB:  &apilog.LogDB{DB: db},
		Log:    log,
		GenID:  node,
		Clock:  clk,
	})

	sched := New(Params{
		DB:        db,
		Log:       log,
		Clock:     clk,
		Redis:     rdb,
		Subs:      subrepo.Provide(),
		Customers: customerrepo.Provide(),
		Invoices:  invoicerepo.Provide(),
		Engine:    engine,
		Notifier:  notifier,
		APILogs:   logs,
		Queue:     queue,
	})

	cust := &customerdomain.Customer{
		ID:           node.Generate(),
		CustomerCode: "cust-1",
		CreatedAt:    clk.now.AddDate(0, -3, 0),
		UpdatedAt:    clk.now.AddDate(0, -3, 0),
	}
	require.NoError(t, db.Create(cust).Error)

	return &schedFixture{
		db:     db,
		rdb:    rdb,
		sched:  sched,
		clock:  clk,
		node:   node,
		cust:   cust,
		branch: branch,
		events: events,
	}
}

func (f *schedFixture) seedSub(t *testing.T, code string, createdAt time.Time) *subdomain.Subscription {
	t.Helper()
	sub := &subdomain.Subscription{
		ID:               f.node.Generate(),
		SubscriptionCode: code,
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           "+98912000" + code[len(code)-4:],
		SubscriptionType: subdomain.TypePostpaid,
		BaseBalance:      money.FromUnits(500),
		IsAllocated:      true,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

func (f *schedFixture) invoiceCount(t *testing.T, subID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&invdomain.Invoice{}).
		Where("subscription_id = ?", subID).Count(&count).Error)
	return count
}

func TestPeriodicInvoicesJobMonthlyGate(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	ripe := f.seedSub(t, "sub-0001", f.clock.now.AddDate(0, -2, 0))
	fresh := f.seedSub(t, "sub-0002", f.clock.now.AddDate(0, 0, -10))

	require.NoError(t, f.sched.PeriodicInvoicesJob(ctx))
	assert.Equal(t, int64(1), f.invoiceCount(t, ripe.ID))
	assert.Equal(t, int64(0), f.invoiceCount(t, fresh.ID))

	// The window just closed; running again issues nothing new.
	require.NoError(t, f.sched.PeriodicInvoicesJob(ctx))
	assert.Equal(t, int64(1), f.invoiceCount(t, ripe.ID))

	// A month later the next window is ripe.
	f.clock.now = f.clock.now.AddDate(0, 1, 0)
	require.NoError(t, f.sched.PeriodicInvoicesJob(ctx))
	assert.Equal(t, int64(2), f.invoiceCount(t, ripe.ID))
}

func TestDueDateSweepNotifiesOnce(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()
	sub := f.seedSub(t, "sub-0001", f.clock.now.AddDate(0, -2, 0))

	due := f.clock.now.AddDate(0, 0, -3)
	inv := &invdomain.Invoice{
		ID:             f.node.Generate(),
		TrackingCode:   uuid.NewString(),
		SubscriptionID: sub.ID,
		TotalCost:      money.FromUnits(300),
		Status:         ledger.StatusUnpaid,
		InvoiceType:    invdomain.TypePeriodic,
		FromDate:       f.clock.now.AddDate(0, -2, 0),
		ToDate:         f.clock.now.AddDate(0, -1, 0),
		DueDate:        &due,
		CreatedAt:      f.clock.now.AddDate(0, -1, 0),
		UpdatedAt:      f.clock.now.AddDate(0, -1, 0),
	}
	require.NoError(t, f.db.Create(inv).Error)

	require.NoError(t, f.sched.DueDateSweepJob(ctx))
	assert.Equal(t, []string{"/api/billing/due-date"}, *f.events)

	var fresh invdomain.Invoice
	require.NoError(t, f.db.First(&fresh, "id = ?", inv.ID).Error)
	require.NotNil(t, fresh.DueNotifiedAt)

	// Already notified: the next sweep skips it.
	require.NoError(t, f.sched.DueDateSweepJob(ctx))
	assert.Len(t, *f.events, 1)
}

func TestDueDateSweepSkipsPaidAndFutureInvoices(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()
	sub := f.seedSub(t, "sub-0001", f.clock.now.AddDate(0, -2, 0))

	past := f.clock.now.AddDate(0, 0, -3)
	future := f.clock.now.AddDate(0, 0, 3)
	seed := func(status ledger.Status, due *time.Time) {
		require.NoError(t, f.db.Create(&invdomain.Invoice{
			ID:             f.node.Generate(),
			TrackingCode:   uuid.NewString(),
			SubscriptionID: sub.ID,
			Status:         status,
			InvoiceType:    invdomain.TypePeriodic,
			FromDate:       f.clock.now.AddDate(0, -2, 0),
			ToDate:         f.clock.now.AddDate(0, -1, 0),
			DueDate:        due,
			CreatedAt:      f.clock.now.AddDate(0, -1, 0),
			UpdatedAt:      f.clock.now.AddDate(0, -1, 0),
		}).Error)
	}
	seed(ledger.StatusPaid, &past)
	seed(ledger.StatusUnpaid, &future)
	seed(ledger.StatusUnpaid, nil)

	require.NoError(t, f.sched.DueDateSweepJob(ctx))
	assert.Empty(t, *f.events)
}

func TestPackageExpirySweepEnqueuesEvents(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()
	sub := f.seedSub(t, "sub-0001", f.clock.now.AddDate(0, -2, 0))

	expired := f.clock.now.Add(-time.Hour)
	require.NoError(t, f.db.Create(&packdomain.PackageInvoice{
		ID:             f.node.Generate(),
		TrackingCode:   uuid.NewString(),
		SubscriptionID: sub.ID,
		PackageID:      f.node.Generate(),
		TotalValue:     money.FromUnits(200),
		TotalCost:      money.FromUnits(100),
		Status:         ledger.StatusPaid,
		ExpiredAt:      &expired,
		IsActive:       true,
		CreatedAt:      f.clock.now.AddDate(0, -1, 0),
		UpdatedAt:      f.clock.now.AddDate(0, -1, 0),
	}).Error)

	require.NoError(t, f.sched.PackageExpirySweepJob(ctx))

	ready, err := f.rdb.LLen(ctx, "tq:ready").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ready)
}

func TestReplayFailedJobsJobDrainsQueue(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&trunkdomain.FailedJob{
		ID:        f.node.Generate(),
		Service:   "trunk",
		Version:   "v1",
		Class:     "notifier",
		Method:    trunk.EventDueDate,
		Arguments: []byte(`{"tracking_code":"t-1"}`),
		LastError: "connection refused",
		CreatedAt: f.clock.now.Add(-time.Hour),
		UpdatedAt: f.clock.now.Add(-time.Hour),
	}).Error)

	require.NoError(t, f.sched.ReplayFailedJobsJob(ctx))
	assert.Equal(t, []string{"/api/billing/due-date"}, *f.events)

	var count int64
	require.NoError(t, f.db.Model(&trunkdomain.FailedJob{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPurgeAPILogsJobHonorsRetention(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	old := &apilog.APILog{
		ID:        f.node.Generate(),
		Method:    "GET",
		Path:      "/api/invoices",
		Status:    200,
		CreatedAt: f.clock.now.AddDate(0, 0, -40),
	}
	recent := &apilog.APILog{
		ID:        f.node.Generate(),
		Method:    "GET",
		Path:      "/api/invoices",
		Status:    200,
		CreatedAt: f.clock.now.AddDate(0, 0, -5),
	}
	require.NoError(t, f.db.Create(old).Error)
	require.NoError(t, f.db.Create(recent).Error)

	require.NoError(t, f.sched.PurgeAPILogsJob(ctx))

	var remaining []apilog.APILog
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent.ID, remaining[0].ID)
}

func TestRunOnceSkipsHeldLocks(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()
	ripe := f.seedSub(t, "sub-0001", f.clock.now.AddDate(0, -2, 0))

	// Another instance holds the periodic lock.
	require.NoError(t, f.rdb.Set(ctx, "trunkgate:scheduler:periodic_invoices", "other", time.Minute).Err())
	f.sched.cfg.EnabledJobs = []string{"periodic_invoices"}

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, int64(0), f.invoiceCount(t, ripe.ID))

	require.NoError(t, f.rdb.Del(ctx, "trunkgate:scheduler:periodic_invoices").Err())
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, int64(1), f.invoiceCount(t, ripe.ID))
}
