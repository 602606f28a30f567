package reactor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	branchdomain "github.com/smallbiznis/trunkgate/internal/branch/domain"
	branchrepo "github.com/smallbiznis/trunkgate/internal/branch/repository"
	branchservice "github.com/smallbiznis/trunkgate/internal/branch/service"
	"github.com/smallbiznis/trunkgate/internal/cache"
	"github.com/smallbiznis/trunkgate/internal/config"
	creditdomain "github.com/smallbiznis/trunkgate/internal/credit/domain"
	creditrepo "github.com/smallbiznis/trunkgate/internal/credit/repository"
	creditservice "github.com/smallbiznis/trunkgate/internal/credit/service"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	customerrepo "github.com/smallbiznis/trunkgate/internal/customer/repository"
	invdomain "github.com/smallbiznis/trunkgate/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/trunkgate/internal/invoice/repository"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	packdomain "github.com/smallbiznis/trunkgate/internal/pack/domain"
	packrepo "github.com/smallbiznis/trunkgate/internal/pack/repository"
	packservice "github.com/smallbiznis/trunkgate/internal/pack/service"
	"github.com/smallbiznis/trunkgate/internal/rater"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	subrepo "github.com/smallbiznis/trunkgate/internal/subscription/repository"
	subservice "github.com/smallbiznis/trunkgate/internal/subscription/service"
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

// raterStub stands in for the whole Rater client: the coordinator's
// provisioning surface, the engine's usage source, and the branch
// service's destination broadcaster.
type raterStub struct {
	cdrs         []rater.CDR
	sessions     []rater.Session
	balances     map[string]float64
	added        map[string]int64
	debited      map[string]int64
	disconnected []string
	thresholds   int
}

func newRaterStub() *raterStub {
	return &raterStub{
		balances: make(map[string]float64),
		added:    make(map[string]int64),
		debited:  make(map[string]int64),
	}
}

func balKey(code string, kind rater.BalanceKind) string { return code + "/" + string(kind) }

func (r *raterStub) AccountAvailable(ctx context.Context, code string) (bool, error) {
	return true, nil
}
func (r *raterStub) SetAccount(ctx context.Context, code string, disabled bool) error { return nil }
func (r *raterStub) SetBalance(ctx context.Context, code string, kind rater.BalanceKind, units int64, disabled bool) error {
	r.balances[balKey(code, kind)] = float64(units)
	return nil
}
func (r *raterStub) AddBalance(ctx context.Context, code string, kind rater.BalanceKind, units int64) error {
	r.added[balKey(code, kind)] += units
	return nil
}
func (r *raterStub) DebitBalance(ctx context.Context, code string, kind rater.BalanceKind, units int64) error {
	r.debited[balKey(code, kind)] += units
	return nil
}
func (r *raterStub) GetBalance(ctx context.Context, code string, kind rater.BalanceKind) (float64, error) {
	return r.balances[balKey(code, kind)], nil
}
func (r *raterStub) SetTopupResetAction(ctx context.Context, code string, kind rater.BalanceKind, baseUnits int64) error {
	return nil
}
func (r *raterStub) SetActionPlanExpiry(ctx context.Context, code, timeLiteral string) error {
	return nil
}
func (r *raterStub) RemoveActionPlan(ctx context.Context, code string) error { return nil }
func (r *raterStub) SetThreshold(ctx context.Context, code string, pct rater.ThresholdPercent, kind rater.BalanceKind, valueUnits int64, notifyEvent string) error {
	r.thresholds++
	return nil
}
func (r *raterStub) RemoveThreshold(ctx context.Context, code string, pct rater.ThresholdPercent, kind rater.BalanceKind) error {
	return nil
}
func (r *raterStub) SetAttributeProfile(ctx context.Context, code string, classification map[string]string, emergency []string) error {
	return nil
}
func (r *raterStub) SetInboundAttributeProfile(ctx context.Context, code string, attrs map[string]string) error {
	return nil
}
func (r *raterStub) RemoveAttributeProfile(ctx context.Context, code string) error { return nil }
func (r *raterStub) SetRatingProfile(ctx context.Context, code, branchCode string) error {
	return nil
}

func (r *raterStub) ListCDRs(ctx context.Context, f rater.CDRFilter) ([]rater.CDR, error) {
	var out []rater.CDR
	for _, c := range r.cdrs {
		if f.SetupTimeStart != nil && c.SetupTime.Before(*f.SetupTimeStart) {
			continue
		}
		if f.SetupTimeEnd != nil && c.SetupTime.After(*f.SetupTimeEnd) {
			continue
		}
		if len(f.Subjects) > 0 && !containsStr(f.Subjects, c.Subject) {
			continue
		}
		if len(f.DestinationPrefixes) > 0 && !hasAnyPrefix(c.Destination, f.DestinationPrefixes) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
func (r *raterStub) SubjectFilter(code string) string { return "AN_" + code }
func (r *raterStub) ActiveSessions(ctx context.Context, code string) ([]rater.Session, error) {
	return r.sessions, nil
}
func (r *raterStub) ForceDisconnect(ctx context.Context, originID string) error {
	r.disconnected = append(r.disconnected, originID)
	return nil
}

func (r *raterStub) SetDestination(ctx context.Context, name string, prefixes []string) error {
	return nil
}
func (r *raterStub) RemoveDestination(ctx context.Context, name string) error { return nil }
func (r *raterStub) ReloadTariffPlan(ctx context.Context, tpid string) error  { return nil }

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	trimmed := strings.TrimPrefix(s, "+")
	for _, p := range prefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

type stubFees struct{}

func (stubFees) SubscriptionFee(ctx context.Context, sub *subdomain.Subscription, to time.Time) (money.Amount, error) {
	return 0, nil
}

type stubSettings struct{}

func (stubSettings) TaxPercent(ctx context.Context) int64           { return 0 }
func (stubSettings) DiscountPercent(ctx context.Context) int64      { return 0 }
func (stubSettings) DiscountValue(ctx context.Context) money.Amount { return 0 }

type stubRuntime struct{}

func (stubRuntime) EmergencyDestinations(ctx context.Context) []string { return nil }

type reactorFixture struct {
	db      *gorm.DB
	rdb     *goredis.Client
	reactor *Reactor
	stub    *raterStub
	clock   *fixedClock
	node    *snowflake.Node
	branch  *branchdomain.Branch
	cust    *customerdomain.Customer
	events  *[]string
}

func newReactorFixture(t *testing.T) *reactorFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:reactor_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&subdomain.Subscription{},
		&branchdomain.Branch{},
		&branchdomain.BranchPrefix{},
		&branchdomain.Destination{},
		&invdomain.Invoice{},
		&invdomain.BaseBalanceInvoice{},
		&creditdomain.CreditInvoice{},
		&creditdomain.Payment{},
		&packdomain.Package{},
		&packdomain.PackageInvoice{},
		&trunkdomain.FailedJob{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &fixedClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
	log := zap.NewNop()
	cfg := config.Config{
		CoolDownMinutes: 15,
		NewInvoiceHours: 24,
		MaxCallDuration: 2 * time.Hour,
	}

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := cache.New(config.Config{CacheTTL: time.Minute, CacheAccountTTL: time.Hour}, rdb)
	queue := taskqueue.NewQueue(rdb, log)

	events := &[]string{}
	trunkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*events = append(*events, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(trunkSrv.Close)

	stub := newRaterStub()

	branchSvc := branchservice.New(branchservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        branchrepo.Provide(),
		Dests:       branchrepo.ProvideDestinations(),
		Cache:       store,
		Broadcaster: stub,
	})
	branch, err := branchSvc.Create(context.Background(), branchservice.CreateBranchRequest{
		BranchCode: "thr",
		Name:       "Tehran",
		MinRate:    money.FromUnits(1),
		MaxRate:    money.FromUnits(10),
		Prefixes: map[branchdomain.CallClass][]string{
			branchdomain.ClassLocal: {"021"},
		},
	})
	require.NoError(t, err)

	coordinator := subservice.New(subservice.Params{
		Config:    cfg,
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      subrepo.Provide(),
		Customers: customerrepo.Provide(),
		Rater:     stub,
		Branches:  branchSvc,
		Runtime:   stubRuntime{},
		Cache:     store,
	})

	notifier := trunk.New(trunk.Params{
		Config: config.Config{TrunkURL: trunkSrv.URL, TrunkToken: "token"},
		DB:     db,
		Log:    log,
		GenID:  node,
		Jobs:   trunkrepo.Provide(),
	})

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
		Branches:  branchSvc,
		Settings:  stubSettings{},
		Fees:      stubFees{},
		Usage:     stub,
		Queue:     queue,
		Notify:    notifier,
	})

	packs := packservice.New(packservice.Params{
		Config:      cfg,
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        packrepo.Provide(),
		Invoices:    packrepo.ProvideInvoices(),
		Subs:        subrepo.Provide(),
		Coordinator: coordinator,
	})

	credit := creditservice.New(creditservice.Params{
		Config:      cfg,
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        creditrepo.Provide(),
		Payments:    creditrepo.ProvidePayments(),
		Customers:   customerrepo.Provide(),
		Subs:        subrepo.Provide(),
		Coordinator: coordinator,
		Engine:      engine,
		Packs:       packs,
	})
	coordinator.BindCredit(credit)
	coordinator.BindPackages(packs)
	engine.BindAutoPayer(credit)

	r := New(Params{
		Config:      cfg,
		DB:          db,
		Log:         log,
		Clock:       clk,
		Subs:        subrepo.Provide(),
		Customers:   customerrepo.Provide(),
		Branches:    branchSvc,
		Engine:      engine,
		Credit:      credit,
		Packs:       packs,
		Coordinator: coordinator,
		Notifier:    notifier,
		Queue:       queue,
	})

	cust := &customerdomain.Customer{
		ID:           node.Generate(),
		CustomerCode: "cust-1",
		CreatedAt:    clk.now.AddDate(0, -2, 0),
		UpdatedAt:    clk.now.AddDate(0, -2, 0),
	}
	require.NoError(t, db.Create(cust).Error)

	return &reactorFixture{
		db:      db,
		rdb:     rdb,
		reactor: r,
		stub:    stub,
		clock:   clk,
		node:    node,
		branch:  branch,
		cust:    cust,
		events:  events,
	}
}

func (f *reactorFixture) seedSub(t *testing.T, typ subdomain.SubscriptionType, base money.Amount) *subdomain.Subscription {
	t.Helper()
	sub := &subdomain.Subscription{
		ID:               f.node.Generate(),
		SubscriptionCode: "sub-1",
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           "+982112345678",
		SubscriptionType: typ,
		BaseBalance:      base,
		IsAllocated:      true,
		CreatedAt:        f.clock.now.AddDate(0, -1, 0),
		UpdatedAt:        f.clock.now.AddDate(0, -1, 0),
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

func (f *reactorFixture) deliver(t *testing.T, eventType string) error {
	t.Helper()
	raw, err := json.Marshal(NotificationPayload{Type: eventType, SubscriptionCode: "sub-1"})
	require.NoError(t, err)
	return f.reactor.handleNotification(context.Background(), raw)
}

func (f *reactorFixture) postpaidCDR(cost float64, at time.Time) rater.CDR {
	return rater.CDR{
		CGRID:       uuid.NewString(),
		OriginID:    uuid.NewString(),
		Subject:     "AN_sub-1",
		Destination: "02112340000",
		SetupTime:   at,
		Usage:       int64(90 * time.Second),
		Cost:        cost,
		ExtraFields: map[string]string{"BalanceType": "balance_postpaid"},
	}
}

func (f *reactorFixture) prepaidCDR(cost float64, at time.Time) rater.CDR {
	return rater.CDR{
		CGRID:       uuid.NewString(),
		OriginID:    uuid.NewString(),
		Subject:     "AN_sub-1",
		Destination: "02112340000",
		SetupTime:   at,
		Usage:       int64(90 * time.Second),
		Cost:        cost,
		ExtraFields: map[string]string{"BalanceType": "balance_prepaid"},
	}
}

func TestEightyPostpaidRealIssuesInterim(t *testing.T) {
	f := newReactorFixture(t)
	f.seedSub(t, subdomain.TypePostpaid, money.FromUnits(500))
	// 450 of the 500 base is consumed: the 80% fence fired for real.
	f.stub.cdrs = []rater.CDR{f.postpaidCDR(450, f.clock.now.Add(-time.Hour))}

	require.NoError(t, f.deliver(t, EventEightyPostpaid))

	var inv invdomain.Invoice
	require.NoError(t, f.db.First(&inv, "invoice_type = ?", invdomain.TypeInterim).Error)
	assert.Equal(t, ledger.StatusUnpaid, inv.Status)
	assert.Equal(t, money.FromFloat(450), inv.TotalCost)
	assert.Contains(t, *f.events, "/api/billing/interim-invoice")
}

func TestEightyPostpaidSpuriousRepairsBalance(t *testing.T) {
	f := newReactorFixture(t)
	sub := f.seedSub(t, subdomain.TypePostpaid, money.FromUnits(500))
	// No usage at all, yet the Rater claims only 120 remain: drift.
	f.stub.balances[balKey(sub.SubscriptionCode, rater.BalancePostpaid)] = 120

	require.NoError(t, f.deliver(t, EventEightyPostpaid))

	assert.Equal(t, int64(380), f.stub.added[balKey(sub.SubscriptionCode, rater.BalancePostpaid)])
	assert.Equal(t, 2, f.stub.thresholds)
	var count int64
	require.NoError(t, f.db.Model(&invdomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, *f.events)
}

func TestHundredPostpaidNotifiesAndSchedulesRecheck(t *testing.T) {
	f := newReactorFixture(t)
	f.seedSub(t, subdomain.TypePostpaid, money.FromUnits(500))
	f.stub.cdrs = []rater.CDR{f.postpaidCDR(495, f.clock.now.Add(-time.Hour))}

	require.NoError(t, f.deliver(t, EventHundredPostpaid))

	assert.Contains(t, *f.events, "/api/billing/postpaid-max-usage")
	// The interim re-check waits on the delayed queue, not the ready list.
	delayed, err := f.rdb.ZCard(context.Background(), "tq:delayed").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)
	var count int64
	require.NoError(t, f.db.Model(&invdomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func (f *reactorFixture) seedActivePackage(t *testing.T, sub *subdomain.Subscription, autoRenew bool) *packdomain.PackageInvoice {
	t.Helper()
	pkg := &packdomain.Package{
		ID:           f.node.Generate(),
		PackageCode:  "pkg-30d",
		PackageValue: money.FromUnits(200),
		PackagePrice: money.FromUnits(100),
		PackageDue:   "30d",
		Used:         true,
		CreatedAt:    f.clock.now.AddDate(0, -1, 0),
		UpdatedAt:    f.clock.now.AddDate(0, -1, 0),
	}
	require.NoError(t, f.db.Create(pkg).Error)
	expired := f.clock.now
	inv := &packdomain.PackageInvoice{
		ID:             f.node.Generate(),
		TrackingCode:   uuid.NewString(),
		SubscriptionID: sub.ID,
		PackageID:      pkg.ID,
		TotalValue:     pkg.PackageValue,
		TotalCost:      pkg.PackagePrice,
		Status:         ledger.StatusPaid,
		ExpiredAt:      &expired,
		IsActive:       true,
		AutoRenew:      autoRenew,
		CreatedAt:      f.clock.now.AddDate(0, -1, 0),
		UpdatedAt:      f.clock.now.AddDate(0, -1, 0),
	}
	require.NoError(t, f.db.Create(inv).Error)
	return inv
}

func TestPrepaidExpiryRenewsFromCredit(t *testing.T) {
	f := newReactorFixture(t)
	sub := f.seedSub(t, subdomain.TypePrepaid, money.FromUnits(200))
	old := f.seedActivePackage(t, sub, true)
	require.NoError(t, f.db.Model(&customerdomain.Customer{}).
		Where("id = ?", f.cust.ID).
		Update("credit", money.FromUnits(150)).Error)
	// 195 of the 200 base is consumed: the expiry event is real.
	f.stub.cdrs = []rater.CDR{f.prepaidCDR(195, f.clock.now.Add(-time.Hour))}

	require.NoError(t, f.deliver(t, EventExpiryPrepaid))

	// The retired invoice records the balance the usage left behind.
	var retired packdomain.PackageInvoice
	require.NoError(t, f.db.First(&retired, "id = ?", old.ID).Error)
	assert.True(t, retired.IsExpired)
	assert.Equal(t, money.FromUnits(5), retired.ExpiredValue)

	var cust customerdomain.Customer
	require.NoError(t, f.db.First(&cust, "id = ?", f.cust.ID).Error)
	assert.Equal(t, money.FromUnits(50), cust.Credit)

	var renewed packdomain.PackageInvoice
	require.NoError(t, f.db.First(&renewed, "is_active = ? AND id <> ?", true, old.ID).Error)
	assert.Equal(t, ledger.StatusPaid, renewed.Status)
	assert.True(t, renewed.AutoRenew)
	require.NotNil(t, renewed.ExpiredAt)
	assert.Equal(t, f.clock.now.Add(30*24*time.Hour), renewed.ExpiredAt.UTC())

	var fresh subdomain.Subscription
	require.NoError(t, f.db.First(&fresh, "id = ?", sub.ID).Error)
	assert.Equal(t, subdomain.TypePrepaid, fresh.SubscriptionType)
	assert.Equal(t, money.FromUnits(200), fresh.BaseBalance)

	assert.Contains(t, *f.events, "/api/billing/prepaid-renewed")
}

func TestPrepaidExpiryWithoutRenewalParks(t *testing.T) {
	f := newReactorFixture(t)
	sub := f.seedSub(t, subdomain.TypePrepaid, money.FromUnits(200))
	f.seedActivePackage(t, sub, false)
	f.stub.cdrs = []rater.CDR{f.prepaidCDR(195, f.clock.now.Add(-time.Hour))}

	require.NoError(t, f.deliver(t, EventExpiryPrepaid))

	var fresh subdomain.Subscription
	require.NoError(t, f.db.First(&fresh, "id = ?", sub.ID).Error)
	assert.Equal(t, subdomain.TypePostpaid, fresh.SubscriptionType)
	assert.Equal(t, money.Amount(0), fresh.BaseBalance)
	assert.Contains(t, *f.events, "/api/billing/prepaid-expired")

	// A duplicate delivery finds no active package and does nothing.
	before := len(*f.events)
	require.NoError(t, f.deliver(t, EventExpiryPrepaid))
	assert.Equal(t, before, len(*f.events))
}

func TestPrepaidExpirySpuriousRepairsAndKeepsPackage(t *testing.T) {
	f := newReactorFixture(t)
	sub := f.seedSub(t, subdomain.TypePrepaid, money.FromUnits(200))
	old := f.seedActivePackage(t, sub, true)
	// No usage at all, yet the Rater fired the fence: balance drift.
	f.stub.balances[balKey(sub.SubscriptionCode, rater.BalancePrepaid)] = 20

	require.NoError(t, f.deliver(t, EventExpiryPrepaid))

	var fresh packdomain.PackageInvoice
	require.NoError(t, f.db.First(&fresh, "id = ?", old.ID).Error)
	assert.True(t, fresh.IsActive)
	assert.False(t, fresh.IsExpired)
	assert.Equal(t, int64(180), f.stub.added[balKey(sub.SubscriptionCode, rater.BalancePrepaid)])
	assert.Empty(t, *f.events)
}

func TestMaxUsagePrepaidWithoutCreditParks(t *testing.T) {
	f := newReactorFixture(t)
	sub := f.seedSub(t, subdomain.TypePrepaid, money.FromUnits(200))
	f.seedActivePackage(t, sub, true)
	f.stub.cdrs = []rater.CDR{f.prepaidCDR(195, f.clock.now.Add(-time.Hour))}
	// Auto-renew is on but the customer cannot afford the package.

	require.NoError(t, f.deliver(t, EventHundredPrepaid))

	var fresh subdomain.Subscription
	require.NoError(t, f.db.First(&fresh, "id = ?", sub.ID).Error)
	assert.Equal(t, subdomain.TypePostpaid, fresh.SubscriptionType)
	assert.Contains(t, *f.events, "/api/billing/prepaid-max-usage")
}

func TestEventForDeallocatedSubscriptionDropped(t *testing.T) {
	f := newReactorFixture(t)
	sub := f.seedSub(t, subdomain.TypePostpaid, money.FromUnits(500))
	require.NoError(t, f.db.Model(sub).Update("is_allocated", false).Error)

	require.NoError(t, f.deliver(t, EventEightyPostpaid))
	assert.Empty(t, *f.events)
}

func TestDeallocationBillIssuedForReleasedSubscription(t *testing.T) {
	f := newReactorFixture(t)
	sub := f.seedSub(t, subdomain.TypePostpaid, money.FromUnits(500))
	require.NoError(t, f.db.Model(sub).Update("is_allocated", false).Error)
	f.stub.cdrs = []rater.CDR{f.postpaidCDR(450, f.clock.now.Add(-time.Hour))}

	// Any other deferred interim stays dropped after release.
	raw, err := json.Marshal(invservice.InterimTaskPayload{
		SubscriptionCode: "sub-1",
		Cause:            invdomain.CauseUserRequest,
		Bypass:           true,
	})
	require.NoError(t, err)
	require.NoError(t, f.reactor.handleDeferredInterim(context.Background(), raw))
	var count int64
	require.NoError(t, f.db.Model(&invdomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)

	// The final deallocation bill is the exception.
	raw, err = json.Marshal(invservice.InterimTaskPayload{
		SubscriptionCode: "sub-1",
		Cause:            invdomain.CauseDeallocation,
		Bypass:           true,
	})
	require.NoError(t, err)
	require.NoError(t, f.reactor.handleDeferredInterim(context.Background(), raw))

	var inv invdomain.Invoice
	require.NoError(t, f.db.First(&inv, "invoice_type = ?", invdomain.TypeInterim).Error)
	assert.Equal(t, money.FromFloat(450), inv.TotalCost)
	assert.Contains(t, *f.events, "/api/billing/interim-invoice")
}

func TestUnknownEventTypeRejected(t *testing.T) {
	f := newReactorFixture(t)
	f.seedSub(t, subdomain.TypePostpaid, money.FromUnits(500))
	assert.Error(t, f.deliver(t, "42-postpaid"))
}
