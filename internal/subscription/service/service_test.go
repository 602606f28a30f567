package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	branchdomain "github.com/smallbiznis/trunkgate/internal/branch/domain"
	"github.com/smallbiznis/trunkgate/internal/cache"
	"github.com/smallbiznis/trunkgate/internal/config"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	customerrepo "github.com/smallbiznis/trunkgate/internal/customer/repository"
	invoicedomain "github.com/smallbiznis/trunkgate/internal/invoice/domain"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/internal/rater"
	"github.com/smallbiznis/trunkgate/internal/subscription/domain"
	subrepo "github.com/smallbiznis/trunkgate/internal/subscription/repository"
	"github.com/smallbiznis/trunkgate/internal/trunk"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type balanceState struct {
	units    int64
	disabled bool
}

// recordingProvisioner captures every Rater-side mutation so the tests
// can assert the full provisioning sequence.
type recordingProvisioner struct {
	available      bool
	accounts       map[string]bool
	balances       map[string]balanceState
	topupResets    map[string]int64
	thresholds     map[string]int64
	removedThr     []string
	expiry         map[string]string
	removedPlans   []string
	added          map[string]int64
	debited        map[string]int64
	prepaidBalance float64
	outbound       map[string]map[string]string
	emergency      map[string][]string
	inbound        map[string]map[string]string
	removedAttrs   []string
	ratingProfiles map[string]string
}

func newRecordingProvisioner() *recordingProvisioner {
	return &recordingProvisioner{
		available:      true,
		accounts:       make(map[string]bool),
		balances:       make(map[string]balanceState),
		topupResets:    make(map[string]int64),
		thresholds:     make(map[string]int64),
		expiry:         make(map[string]string),
		added:          make(map[string]int64),
		debited:        make(map[string]int64),
		outbound:       make(map[string]map[string]string),
		emergency:      make(map[string][]string),
		inbound:        make(map[string]map[string]string),
		ratingProfiles: make(map[string]string),
	}
}

func balKey(code string, kind rater.BalanceKind) string { return code + "/" + string(kind) }

func thrKey(code string, pct rater.ThresholdPercent, kind rater.BalanceKind) string {
	return fmt.Sprintf("%s/%v/%s", code, pct, kind)
}

func (r *recordingProvisioner) AccountAvailable(ctx context.Context, code string) (bool, error) {
	return r.available, nil
}
func (r *recordingProvisioner) SetAccount(ctx context.Context, code string, disabled bool) error {
	r.accounts[code] = disabled
	return nil
}
func (r *recordingProvisioner) SetBalance(ctx context.Context, code string, kind rater.BalanceKind, units int64, disabled bool) error {
	r.balances[balKey(code, kind)] = balanceState{units: units, disabled: disabled}
	return nil
}
func (r *recordingProvisioner) AddBalance(ctx context.Context, code string, kind rater.BalanceKind, units int64) error {
	r.added[balKey(code, kind)] += units
	return nil
}
func (r *recordingProvisioner) DebitBalance(ctx context.Context, code string, kind rater.BalanceKind, units int64) error {
	r.debited[balKey(code, kind)] += units
	return nil
}
func (r *recordingProvisioner) GetBalance(ctx context.Context, code string, kind rater.BalanceKind) (float64, error) {
	if kind == rater.BalancePrepaid {
		return r.prepaidBalance, nil
	}
	return 0, nil
}
func (r *recordingProvisioner) SetTopupResetAction(ctx context.Context, code string, kind rater.BalanceKind, baseUnits int64) error {
	r.topupResets[balKey(code, kind)] = baseUnits
	return nil
}
func (r *recordingProvisioner) SetActionPlanExpiry(ctx context.Context, code, timeLiteral string) error {
	r.expiry[code] = timeLiteral
	return nil
}
func (r *recordingProvisioner) RemoveActionPlan(ctx context.Context, code string) error {
	r.removedPlans = append(r.removedPlans, code)
	return nil
}
func (r *recordingProvisioner) SetThreshold(ctx context.Context, code string, pct rater.ThresholdPercent, kind rater.BalanceKind, valueUnits int64, notifyEvent string) error {
	r.thresholds[thrKey(code, pct, kind)] = valueUnits
	return nil
}
func (r *recordingProvisioner) RemoveThreshold(ctx context.Context, code string, pct rater.ThresholdPercent, kind rater.BalanceKind) error {
	r.removedThr = append(r.removedThr, thrKey(code, pct, kind))
	return nil
}
func (r *recordingProvisioner) SetAttributeProfile(ctx context.Context, code string, classification map[string]string, emergency []string) error {
	r.outbound[code] = classification
	r.emergency[code] = emergency
	return nil
}
func (r *recordingProvisioner) SetInboundAttributeProfile(ctx context.Context, code string, attrs map[string]string) error {
	r.inbound[code] = attrs
	return nil
}
func (r *recordingProvisioner) RemoveAttributeProfile(ctx context.Context, code string) error {
	r.removedAttrs = append(r.removedAttrs, code)
	return nil
}
func (r *recordingProvisioner) SetRatingProfile(ctx context.Context, code, branchCode string) error {
	r.ratingProfiles[code] = branchCode
	return nil
}

type stubBranchDir struct{ branch *branchdomain.Branch }

func (s stubBranchDir) GetByID(ctx context.Context, id snowflake.ID) (*branchdomain.Branch, error) {
	return s.branch, nil
}
func (s stubBranchDir) Classify(ctx context.Context, branchID snowflake.ID, number string) (branchdomain.CallClass, error) {
	return branchdomain.ClassLocal, nil
}
func (s stubBranchDir) MinMaxRate(ctx context.Context, branchCode string) (money.Amount, money.Amount, error) {
	return s.branch.MinRate, s.branch.MaxRate, nil
}

type stubRuntime struct{ emergency []string }

func (s stubRuntime) EmergencyDestinations(ctx context.Context) []string { return s.emergency }

type recordingDesk struct {
	granted []money.Amount
	tickets []ledger.OperationType
}

func (d *recordingDesk) IssueBaseChange(ctx context.Context, code string, op ledger.OperationType, amount money.Amount, toCredit bool) (*BaseChangeTicket, error) {
	d.tickets = append(d.tickets, op)
	return &BaseChangeTicket{TrackingCode: "t-1", Status: ledger.StatusUnpaid}, nil
}
func (d *recordingDesk) NoPayIncrease(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, amount money.Amount) error {
	d.granted = append(d.granted, amount)
	return nil
}

type recordingDispatcher struct {
	kinds    []string
	payloads []any
}

func (d *recordingDispatcher) Enqueue(ctx context.Context, kind string, payload any) error {
	d.kinds = append(d.kinds, kind)
	d.payloads = append(d.payloads, payload)
	return nil
}

type recordingGateway struct {
	events []string
	bodies []map[string]any
}

func (g *recordingGateway) Notify(ctx context.Context, event string, body map[string]any) error {
	g.events = append(g.events, event)
	g.bodies = append(g.bodies, body)
	return nil
}

type coordFixture struct {
	db      *gorm.DB
	svc     *Service
	prov    *recordingProvisioner
	desk    *recordingDesk
	queue   *recordingDispatcher
	gateway *recordingGateway
	clock   *fixedClock
	node    *snowflake.Node
	cust    *customerdomain.Customer
	branch  *branchdomain.Branch
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&customerdomain.Customer{}, &domain.Subscription{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &fixedClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := cache.New(config.Config{CacheTTL: time.Minute, CacheAccountTTL: time.Hour}, rdb)

	branch := &branchdomain.Branch{
		ID:         node.Generate(),
		BranchCode: "thr",
		MinRate:    money.FromUnits(1),
		MaxRate:    money.FromUnits(10),
	}
	prov := newRecordingProvisioner()
	desk := &recordingDesk{}
	queue := &recordingDispatcher{}
	gateway := &recordingGateway{}

	svc := New(Params{
		Config:    config.Config{BlackListInDays: 30},
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      subrepo.Provide(),
		Customers: customerrepo.Provide(),
		Rater:     prov,
		Branches:  stubBranchDir{branch: branch},
		Runtime:   stubRuntime{emergency: []string{"110", "115"}},
		Cache:     store,
		Queue:     queue,
		Gateway:   gateway,
	})
	svc.BindCredit(desk)

	cust := &customerdomain.Customer{
		ID:           node.Generate(),
		CustomerCode: "cust-1",
		CreatedAt:    clk.now,
		UpdatedAt:    clk.now,
	}
	require.NoError(t, db.Create(cust).Error)

	return &coordFixture{
		db:      db,
		svc:     svc,
		prov:    prov,
		desk:    desk,
		queue:   queue,
		gateway: gateway,
		clock:   clk,
		node:    node,
		cust:    cust,
		branch:  branch,
	}
}

func (f *coordFixture) seedSub(t *testing.T, code string, typ domain.SubscriptionType, base money.Amount) *domain.Subscription {
	t.Helper()
	sub := &domain.Subscription{
		ID:               f.node.Generate(),
		SubscriptionCode: code,
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           "+98912000" + code[len(code)-4:],
		SubscriptionType: typ,
		BaseBalance:      base,
		IsAllocated:      true,
		CreatedAt:        f.clock.now,
		UpdatedAt:        f.clock.now,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

func TestCreateInstallsRaterSide(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, CreateSubscriptionRequest{
		SubscriptionCode: "sub-1",
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           "0912 123-4567",
		SubscriptionType: domain.TypePostpaid,
		BaseBalance:      money.FromUnits(500),
	})
	require.NoError(t, err)
	assert.Equal(t, "+989121234567", sub.Number)
	assert.True(t, sub.IsAllocated)

	assert.False(t, f.prov.accounts["sub-1"])
	assert.Equal(t, balanceState{units: 500}, f.prov.balances[balKey("sub-1", rater.BalancePostpaid)])
	assert.Equal(t, balanceState{disabled: true}, f.prov.balances[balKey("sub-1", rater.BalancePrepaid)])
	assert.Equal(t, int64(500), f.prov.topupResets[balKey("sub-1", rater.BalancePostpaid)])
	// 80% fence at a fifth of the base, 100% fence at the branch max rate.
	assert.Equal(t, int64(100), f.prov.thresholds[thrKey("sub-1", rater.ThresholdEighty, rater.BalancePostpaid)])
	assert.Equal(t, int64(10), f.prov.thresholds[thrKey("sub-1", rater.ThresholdHundred, rater.BalancePostpaid)])
	assert.Equal(t, "thr", f.prov.ratingProfiles["sub-1"])
	assert.Equal(t, map[string]string{"Classification": "local"}, f.prov.outbound["sub-1"])
	assert.Equal(t, []string{"110", "115"}, f.prov.emergency["sub-1"])
}

func TestCreateRejectsInvalidType(t *testing.T) {
	f := newCoordFixture(t)
	_, err := f.svc.Create(context.Background(), CreateSubscriptionRequest{
		SubscriptionCode: "sub-1",
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           "09121234567",
		SubscriptionType: "lifetime",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestCreateRejectsTakenAccount(t *testing.T) {
	f := newCoordFixture(t)
	f.prov.available = false
	_, err := f.svc.Create(context.Background(), CreateSubscriptionRequest{
		SubscriptionCode: "sub-1",
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           "09121234567",
		SubscriptionType: domain.TypePostpaid,
	})
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestAbuseDeallocationBlacklistsNumber(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, CreateSubscriptionRequest{
		SubscriptionCode: "sub-1",
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           "09121234567",
		SubscriptionType: domain.TypePostpaid,
		BaseBalance:      money.FromUnits(500),
	})
	require.NoError(t, err)

	gone, err := f.svc.Deallocate(ctx, "sub-1", domain.CauseAbuse)
	require.NoError(t, err)
	assert.False(t, gone.IsAllocated)
	assert.Equal(t, domain.CauseAbuse, gone.DeallocationCause)
	assert.True(t, f.prov.accounts["sub-1"])
	assert.Contains(t, f.prov.removedAttrs, "sub-1")

	// The number stays burned for the blacklist window.
	_, err = f.svc.Create(ctx, CreateSubscriptionRequest{
		SubscriptionCode: "sub-2",
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           sub.Number,
		SubscriptionType: domain.TypePostpaid,
	})
	assert.ErrorIs(t, err, domain.ErrBlacklisted)

	// Past the window the number is usable again.
	f.clock.now = f.clock.now.AddDate(0, 0, 31)
	_, err = f.svc.Create(ctx, CreateSubscriptionRequest{
		SubscriptionCode: "sub-2",
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           sub.Number,
		SubscriptionType: domain.TypePostpaid,
	})
	assert.NoError(t, err)
}

func TestNormalDeallocationDoesNotBlacklist(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, CreateSubscriptionRequest{
		SubscriptionCode: "sub-1",
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           "09121234567",
		SubscriptionType: domain.TypePostpaid,
	})
	require.NoError(t, err)

	_, err = f.svc.Deallocate(ctx, "sub-1", domain.CauseNormal)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, CreateSubscriptionRequest{
		SubscriptionCode: "sub-2",
		CustomerID:       f.cust.ID,
		BranchID:         f.branch.ID,
		Number:           sub.Number,
		SubscriptionType: domain.TypePostpaid,
	})
	assert.NoError(t, err)
}

func TestDeallocateIssuesFinalBillAndNotifiesTrunk(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()
	sub := f.seedSub(t, "sub-0001", domain.TypePostpaid, money.FromUnits(500))

	_, err := f.svc.Deallocate(ctx, "sub-0001", domain.CauseNormal)
	require.NoError(t, err)

	require.Len(t, f.queue.kinds, 1)
	assert.Equal(t, invservice.TaskInterimInvoice, f.queue.kinds[0])
	payload, ok := f.queue.payloads[0].(invservice.InterimTaskPayload)
	require.True(t, ok)
	assert.Equal(t, "sub-0001", payload.SubscriptionCode)
	assert.Equal(t, invoicedomain.CauseDeallocation, payload.Cause)
	assert.True(t, payload.Bypass)

	require.Len(t, f.gateway.events, 1)
	assert.Equal(t, trunk.EventDeallocation, f.gateway.events[0])
	body := f.gateway.bodies[0]
	assert.Equal(t, "cust-1", body["customer_code"])
	assert.Equal(t, sub.Number, body["number"])
	assert.Equal(t, "normal", body["cause"])
}

func TestDeallocateTwiceFails(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()
	f.seedSub(t, "sub-0001", domain.TypePostpaid, money.FromUnits(100))

	_, err := f.svc.Deallocate(ctx, "sub-0001", domain.CauseNormal)
	require.NoError(t, err)
	_, err = f.svc.Deallocate(ctx, "sub-0001", domain.CauseNormal)
	assert.ErrorIs(t, err, domain.ErrDeallocated)
}

func TestDeallocateRejectsUnknownCause(t *testing.T) {
	f := newCoordFixture(t)
	f.seedSub(t, "sub-0001", domain.TypePostpaid, money.FromUnits(100))
	_, err := f.svc.Deallocate(context.Background(), "sub-0001", "rage")
	assert.ErrorIs(t, err, domain.ErrInvalidCause)
}

func TestConvertToPostpaidReturnsLeftoverAsCredit(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()
	f.seedSub(t, "sub-0001", domain.TypePrepaid, money.FromUnits(200))
	f.prov.prepaidBalance = 40

	sub, err := f.svc.ConvertToPostpaid(ctx, "sub-0001", money.FromUnits(300))
	require.NoError(t, err)
	assert.Equal(t, domain.TypePostpaid, sub.SubscriptionType)
	assert.Equal(t, money.FromUnits(300), sub.BaseBalance)

	assert.Equal(t, int64(40), f.prov.debited[balKey("sub-0001", rater.BalancePrepaid)])
	require.Len(t, f.desk.granted, 1)
	assert.Equal(t, money.FromUnits(40), f.desk.granted[0])

	assert.Contains(t, f.prov.removedThr, thrKey("sub-0001", rater.ThresholdEighty, rater.BalancePrepaid))
	assert.Contains(t, f.prov.removedPlans, "sub-0001")
	assert.Equal(t, balanceState{units: 300}, f.prov.balances[balKey("sub-0001", rater.BalancePostpaid)])
	assert.Equal(t, balanceState{disabled: true}, f.prov.balances[balKey("sub-0001", rater.BalancePrepaid)])
}

func TestConvertToPostpaidGuards(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	f.seedSub(t, "sub-0001", domain.TypePostpaid, money.FromUnits(200))
	_, err := f.svc.ConvertToPostpaid(ctx, "sub-0001", money.FromUnits(300))
	assert.ErrorIs(t, err, domain.ErrSameType)

	f.seedSub(t, "sub-0002", domain.TypeUnlimited, 0)
	_, err = f.svc.ConvertToPostpaid(ctx, "sub-0002", money.FromUnits(300))
	assert.ErrorIs(t, err, domain.ErrUnlimited)
}

func TestChangeBaseBalanceGuards(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()
	f.seedSub(t, "sub-0001", domain.TypePostpaid, money.FromUnits(200))

	_, err := f.svc.ChangeBaseBalance(ctx, "sub-0001", ledger.OpDecrease, money.FromUnits(300), false)
	assert.ErrorIs(t, err, domain.ErrBaseTooLow)

	ticket, err := f.svc.ChangeBaseBalance(ctx, "sub-0001", ledger.OpIncrease, money.FromUnits(300), false)
	require.NoError(t, err)
	assert.Equal(t, "t-1", ticket.TrackingCode)
	assert.Equal(t, []ledger.OperationType{ledger.OpIncrease}, f.desk.tickets)
}

func TestApplyBaseChangeMovesRaterAndBase(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()
	f.seedSub(t, "sub-0001", domain.TypePostpaid, money.FromUnits(500))

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.ApplyBaseChange(ctx, tx, "sub-0001", ledger.OpIncrease, money.FromUnits(100))
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100), f.prov.added[balKey("sub-0001", rater.BalancePostpaid)])
	assert.Equal(t, int64(600), f.prov.topupResets[balKey("sub-0001", rater.BalancePostpaid)])
	assert.Equal(t, int64(120), f.prov.thresholds[thrKey("sub-0001", rater.ThresholdEighty, rater.BalancePostpaid)])

	var sub domain.Subscription
	require.NoError(t, f.db.First(&sub, "subscription_code = ?", "sub-0001").Error)
	assert.Equal(t, money.FromUnits(600), sub.BaseBalance)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.ApplyBaseChange(ctx, tx, "sub-0001", ledger.OpDecrease, money.FromUnits(700))
	})
	assert.ErrorIs(t, err, domain.ErrBaseTooLow)
}

func TestActivatePackageFlipsPrepaid(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()
	f.seedSub(t, "sub-0001", domain.TypePostpaid, money.FromUnits(500))
	expiry := f.clock.now.AddDate(0, 0, 30)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.ActivatePackage(ctx, tx, "sub-0001", money.FromUnits(200), expiry)
	})
	require.NoError(t, err)

	var sub domain.Subscription
	require.NoError(t, f.db.First(&sub, "subscription_code = ?", "sub-0001").Error)
	assert.Equal(t, domain.TypePrepaid, sub.SubscriptionType)
	assert.Equal(t, money.FromUnits(200), sub.BaseBalance)

	assert.Equal(t, balanceState{units: 200}, f.prov.balances[balKey("sub-0001", rater.BalancePrepaid)])
	assert.Equal(t, balanceState{disabled: true}, f.prov.balances[balKey("sub-0001", rater.BalancePostpaid)])
	assert.Equal(t, expiry.UTC().Format(time.RFC3339), f.prov.expiry["sub-0001"])
	assert.Equal(t, map[string]string{"PackageActive": "true"}, f.prov.inbound["sub-0001"])
	assert.Equal(t, int64(40), f.prov.thresholds[thrKey("sub-0001", rater.ThresholdEighty, rater.BalancePrepaid)])
}

func TestRestorePostpaidDefaults(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()
	f.seedSub(t, "sub-0001", domain.TypePrepaid, money.FromUnits(200))

	require.NoError(t, f.svc.RestorePostpaidDefaults(ctx, "sub-0001"))

	var sub domain.Subscription
	require.NoError(t, f.db.First(&sub, "subscription_code = ?", "sub-0001").Error)
	assert.Equal(t, domain.TypePostpaid, sub.SubscriptionType)
	assert.Equal(t, money.Amount(0), sub.BaseBalance)

	assert.Equal(t, balanceState{units: 0, disabled: true}, f.prov.balances[balKey("sub-0001", rater.BalancePrepaid)])
	assert.Equal(t, balanceState{units: 0, disabled: false}, f.prov.balances[balKey("sub-0001", rater.BalancePostpaid)])
	assert.Contains(t, f.prov.removedPlans, "sub-0001")
}

func TestSetAutoPay(t *testing.T) {
	f := newCoordFixture(t)
	f.seedSub(t, "sub-0001", domain.TypePostpaid, money.FromUnits(500))

	sub, err := f.svc.SetAutoPay(context.Background(), "sub-0001", true)
	require.NoError(t, err)
	assert.True(t, sub.AutoPay)
}

func TestRenewBranchRequiresAllocation(t *testing.T) {
	f := newCoordFixture(t)
	sub := f.seedSub(t, "sub-0001", domain.TypePostpaid, money.FromUnits(500))
	require.NoError(t, f.db.Model(sub).Update("is_allocated", false).Error)

	err := f.svc.RenewBranch(context.Background(), "sub-0001")
	assert.ErrorIs(t, err, domain.ErrDeallocated)
}
