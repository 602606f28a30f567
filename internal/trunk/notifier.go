// Package trunk posts billing events back to the carrier backend.
// Failures never abort the ledger mutation that produced them; they are
// parked as FailedJob rows for scheduler replay.
package trunk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/config"
	"github.com/smallbiznis/trunkgate/internal/trunk/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Event names and their relative URLs on the Trunk side.
const (
	EventPeriodicInvoice       = "periodic-invoice"
	EventInterimInvoice        = "interim-invoice"
	EventInterimInvoiceAutoPay = "interim-invoice-auto-payed"
	EventPostpaidMaxUsage      = "postpaid-max-usage"
	EventPrepaidEightyPercent  = "prepaid-eighty-percent"
	EventPrepaidRenewed        = "prepaid-renewed"
	EventPrepaidMaxUsage       = "prepaid-max-usage"
	EventPrepaidExpired        = "prepaid-expired"
	EventDueDate               = "due-date"
	EventDeallocation          = "deallocation"
)

var eventPaths = map[string]string{
	EventPeriodicInvoice:       "/api/billing/periodic-invoice",
	EventInterimInvoice:        "/api/billing/interim-invoice",
	EventInterimInvoiceAutoPay: "/api/billing/interim-invoice-auto-payed",
	EventPostpaidMaxUsage:      "/api/billing/postpaid-max-usage",
	EventPrepaidEightyPercent:  "/api/billing/prepaid-eighty-percent",
	EventPrepaidRenewed:        "/api/billing/prepaid-renewed",
	EventPrepaidMaxUsage:       "/api/billing/prepaid-max-usage",
	EventPrepaidExpired:        "/api/billing/prepaid-expired",
	EventDueDate:               "/api/billing/due-date",
	EventDeallocation:          "/api/billing/deallocation",
}

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Jobs   domain.FailedJobRepository
}

type Notifier struct {
	baseURL string
	token   string
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	jobs    domain.FailedJobRepository
	http    *http.Client
}

func New(p Params) *Notifier {
	return &Notifier{
		baseURL: p.Config.TrunkURL,
		token:   p.Config.TrunkToken,
		db:      p.DB,
		log:     p.Log.Named("trunk.notifier"),
		genID:   p.GenID,
		jobs:    p.Jobs,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts one event. A failure is recorded as a FailedJob and the
// error is still returned so callers can log it; it must never abort a
// ledger transaction.
func (n *Notifier) Notify(ctx context.Context, event string, body map[string]any) error {
	err := n.post(ctx, event, body)
	if err == nil {
		return nil
	}
	n.park(ctx, event, body, err)
	return err
}

func (n *Notifier) post(ctx context.Context, event string, body map[string]any) error {
	path, ok := eventPaths[event]
	if !ok {
		return fmt.Errorf("unknown trunk event %q", event)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("trunk returned %d for %s", resp.StatusCode, event)
	}
	return nil
}

func (n *Notifier) park(ctx context.Context, event string, body map[string]any, cause error) {
	raw, err := json.Marshal(body)
	if err != nil {
		n.log.Error("failed job not recorded", zap.String("event", event), zap.Error(err))
		return
	}
	now := time.Now().UTC()
	job := &domain.FailedJob{
		ID:        n.genID.Generate(),
		Service:   "trunk",
		Version:   "v1",
		Class:     "notifier",
		Method:    event,
		Arguments: raw,
		LastError: cause.Error(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := n.jobs.Insert(ctx, n.db, job); err != nil {
		n.log.Error("failed job not recorded", zap.String("event", event), zap.Error(err))
		return
	}
	n.log.Warn("trunk notification parked for replay",
		zap.String("event", event), zap.Error(cause))
}

// ReplayFailedJobs re-posts every parked notification, deleting the
// rows that go through.
func (n *Notifier) ReplayFailedJobs(ctx context.Context) error {
	jobs, err := n.jobs.All(ctx, n.db)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		var body map[string]any
		if err := json.Unmarshal(job.Arguments, &body); err != nil {
			n.log.Error("failed job has unreadable arguments", zap.Int64("id", int64(job.ID)))
			continue
		}
		if err := n.post(ctx, job.Method, body); err != nil {
			job.LastError = err.Error()
			if saveErr := n.jobs.Save(ctx, n.db, job); saveErr != nil {
				n.log.Error("failed job not updated", zap.Error(saveErr))
			}
			continue
		}
		if err := n.jobs.Delete(ctx, n.db, job.ID); err != nil {
			n.log.Error("failed job not deleted", zap.Error(err))
		}
	}
	return nil
}
