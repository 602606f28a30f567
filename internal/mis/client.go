// Package mis fetches the monthly subscription fee from the external
// MIS system.
package mis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/smallbiznis/trunkgate/internal/config"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	"github.com/smallbiznis/trunkgate/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	user    string
	pass    string
	http    *http.Client
	log     *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.MisURL,
		user:    cfg.MisUser,
		pass:    cfg.MisPassword,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.Named("mis.client"),
	}
}

type feeResponse struct {
	Fee float64 `json:"fee"`
}

// SubscriptionFee asks MIS for the fee owed by the subscription at the
// window end. An unconfigured MIS means no fee.
func (c *Client) SubscriptionFee(ctx context.Context, sub *subdomain.Subscription, to time.Time) (money.Amount, error) {
	if c.baseURL == "" {
		return 0, nil
	}
	q := url.Values{}
	q.Set("subscription_code", sub.SubscriptionCode)
	q.Set("subscription_type", string(sub.SubscriptionType))
	q.Set("to_date", strconv.FormatInt(to.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/fees?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.SetBasicAuth(c.user, c.pass)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("mis returned %d", resp.StatusCode)
	}
	var out feeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return money.FromFloat(out.Fee), nil
}

var Module = fx.Module("mis.client",
	fx.Provide(New),
)
