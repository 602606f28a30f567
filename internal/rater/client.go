package rater

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/trunkgate/internal/config"
	"go.uber.org/zap"
)

// Client issues JSON-RPC 2.0 calls against the Rater.
//
// Every call carries a fresh correlation id. A first timeout is retried
// exactly once with the same id and body (the Rater-side operations are
// idempotent); a second timeout surfaces as ErrTimeout.
type Client struct {
	url     string
	user    string
	pass    string
	timeout time.Duration
	http    *http.Client
	names   Names
	log     *zap.Logger
	observe func(method, outcome string, took time.Duration)
}

func New(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		url:     cfg.RaterURL,
		user:    cfg.RaterUser,
		pass:    cfg.RaterPassword,
		timeout: cfg.RaterTimeout,
		http:    &http.Client{},
		names:   Names{Tenant: cfg.RaterTenant},
		log:     log.Named("rater.client"),
	}
}

func (c *Client) Names() Names { return c.names }

// SetCallObserver installs an optional per-call metrics hook.
func (c *Client) SetCallObserver(f func(method, outcome string, took time.Duration)) {
	c.observe = f
}

type rpcRequest struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// call performs one JSON-RPC round trip with the configured timeout.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	return c.doCall(ctx, method, params, out, c.timeout)
}

// callNoTimeout is used for long operations such as CDR listings.
func (c *Client) callNoTimeout(ctx context.Context, method string, params, out any) error {
	return c.doCall(ctx, method, params, out, 0)
}

func (c *Client) doCall(ctx context.Context, method string, params, out any, timeout time.Duration) (err error) {
	if c.observe != nil {
		start := time.Now()
		defer func() {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			c.observe(method, outcome, time.Since(start))
		}()
	}
	req := rpcRequest{
		ID:      uuid.NewString(),
		JSONRPC: "2.0",
		Method:  method,
		Params:  []any{params},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	resp, err := c.roundTrip(ctx, body, timeout)
	if err != nil {
		if isTimeout(err) {
			// Retry once with the same correlation id and body.
			c.log.Warn("rater call timed out, retrying once",
				zap.String("method", method),
				zap.String("id", req.ID),
			)
			resp, err = c.roundTrip(ctx, body, timeout)
			if err != nil {
				if isTimeout(err) {
					return fmt.Errorf("%s: %w", method, ErrTimeout)
				}
				return fmt.Errorf("%s: %w: %v", method, ErrTransport, err)
			}
		} else {
			return fmt.Errorf("%s: %w: %v", method, ErrTransport, err)
		}
	}

	if resp.ID != req.ID {
		return fmt.Errorf("%s: %w: sent %s, got %s", method, ErrProtocolMismatch, req.ID, resp.ID)
	}
	if resp.Error != nil && *resp.Error != "" {
		return mapRaterError(method, *resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, body []byte, timeout time.Duration) (*rpcResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.user, c.pass)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func mapRaterError(method, msg string) error {
	switch strings.TrimSpace(msg) {
	case "NOT_FOUND", "SERVER_ERROR: NOT_FOUND":
		return fmt.Errorf("%s: %w", method, ErrNotFound)
	default:
		return fmt.Errorf("%s: %w: %s", method, ErrRater, msg)
	}
}
