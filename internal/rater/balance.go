package rater

import (
	"context"
	"errors"
)

type attrBalance struct {
	Tenant      string  `json:"Tenant"`
	Account     string  `json:"Account"`
	BalanceType string  `json:"BalanceType"`
	BalanceID   string  `json:"BalanceID"`
	Value       float64 `json:"Value"`
	Disabled    *bool   `json:"Disabled,omitempty"`
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// AddBalance credits the named monetary balance by value whole units.
func (c *Client) AddBalance(ctx context.Context, subscriptionCode string, kind BalanceKind, units int64) error {
	return c.call(ctx, methodAddBalance, attrBalance{
		Tenant:      c.names.Tenant,
		Account:     c.names.Account(subscriptionCode),
		BalanceType: "*monetary",
		BalanceID:   string(kind),
		Value:       float64(units),
	}, nil)
}

// DebitBalance debits the named monetary balance by value whole units.
func (c *Client) DebitBalance(ctx context.Context, subscriptionCode string, kind BalanceKind, units int64) error {
	return c.call(ctx, methodDebitBalance, attrBalance{
		Tenant:      c.names.Tenant,
		Account:     c.names.Account(subscriptionCode),
		BalanceType: "*monetary",
		BalanceID:   string(kind),
		Value:       float64(units),
	}, nil)
}

// SetBalance pins the named monetary balance to an absolute value and
// can enable or disable it. Exactly one of the two balances is kept
// enabled per subscription.
func (c *Client) SetBalance(ctx context.Context, subscriptionCode string, kind BalanceKind, units int64, disabled bool) error {
	return c.call(ctx, methodSetBalance, attrBalance{
		Tenant:      c.names.Tenant,
		Account:     c.names.Account(subscriptionCode),
		BalanceType: "*monetary",
		BalanceID:   string(kind),
		Value:       float64(units),
		Disabled:    &disabled,
	}, nil)
}

// GetBalance reads the current value of one monetary balance.
func (c *Client) GetBalance(ctx context.Context, subscriptionCode string, kind BalanceKind) (float64, error) {
	acc, err := c.GetAccount(ctx, subscriptionCode)
	if err != nil {
		return 0, err
	}
	v, ok := acc.MonetaryBalance(kind)
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}
