package rater

import "context"

type attrGetAccount struct {
	Tenant  string `json:"Tenant"`
	Account string `json:"Account"`
}

type attrSetAccount struct {
	Tenant          string `json:"Tenant"`
	Account         string `json:"Account"`
	ActionPlanIDs   []string `json:"ActionPlanIDs,omitempty"`
	ExtraOptions    map[string]bool `json:"ExtraOptions,omitempty"`
	ReloadScheduler bool `json:"ReloadScheduler,omitempty"`
}

// GetAccount fetches the account for a subscription code.
func (c *Client) GetAccount(ctx context.Context, subscriptionCode string) (*Account, error) {
	var acc Account
	err := c.call(ctx, methodGetAccount, attrGetAccount{
		Tenant:  c.names.Tenant,
		Account: c.names.Account(subscriptionCode),
	}, &acc)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// SetAccount creates or updates the account, optionally toggling the
// Disabled option.
func (c *Client) SetAccount(ctx context.Context, subscriptionCode string, disabled bool) error {
	return c.call(ctx, methodSetAccount, attrSetAccount{
		Tenant:       c.names.Tenant,
		Account:      c.names.Account(subscriptionCode),
		ExtraOptions: map[string]bool{"Disabled": disabled},
	}, nil)
}

// RemoveAccount deletes the account entirely. Only the admin removal
// path uses this.
func (c *Client) RemoveAccount(ctx context.Context, subscriptionCode string) error {
	return c.call(ctx, methodRemoveAccount, attrGetAccount{
		Tenant:  c.names.Tenant,
		Account: c.names.Account(subscriptionCode),
	}, nil)
}

// SetOperatorAccount creates or updates the routing account an
// operator supplies calls through.
func (c *Client) SetOperatorAccount(ctx context.Context, operatorCode string, disabled bool) error {
	return c.call(ctx, methodSetAccount, attrSetAccount{
		Tenant:       c.names.Tenant,
		Account:      c.names.OperatorAccount(operatorCode),
		ExtraOptions: map[string]bool{"Disabled": disabled},
	}, nil)
}

// AccountAvailable reports whether no account exists yet for the code.
func (c *Client) AccountAvailable(ctx context.Context, subscriptionCode string) (bool, error) {
	_, err := c.GetAccount(ctx, subscriptionCode)
	if err == nil {
		return false, nil
	}
	if isNotFound(err) {
		return true, nil
	}
	return false, err
}
