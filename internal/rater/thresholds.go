package rater

import "context"

type thresholdProfile struct {
	Tenant    string   `json:"Tenant"`
	ID        string   `json:"ID"`
	FilterIDs []string `json:"FilterIDs"`
	MaxHits   int      `json:"MaxHits"`
	MinSleep  string   `json:"MinSleep"`
	ActionIDs []string `json:"ActionIDs"`
	Async     bool     `json:"Async"`
}

type filterProfile struct {
	Tenant string       `json:"Tenant"`
	ID     string       `json:"ID"`
	Rules  []filterRule `json:"Rules"`
}

type filterRule struct {
	Type    string   `json:"Type"`
	Element string   `json:"Element"`
	Values  []string `json:"Values"`
}

type attrTenantID struct {
	Tenant string `json:"Tenant"`
	ID     string `json:"ID"`
}

// SetThreshold installs (or replaces) the filter-guarded threshold
// profile for a subscription lane. valueUnits is the balance level the
// threshold fires at: the 20% band for 80%, the branch maximum rate for
// 100%.
func (c *Client) SetThreshold(ctx context.Context, subscriptionCode string, pct ThresholdPercent, kind BalanceKind, valueUnits int64, notifyEvent string) error {
	filterID := c.names.ThresholdFilter(subscriptionCode, pct, kind)
	err := c.call(ctx, methodSetFilter, filterProfile{
		Tenant: c.names.Tenant,
		ID:     filterID,
		Rules: []filterRule{
			{
				Type:    "*string",
				Element: "~*req.Account",
				Values:  []string{c.names.Account(subscriptionCode)},
			},
			{
				Type:    "*lte",
				Element: "~*req.BalanceValue",
				Values:  []string{formatUnits(valueUnits)},
			},
		},
	}, nil)
	if err != nil {
		return err
	}

	return c.call(ctx, methodSetThreshold, thresholdProfile{
		Tenant:    c.names.Tenant,
		ID:        c.names.Threshold(subscriptionCode, pct, kind),
		FilterIDs: []string{filterID},
		MaxHits:   1,
		MinSleep:  "1m",
		ActionIDs: []string{c.names.URLNotifyAction(notifyEvent)},
		Async:     true,
	}, nil)
}

// RemoveThreshold removes the threshold profile and its filter.
func (c *Client) RemoveThreshold(ctx context.Context, subscriptionCode string, pct ThresholdPercent, kind BalanceKind) error {
	err := c.call(ctx, methodRemoveThreshold, attrTenantID{
		Tenant: c.names.Tenant,
		ID:     c.names.Threshold(subscriptionCode, pct, kind),
	}, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	err = c.call(ctx, methodRemoveFilter, attrTenantID{
		Tenant: c.names.Tenant,
		ID:     c.names.ThresholdFilter(subscriptionCode, pct, kind),
	}, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}
