package rater

import "context"

type rpcAction struct {
	Identifier      string  `json:"Identifier"`
	BalanceID       string  `json:"BalanceId,omitempty"`
	BalanceType     string  `json:"BalanceType,omitempty"`
	Units           float64 `json:"Units,omitempty"`
	ExtraParameters string  `json:"ExtraParameters,omitempty"`
}

type attrSetActions struct {
	ActionsID string      `json:"ActionsId"`
	Actions   []rpcAction `json:"Actions"`
	Overwrite bool        `json:"Overwrite"`
}

type attrActionsID struct {
	ActionsID string `json:"ActionsId"`
}

type attrExecuteAction struct {
	Tenant    string `json:"Tenant"`
	Account   string `json:"Account"`
	ActionsID string `json:"ActionsId"`
}

type attrActionPlan struct {
	ID         string           `json:"Id"`
	ActionPlan []actionPlanItem `json:"ActionPlan,omitempty"`
	Overwrite  bool             `json:"Overwrite"`
	ReloadScheduler bool        `json:"ReloadScheduler"`
}

type actionPlanItem struct {
	ActionsID string `json:"ActionsId"`
	Time      string `json:"Time"`
	Weight    int    `json:"Weight"`
}

// SetTopupResetAction installs the per-subscription, per-lane
// topup-reset action that restores the balance to its base value.
func (c *Client) SetTopupResetAction(ctx context.Context, subscriptionCode string, kind BalanceKind, baseUnits int64) error {
	return c.call(ctx, methodSetActions, attrSetActions{
		ActionsID: c.names.TopupResetAction(subscriptionCode, kind),
		Actions: []rpcAction{{
			Identifier:  "*topup_reset",
			BalanceID:   string(kind),
			BalanceType: "*monetary",
			Units:       float64(baseUnits),
		}},
		Overwrite: true,
	}, nil)
}

// SetURLNotifyAction installs an http callback action for one event kind.
func (c *Client) SetURLNotifyAction(ctx context.Context, event, callbackURL string) error {
	return c.call(ctx, methodSetActions, attrSetActions{
		ActionsID: c.names.URLNotifyAction(event),
		Actions: []rpcAction{{
			Identifier:      "*http_post_async",
			ExtraParameters: callbackURL,
		}},
		Overwrite: true,
	}, nil)
}

// ExecuteAction runs a stored action against an account immediately.
func (c *Client) ExecuteAction(ctx context.Context, subscriptionCode, actionsID string) error {
	return c.call(ctx, methodExecuteAction, attrExecuteAction{
		Tenant:    c.names.Tenant,
		Account:   c.names.Account(subscriptionCode),
		ActionsID: actionsID,
	}, nil)
}

// RemoveActions deletes a stored action set.
func (c *Client) RemoveActions(ctx context.Context, actionsID string) error {
	return c.call(ctx, methodRemoveActions, attrActionsID{ActionsID: actionsID}, nil)
}

// SetActionPlanExpiry schedules the prepaid expiry action for a
// subscription at the given cron-like time literal.
func (c *Client) SetActionPlanExpiry(ctx context.Context, subscriptionCode, timeLiteral string) error {
	return c.call(ctx, methodSetActionPlan, attrActionPlan{
		ID: c.names.ActionPlan(subscriptionCode),
		ActionPlan: []actionPlanItem{{
			ActionsID: c.names.URLNotifyAction("expiry-prepaid"),
			Time:      timeLiteral,
			Weight:    10,
		}},
		Overwrite:       true,
		ReloadScheduler: true,
	}, nil)
}

// RemoveActionPlan drops the subscription's scheduled action plan.
func (c *Client) RemoveActionPlan(ctx context.Context, subscriptionCode string) error {
	return c.call(ctx, methodRemoveActionPlan, attrActionPlan{
		ID:              c.names.ActionPlan(subscriptionCode),
		ReloadScheduler: true,
	}, nil)
}
