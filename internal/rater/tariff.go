package rater

import (
	"context"
	"strconv"
	"strings"
)

func joinValues(vs []string) string {
	return strings.Join(vs, ";")
}

func formatUnits(units int64) string {
	return strconv.FormatInt(units, 10)
}

type attrDestination struct {
	ID       string   `json:"ID"`
	Prefixes []string `json:"Prefixes"`
}

// SetDestination replaces the prefix set of a destination id. Mutations
// of the ledger's destination table are broadcast through here.
func (c *Client) SetDestination(ctx context.Context, name string, prefixes []string) error {
	return c.call(ctx, methodSetDestination, attrDestination{
		ID:       c.names.Destination(name),
		Prefixes: prefixes,
	}, nil)
}

func (c *Client) RemoveDestination(ctx context.Context, name string) error {
	return c.call(ctx, methodRemoveDestination, attrDestination{
		ID: c.names.Destination(name),
	}, nil)
}

type rateSlot struct {
	Rate           float64 `json:"Rate"`
	RateUnit       string  `json:"RateUnit"`
	RateIncrement  string  `json:"RateIncrement"`
	GroupIntervalStart string `json:"GroupIntervalStart"`
}

type attrRate struct {
	ID        string     `json:"ID"`
	RateSlots []rateSlot `json:"RateSlots"`
}

// SetRate installs a per-destination rate in whole units per minute.
func (c *Client) SetRate(ctx context.Context, destName string, unitsPerMinute float64) error {
	return c.call(ctx, methodSetRate, attrRate{
		ID: c.names.Rate(destName),
		RateSlots: []rateSlot{{
			Rate:               unitsPerMinute,
			RateUnit:           "60s",
			RateIncrement:      "1s",
			GroupIntervalStart: "0s",
		}},
	}, nil)
}

type destinationRateItem struct {
	DestinationID string `json:"DestinationId"`
	RateID        string `json:"RateId"`
	RoundingMethod string `json:"RoundingMethod"`
	RoundingDecimals int  `json:"RoundingDecimals"`
}

type attrDestinationRate struct {
	ID               string                `json:"ID"`
	DestinationRates []destinationRateItem `json:"DestinationRates"`
}

func (c *Client) SetDestinationRate(ctx context.Context, destName string) error {
	return c.call(ctx, methodSetDestinationRate, attrDestinationRate{
		ID: c.names.DestinationRate(destName),
		DestinationRates: []destinationRateItem{{
			DestinationID:    c.names.Destination(destName),
			RateID:           c.names.Rate(destName),
			RoundingMethod:   "*up",
			RoundingDecimals: 2,
		}},
	}, nil)
}

type ratingPlanBinding struct {
	DestinationRatesID string `json:"DestinationRatesId"`
	TimingID           string `json:"TimingId"`
	Weight             int    `json:"Weight"`
}

type attrRatingPlan struct {
	ID                 string              `json:"ID"`
	RatingPlanBindings []ratingPlanBinding `json:"RatingPlanBindings"`
}

func (c *Client) SetRatingPlan(ctx context.Context, branchCode string, destNames []string) error {
	bindings := make([]ratingPlanBinding, 0, len(destNames))
	for _, d := range destNames {
		bindings = append(bindings, ratingPlanBinding{
			DestinationRatesID: c.names.DestinationRate(d),
			TimingID:           c.names.Timing("always"),
			Weight:             10,
		})
	}
	return c.call(ctx, methodSetRatingPlan, attrRatingPlan{
		ID:                 c.names.RatingPlan(branchCode),
		RatingPlanBindings: bindings,
	}, nil)
}

type attrRatingProfile struct {
	Tenant   string `json:"Tenant"`
	Category string `json:"Category"`
	Subject  string `json:"Subject"`
	RatingPlanActivations []ratingPlanActivation `json:"RatingPlanActivations"`
}

type ratingPlanActivation struct {
	ActivationTime string `json:"ActivationTime"`
	RatingPlanID   string `json:"RatingPlanId"`
}

func (c *Client) SetRatingProfile(ctx context.Context, subscriptionCode, branchCode string) error {
	return c.call(ctx, methodSetRatingProfile, attrRatingProfile{
		Tenant:   c.names.Tenant,
		Category: "call",
		Subject:  c.names.Account(subscriptionCode),
		RatingPlanActivations: []ratingPlanActivation{{
			ActivationTime: "2014-01-01T00:00:00Z",
			RatingPlanID:   c.names.RatingPlan(branchCode),
		}},
	}, nil)
}

type attrTiming struct {
	ID        string `json:"ID"`
	Years     string `json:"Years"`
	Months    string `json:"Months"`
	MonthDays string `json:"MonthDays"`
	WeekDays  string `json:"WeekDays"`
	Time      string `json:"Time"`
}

func (c *Client) SetTiming(ctx context.Context, name string) error {
	return c.call(ctx, methodSetTiming, attrTiming{
		ID:        c.names.Timing(name),
		Years:     "*any",
		Months:    "*any",
		MonthDays: "*any",
		WeekDays:  "*any",
		Time:      "00:00:00",
	}, nil)
}

type supplierProfile struct {
	Tenant      string   `json:"Tenant"`
	ID          string   `json:"ID"`
	Sorting     string   `json:"Sorting"`
	SupplierIDs []string `json:"Suppliers"`
}

// RebuildSupplierProfile replaces the routing profile for a branch from
// its current operator set.
func (c *Client) RebuildSupplierProfile(ctx context.Context, branchCode string, operatorCodes []string) error {
	suppliers := make([]string, 0, len(operatorCodes))
	for _, op := range operatorCodes {
		suppliers = append(suppliers, c.names.OperatorAccount(op))
	}
	return c.call(ctx, methodSetSupplierProfile, supplierProfile{
		Tenant:      c.names.Tenant,
		ID:          c.names.SupplierProfile(branchCode),
		Sorting:     "*weight",
		SupplierIDs: suppliers,
	}, nil)
}

type attrLoadTariffPlan struct {
	TPID string `json:"TPid"`
}

// ReloadTariffPlan asks the Rater to reload the tariff plan from its
// store database.
func (c *Client) ReloadTariffPlan(ctx context.Context, tpid string) error {
	return c.call(ctx, methodLoadTariffPlan, attrLoadTariffPlan{TPID: tpid}, nil)
}
