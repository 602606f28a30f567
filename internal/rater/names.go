package rater

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/trunkgate/pkg/strcase"
)

// Names centralizes every identifier pushed to or looked up in the Rater.
// Nothing outside this package may construct Rater names.
type Names struct {
	Tenant string
}

// BalanceKind selects which monetary balance of an account an operation
// targets. Exactly one of the two is enabled per subscription.
type BalanceKind string

const (
	BalancePostpaid BalanceKind = "balance_postpaid"
	BalancePrepaid  BalanceKind = "balance_prepaid"
)

// ThresholdPercent identifies the two usage thresholds installed per lane.
type ThresholdPercent int

const (
	ThresholdEighty  ThresholdPercent = 80
	ThresholdHundred ThresholdPercent = 100
)

func (n Names) Account(subscriptionCode string) string {
	return "AN_" + subscriptionCode
}

func (n Names) OperatorAccount(operatorCode string) string {
	return "AN_op-" + operatorCode
}

// TenantAccount renders an account name in the Rater's Tenant:Account form.
func (n Names) TenantAccount(name string) string {
	return n.Tenant + ":" + name
}

// Destination encodes a destination id from its human name:
// DST_<snake>_<camel>.
func (n Names) Destination(name string) string {
	snake := strcase.ToSnake(name)
	return "DST_" + snake + "_" + strcase.ToCamel(snake)
}

func (n Names) Rate(destName string) string {
	return "RT_" + strcase.ToSnake(destName)
}

func (n Names) DestinationRate(destName string) string {
	return "DR_" + strcase.ToSnake(destName)
}

func (n Names) RatingPlan(branchCode string) string {
	return "RP_" + branchCode
}

func (n Names) RatingProfile(subscriptionCode string) string {
	return "RPF_" + subscriptionCode
}

func (n Names) Timing(name string) string {
	return "TM_" + strcase.ToSnake(name)
}

func (n Names) AttributeProfile(subscriptionCode string) string {
	return "ATTR_" + subscriptionCode
}

func (n Names) InboundAttributeProfile(subscriptionCode string) string {
	return "ATTR_IN_" + subscriptionCode
}

func (n Names) Threshold(subscriptionCode string, pct ThresholdPercent, kind BalanceKind) string {
	return fmt.Sprintf("THD_%d_%s_%s", pct, kind, subscriptionCode)
}

func (n Names) ThresholdFilter(subscriptionCode string, pct ThresholdPercent, kind BalanceKind) string {
	return fmt.Sprintf("FLT_%d_%s_%s", pct, kind, subscriptionCode)
}

func (n Names) TopupResetAction(subscriptionCode string, kind BalanceKind) string {
	return fmt.Sprintf("ACT_TOPUP_%s_%s", kind, subscriptionCode)
}

func (n Names) URLNotifyAction(event string) string {
	return "ACT_URL_" + strings.ReplaceAll(strcase.ToSnake(event), "-", "_")
}

func (n Names) ActionPlan(subscriptionCode string) string {
	return "APL_" + subscriptionCode
}

func (n Names) SupplierProfile(branchCode string) string {
	return "SPL_" + branchCode
}

// JSON-RPC method names. The client treats these as opaque strings.
const (
	methodGetAccount          = "APIerSv2.GetAccount"
	methodSetAccount          = "APIerSv2.SetAccount"
	methodRemoveAccount       = "APIerSv1.RemoveAccount"
	methodAddBalance          = "APIerSv1.AddBalance"
	methodDebitBalance        = "APIerSv1.DebitBalance"
	methodSetBalance          = "APIerSv1.SetBalance"
	methodSetActions          = "APIerSv2.SetActions"
	methodRemoveActions       = "APIerSv1.RemoveActions"
	methodExecuteAction       = "APIerSv1.ExecuteAction"
	methodSetActionPlan       = "APIerSv1.SetActionPlan"
	methodRemoveActionPlan    = "APIerSv1.RemoveActionPlan"
	methodSetThreshold        = "APIerSv1.SetThresholdProfile"
	methodRemoveThreshold     = "APIerSv1.RemoveThresholdProfile"
	methodSetFilter           = "APIerSv1.SetFilter"
	methodRemoveFilter        = "APIerSv1.RemoveFilter"
	methodSetAttribute        = "APIerSv1.SetAttributeProfile"
	methodRemoveAttribute     = "APIerSv1.RemoveAttributeProfile"
	methodSetDestination      = "APIerSv1.SetTPDestination"
	methodRemoveDestination   = "APIerSv1.RemoveTPDestination"
	methodSetRate             = "APIerSv1.SetTPRate"
	methodSetDestinationRate  = "APIerSv1.SetTPDestinationRate"
	methodSetRatingPlan       = "APIerSv1.SetTPRatingPlan"
	methodSetRatingProfile    = "APIerSv1.SetRatingProfile"
	methodSetTiming           = "APIerSv1.SetTPTiming"
	methodSetSupplierProfile  = "APIerSv1.SetSupplierProfile"
	methodLoadTariffPlan      = "APIerSv1.LoadTariffPlanFromStorDb"
	methodCountCDRs           = "CDRsV2.GetCDRsCount"
	methodListCDRs            = "CDRsV2.GetCDRs"
	methodGetActiveSessions   = "SessionSv1.GetActiveSessions"
	methodForceDisconnect     = "SessionSv1.ForceDisconnect"
)
