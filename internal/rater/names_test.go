package rater

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNames(t *testing.T) {
	n := Names{Tenant: "cgrates.org"}

	assert.Equal(t, "AN_sub-42", n.Account("sub-42"))
	assert.Equal(t, "AN_op-mci", n.OperatorAccount("mci"))
	assert.Equal(t, "cgrates.org:AN_sub-42", n.TenantAccount(n.Account("sub-42")))
	assert.Equal(t, "DST_mobile_national_MobileNational", n.Destination("mobile_national"))
	assert.Equal(t, "DST_mobile_national_MobileNational", n.Destination("MobileNational"))
	assert.Equal(t, "RT_mobile_national", n.Rate("mobile_national"))
	assert.Equal(t, "THD_80_balance_postpaid_sub-42", n.Threshold("sub-42", ThresholdEighty, BalancePostpaid))
	assert.Equal(t, "FLT_100_balance_prepaid_sub-42", n.ThresholdFilter("sub-42", ThresholdHundred, BalancePrepaid))
	assert.Equal(t, "ACT_TOPUP_balance_postpaid_sub-42", n.TopupResetAction("sub-42", BalancePostpaid))
	assert.Equal(t, "ACT_URL_expiry_prepaid", n.URLNotifyAction("expiry-prepaid"))
	assert.Equal(t, "APL_sub-42", n.ActionPlan("sub-42"))
}
