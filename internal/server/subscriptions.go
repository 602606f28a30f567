package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	creditservice "github.com/smallbiznis/trunkgate/internal/credit/service"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/internal/rater"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	subservice "github.com/smallbiznis/trunkgate/internal/subscription/service"
	"github.com/smallbiznis/trunkgate/pkg/money"
)

func (s *Server) listSubscriptions(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	filter := subdomain.ListFilter{
		SubscriptionCode: c.Query("subscription_code"),
		Number:           c.Query("number"),
		SubscriptionType: subdomain.SubscriptionType(c.Query("subscription_type")),
		OrderBy:          c.Query("order_by"),
	}
	subs, count, err := s.coordinator.List(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, subs, count, page)
}

func (s *Server) listCustomerSubscriptions(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	cust, err := s.customers.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	filter := subdomain.ListFilter{
		CustomerID: cust.ID,
		OrderBy:    c.Query("order_by"),
	}
	subs, count, err := s.coordinator.List(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, subs, count, page)
}

func (s *Server) createSubscription(c *gin.Context) {
	var req subservice.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	cust, err := s.customers.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	req.CustomerID = cust.ID
	sub, err := s.coordinator.Create(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, sub)
}

func (s *Server) getSubscription(c *gin.Context) {
	sub, err := s.coordinator.GetByCode(c.Request.Context(), c.Param("sub"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

type patchSubscriptionRequest struct {
	AutoPay *bool `json:"auto_pay"`
}

func (s *Server) patchSubscription(c *gin.Context) {
	var req patchSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if req.AutoPay == nil {
		abortWithError(c, fmt.Errorf("%w: nothing to update", errBadRequest))
		return
	}
	sub, err := s.coordinator.SetAutoPay(c.Request.Context(), c.Param("sub"), *req.AutoPay)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

func (s *Server) subscriptionAvailability(c *gin.Context) {
	available, err := s.rater.AccountAvailable(c.Request.Context(), c.Param("sub"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"available": available})
}

type deallocateRequest struct {
	Cause subdomain.DeallocationCause `json:"cause"`
}

func (s *Server) deallocateSubscription(c *gin.Context) {
	var req deallocateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}
	if req.Cause == "" {
		req.Cause = subdomain.CauseNormal
	}
	sub, err := s.coordinator.Deallocate(c.Request.Context(), c.Param("sub"), req.Cause)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

type balanceMoveRequest struct {
	Amount money.Amount `json:"amount" binding:"required"`
}

func (s *Server) addBalance(c *gin.Context) {
	s.moveBalance(c, true)
}

func (s *Server) debitBalance(c *gin.Context) {
	s.moveBalance(c, false)
}

// moveBalance adjusts the enabled monetary balance directly in the
// Rater. It bypasses the ledger on purpose: this is the operator's
// manual correction tool.
func (s *Server) moveBalance(c *gin.Context, add bool) {
	var req balanceMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		abortWithError(c, fmt.Errorf("%w: amount must be positive", errBadRequest))
		return
	}
	sub, err := s.coordinator.GetByCode(c.Request.Context(), c.Param("sub"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !sub.IsAllocated {
		abortWithError(c, subdomain.ErrDeallocated)
		return
	}
	kind := rater.BalancePostpaid
	switch sub.SubscriptionType {
	case subdomain.TypePrepaid:
		kind = rater.BalancePrepaid
	case subdomain.TypeUnlimited:
		abortWithError(c, subdomain.ErrUnlimited)
		return
	}
	if add {
		err = s.rater.AddBalance(c.Request.Context(), sub.SubscriptionCode, kind, req.Amount.FloorUnits())
	} else {
		err = s.rater.DebitBalance(c.Request.Context(), sub.SubscriptionCode, kind, req.Amount.FloorUnits())
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "balance updated")
}

type baseBalanceRequest struct {
	OperationType ledger.OperationType `json:"operation_type" binding:"required"`
	TotalCost     money.Amount         `json:"total_cost" binding:"required"`
	ToCredit      bool                 `json:"to_credit"`
}

func (s *Server) changeBaseBalance(c *gin.Context) {
	var req baseBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	ticket, err := s.coordinator.ChangeBaseBalance(c.Request.Context(), c.Param("sub"), req.OperationType, req.TotalCost, req.ToCredit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, ticket)
}

type convertRequest struct {
	BaseBalance money.Amount `json:"base_balance" binding:"required"`
}

func (s *Server) convertSubscription(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sub, err := s.coordinator.ConvertToPostpaid(c.Request.Context(), c.Param("sub"), req.BaseBalance)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, sub)
}

func (s *Server) issueSubscriptionCredit(c *gin.Context) {
	var req creditservice.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sub, err := s.coordinator.GetByCode(c.Request.Context(), c.Param("sub"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	cust, err := s.customers.GetByID(c.Request.Context(), sub.CustomerID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	req.CustomerCode = cust.CustomerCode
	inv, err := s.credit.Issue(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, inv)
}
