package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	creditservice "github.com/smallbiznis/trunkgate/internal/credit/service"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
)

func (s *Server) listCustomers(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	createdFrom, err := parseUnixParam(c, "created_at_from")
	if err != nil {
		abortWithError(c, err)
		return
	}
	createdTo, err := parseUnixParam(c, "created_at_to")
	if err != nil {
		abortWithError(c, err)
		return
	}
	filter := customerdomain.ListCustomerFilter{
		GenericOr:    c.Query("generic_or"),
		CustomerCode: c.Query("prime_code"),
		CreatedFrom:  createdFrom,
		CreatedTo:    createdTo,
		OrderBy:      c.Query("order_by"),
	}
	customers, count, err := s.customers.List(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, customers, count, page)
}

func (s *Server) createCustomer(c *gin.Context) {
	var req customerdomain.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	cust, err := s.customers.Create(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, cust)
}

func (s *Server) getCustomer(c *gin.Context) {
	cust, err := s.customers.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, cust)
}

func (s *Server) getCustomerCredit(c *gin.Context) {
	cust, err := s.customers.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"customer_code": cust.CustomerCode,
		"credit":        cust.Credit,
	})
}

func (s *Server) issueCustomerCredit(c *gin.Context) {
	var req creditservice.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	req.CustomerCode = c.Param("code")
	inv, err := s.credit.Issue(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, inv)
}
