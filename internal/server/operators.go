package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	operatordomain "github.com/smallbiznis/trunkgate/internal/operator/domain"
	operatorservice "github.com/smallbiznis/trunkgate/internal/operator/service"
)

func (s *Server) listOperators(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	operators, count, err := s.operators.List(c.Request.Context(), page, c.Query("order_by"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, operators, count, page)
}

func (s *Server) createOperator(c *gin.Context) {
	var req operatorservice.CreateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	op, err := s.operators.Create(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, op)
}

func (s *Server) getOperator(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	op, err := s.operators.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, op)
}

func (s *Server) updateOperator(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	var req operatorservice.UpdateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	op, err := s.operators.Update(c.Request.Context(), id, req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, op)
}

func (s *Server) listProfits(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var filter operatordomain.ProfitFilter
	if raw := c.Query("operator_id"); raw != "" {
		id, err := parseQueryID(c, "operator_id")
		if err != nil {
			abortWithError(c, err)
			return
		}
		filter.OperatorID = &id
	}
	if raw := c.Query("invoice_id"); raw != "" {
		id, err := parseQueryID(c, "invoice_id")
		if err != nil {
			abortWithError(c, err)
			return
		}
		filter.InvoiceID = &id
	}
	profits, count, err := s.operators.ListProfits(c.Request.Context(), filter, page, c.Query("order_by"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, profits, count, page)
}
