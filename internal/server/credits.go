package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/trunkgate/internal/credit/domain"
	creditservice "github.com/smallbiznis/trunkgate/internal/credit/service"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
)

func (s *Server) creditFilter(c *gin.Context) (creditdomain.ListFilter, error) {
	var filter creditdomain.ListFilter
	if raw := c.Query("customer_code"); raw != "" {
		cust, err := s.customers.GetByCode(c.Request.Context(), raw)
		if err != nil {
			return filter, err
		}
		filter.CustomerID = cust.ID
	}
	filter.TrackingCode = c.Query("tracking_code")
	filter.OperationType = ledger.OperationType(c.Query("operation_type"))
	filter.Status = ledger.Status(c.Query("status"))
	filter.OrderBy = c.Query("order_by")
	return filter, nil
}

func (s *Server) listCreditInvoices(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	filter, err := s.creditFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	invoices, count, err := s.credit.List(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, invoices, count, page)
}

func (s *Server) exportCreditInvoices(c *gin.Context) {
	filter, err := s.creditFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	invoices, _, err := s.credit.List(c.Request.Context(), filter, pagination.Page{Bypass: true})
	if err != nil {
		abortWithError(c, err)
		return
	}
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		usedFor := ""
		if inv.UsedFor != nil {
			usedFor = string(*inv.UsedFor)
		}
		rows = append(rows, []string{
			inv.TrackingCode,
			inv.CustomerID.String(),
			string(inv.OperationType),
			usedFor,
			string(inv.Status),
			strconv.FormatInt(int64(inv.TotalCost), 10),
			inv.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	header := []string{"tracking_code", "customer_id", "operation_type", "used_for", "status", "total_cost", "created_at"}
	streamCSV(c, "credit-invoices.csv", header, rows)
}

func (s *Server) getCreditInvoice(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	inv, err := s.credit.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, inv)
}

func (s *Server) issueCreditInvoice(c *gin.Context) {
	var req creditservice.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	inv, err := s.credit.Issue(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, inv)
}

func (s *Server) listPayments(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var filter creditdomain.PaymentListFilter
	if raw := c.Query("credit_invoice_id"); raw != "" {
		id, err := parseQueryID(c, "credit_invoice_id")
		if err != nil {
			abortWithError(c, err)
			return
		}
		filter.CreditInvoiceID = id
	}
	filter.Gateway = creditdomain.PaymentGateway(c.Query("gateway"))
	filter.Status = creditdomain.PaymentStatus(c.Query("status"))
	filter.OrderBy = c.Query("order_by")
	payments, count, err := s.credit.ListPayments(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, payments, count, page)
}

func (s *Server) getPayment(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	payment, err := s.credit.GetPayment(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, payment)
}

func (s *Server) createPayment(c *gin.Context) {
	var req creditservice.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	payment, err := s.credit.CreatePayment(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, payment)
}

type approvePaymentRequest struct {
	Status creditdomain.PaymentStatus `json:"status" binding:"required"`
}

func (s *Server) approvePayment(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	var req approvePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	payment, err := s.credit.ApprovePayment(c.Request.Context(), id, req.Status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, payment)
}
