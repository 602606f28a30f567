package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	invdomain "github.com/smallbiznis/trunkgate/internal/invoice/domain"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
)

func (s *Server) invoiceFilter(c *gin.Context) (invdomain.ListFilter, error) {
	var filter invdomain.ListFilter
	if raw := c.Query("subscription_code"); raw != "" {
		sub, err := s.coordinator.GetByCode(c.Request.Context(), raw)
		if err != nil {
			return filter, err
		}
		filter.SubscriptionID = sub.ID
	}
	fromFrom, err := parseUnixParam(c, "from_date_from")
	if err != nil {
		return filter, err
	}
	fromTo, err := parseUnixParam(c, "from_date_to")
	if err != nil {
		return filter, err
	}
	toFrom, err := parseUnixParam(c, "to_date_from")
	if err != nil {
		return filter, err
	}
	toTo, err := parseUnixParam(c, "to_date_to")
	if err != nil {
		return filter, err
	}
	costFrom, err := parseAmountParam(c, "total_cost_from")
	if err != nil {
		return filter, err
	}
	costTo, err := parseAmountParam(c, "total_cost_to")
	if err != nil {
		return filter, err
	}
	filter.TrackingCode = c.Query("tracking_code")
	filter.Status = ledger.Status(c.Query("status"))
	filter.InvoiceType = invdomain.InvoiceType(c.Query("invoice_type"))
	filter.FromDateFrom = fromFrom
	filter.FromDateTo = fromTo
	filter.ToDateFrom = toFrom
	filter.ToDateTo = toTo
	filter.TotalCostFrom = costFrom
	filter.TotalCostTo = costTo
	filter.OrderBy = c.Query("order_by")
	return filter, nil
}

func (s *Server) listInvoices(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	filter, err := s.invoiceFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	invoices, count, err := s.invoices.List(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, invoices, count, page)
}

func (s *Server) exportInvoices(c *gin.Context) {
	filter, err := s.invoiceFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	page := pagination.Page{Bypass: true}
	invoices, _, err := s.invoices.List(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		due := ""
		if inv.DueDate != nil {
			due = inv.DueDate.Format("2006-01-02")
		}
		rows = append(rows, []string{
			inv.TrackingCode,
			inv.SubscriptionID.String(),
			string(inv.InvoiceType),
			string(inv.Status),
			inv.FromDate.Format("2006-01-02"),
			inv.ToDate.Format("2006-01-02"),
			due,
			strconv.FormatInt(inv.UsageCost().FloorUnits(), 10),
			strconv.FormatInt(int64(inv.TaxCost), 10),
			strconv.FormatInt(int64(inv.Debt), 10),
			strconv.FormatInt(inv.TotalCostRounded().FloorUnits(), 10),
		})
	}
	header := []string{"tracking_code", "subscription_id", "invoice_type", "status", "from_date", "to_date", "due_date", "usage_cost", "tax_cost", "debt", "total_cost"}
	streamCSV(c, "invoices.csv", header, rows)
}

func (s *Server) getInvoice(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	inv, err := s.invoices.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, inv)
}

type interimInvoiceRequest struct {
	SubscriptionCode string `json:"subscription_code"`
	// Support marks the request as operator initiated; it changes the
	// cause reported to Trunk, not the issuance path.
	Support bool `json:"support"`
}

// requestInterimInvoice accepts the job and defers issuance to the
// queue so the HTTP response never waits on the Rater.
func (s *Server) requestInterimInvoice(c *gin.Context) {
	var req interimInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	code := req.SubscriptionCode
	if sub := c.Param("sub"); sub != "" {
		code = sub
	}
	if code == "" {
		abortWithError(c, fmt.Errorf("%w: subscription_code is required", errBadRequest))
		return
	}
	if _, err := s.coordinator.GetByCode(c.Request.Context(), code); err != nil {
		abortWithError(c, err)
		return
	}
	cause := invdomain.CauseUserRequest
	if req.Support {
		cause = invdomain.CauseSupportRequest
	}
	err := s.queue.Enqueue(c.Request.Context(), invservice.TaskInterimInvoice, invservice.InterimTaskPayload{
		SubscriptionCode: code,
		Cause:            cause,
		OnDemand:         true,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondMessage(c, http.StatusAccepted, "interim invoice requested")
}

func (s *Server) listSubscriptionInvoices(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	sub, err := s.coordinator.GetByCode(c.Request.Context(), c.Param("sub"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	filter := invdomain.ListFilter{
		SubscriptionID: sub.ID,
		Status:         ledger.Status(c.Query("status")),
		InvoiceType:    invdomain.InvoiceType(c.Query("invoice_type")),
		OrderBy:        c.Query("order_by"),
	}
	invoices, count, err := s.invoices.List(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, invoices, count, page)
}

func (s *Server) listBaseInvoices(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var filter invdomain.BaseListFilter
	if raw := c.Query("subscription_code"); raw != "" {
		sub, err := s.coordinator.GetByCode(c.Request.Context(), raw)
		if err != nil {
			abortWithError(c, err)
			return
		}
		filter.SubscriptionID = sub.ID
	}
	filter.TrackingCode = c.Query("tracking_code")
	filter.OperationType = ledger.OperationType(c.Query("operation_type"))
	filter.Status = ledger.Status(c.Query("status"))
	filter.OrderBy = c.Query("order_by")
	invoices, count, err := s.invoices.ListBase(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, invoices, count, page)
}

func (s *Server) getBaseInvoice(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	inv, err := s.invoices.GetBase(c.Request.Context(), s.db, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, inv)
}
