package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	packdomain "github.com/smallbiznis/trunkgate/internal/pack/domain"
	packservice "github.com/smallbiznis/trunkgate/internal/pack/service"
	"gorm.io/gorm"
)

func (s *Server) listPackages(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	filter := packdomain.ListFilter{
		PackageCode: c.Query("package_code"),
		OrderBy:     c.Query("order_by"),
	}
	packages, count, err := s.packs.ListPackages(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, packages, count, page)
}

func (s *Server) createPackage(c *gin.Context) {
	var req packservice.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	pkg, err := s.packs.CreatePackage(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, pkg)
}

func (s *Server) getPackage(c *gin.Context) {
	pkg, err := s.packs.GetPackage(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, pkg)
}

func (s *Server) updatePackage(c *gin.Context) {
	var req packservice.UpdatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	pkg, err := s.packs.UpdatePackage(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, pkg)
}

func (s *Server) listPackageInvoices(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var filter packdomain.InvoiceListFilter
	if raw := c.Query("subscription_code"); raw != "" {
		sub, err := s.coordinator.GetByCode(c.Request.Context(), raw)
		if err != nil {
			abortWithError(c, err)
			return
		}
		filter.SubscriptionID = sub.ID
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: active", errBadRequest))
			return
		}
		filter.Active = &active
	}
	filter.Status = c.Query("status")
	filter.OrderBy = c.Query("order_by")
	invoices, count, err := s.packs.ListInvoices(c.Request.Context(), filter, page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, invoices, count, page)
}

func (s *Server) getPackageInvoice(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	inv, err := s.packs.GetInvoice(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, inv)
}

type enrollPackageRequest struct {
	SubscriptionCode string `json:"subscription_code" binding:"required"`
	PackageCode      string `json:"package_code" binding:"required"`
	AutoRenew        bool   `json:"auto_renew"`
}

func (s *Server) enrollPackage(c *gin.Context) {
	var req enrollPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sub, err := s.coordinator.GetByCode(c.Request.Context(), req.SubscriptionCode)
	if err != nil {
		abortWithError(c, err)
		return
	}
	err = s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return s.packs.Enroll(c.Request.Context(), tx, sub.ID, req.PackageCode, req.AutoRenew)
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondMessage(c, http.StatusCreated, "package enrolled")
}
