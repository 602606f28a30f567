package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	branchdomain "github.com/smallbiznis/trunkgate/internal/branch/domain"
	branchservice "github.com/smallbiznis/trunkgate/internal/branch/service"
	"github.com/smallbiznis/trunkgate/pkg/money"
)

type createBranchRequest struct {
	BranchCode string                              `json:"branch_code" binding:"required"`
	Name       string                              `json:"name"`
	MinRate    money.Amount                        `json:"min_rate" binding:"required"`
	MaxRate    money.Amount                        `json:"max_rate" binding:"required"`
	Prefixes   map[branchdomain.CallClass][]string `json:"prefixes"`
}

func (s *Server) createBranch(c *gin.Context) {
	var req createBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	branch, err := s.branches.Create(c.Request.Context(), branchservice.CreateBranchRequest{
		BranchCode: req.BranchCode,
		Name:       req.Name,
		MinRate:    req.MinRate,
		MaxRate:    req.MaxRate,
		Prefixes:   req.Prefixes,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, branch)
}

func (s *Server) getBranch(c *gin.Context) {
	branch, err := s.branches.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, branch)
}

func (s *Server) listBranches(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	branches, count, err := s.branches.List(c.Request.Context(), page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, branches, count, page)
}

type upsertDestinationRequest struct {
	Prefix      string                       `json:"prefix"`
	Name        string                       `json:"name"`
	Code        branchdomain.DestinationCode `json:"code"`
	CountryCode string                       `json:"country_code"`
}

func (r upsertDestinationRequest) toService() branchservice.UpsertDestinationRequest {
	return branchservice.UpsertDestinationRequest{
		Prefix:      r.Prefix,
		Name:        r.Name,
		Code:        r.Code,
		CountryCode: r.CountryCode,
	}
}

func (s *Server) listDestinations(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	dests, count, err := s.destinations.List(c.Request.Context(), page, c.Query("order_by"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondList(c, dests, count, page)
}

func (s *Server) createDestination(c *gin.Context) {
	var req upsertDestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	dest, err := s.destinations.Create(c.Request.Context(), req.toService())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, dest)
}

func (s *Server) updateDestination(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	var req upsertDestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	dest, err := s.destinations.Update(c.Request.Context(), id, req.toService())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, dest)
}

func (s *Server) deleteDestination(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := s.destinations.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "destination deleted")
}

func (s *Server) destinationNames(c *gin.Context) {
	names, err := s.destinations.Names(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, names)
}
