package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) listRuntimeConfigs(c *gin.Context) {
	rows, err := s.runtimeConfigs.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, rows)
}

type setRuntimeConfigRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// setRuntimeConfig upserts the key and kicks off a background profile
// refresh so the new value reaches every allocated subscription.
func (s *Server) setRuntimeConfig(c *gin.Context) {
	var req setRuntimeConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	row, err := s.runtimeConfigs.Set(c.Request.Context(), req.Key, req.Value)
	if err != nil {
		abortWithError(c, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.coordinator.ApplyRuntimeConfigChange(ctx); err != nil {
			s.log.Error("runtime config fan-out failed",
				zap.String("key", req.Key), zap.Error(err))
		}
	}()
	respond(c, http.StatusOK, row)
}
