package apilog

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware records every request after the handler returns. The
// insert runs detached so a slow log database never delays responses.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := &APILog{
			Method:    c.Request.Method,
			Path:      c.FullPath(),
			Query:     c.Request.URL.RawQuery,
			Status:    c.Writer.Status(),
			LatencyMs: time.Since(start).Milliseconds(),
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if entry.Path == "" {
			entry.Path = c.Request.URL.Path
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Record(ctx, entry)
		}()
	}
}
