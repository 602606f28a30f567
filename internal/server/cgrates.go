package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/trunkgate/internal/reactor"
)

type cgratesNotificationRequest struct {
	SubscriptionCode string `json:"subscription_code" binding:"required"`
}

// cgratesNotification accepts a threshold callback and defers the work
// to the queue. The Rater's notify hook must never block on billing.
func (s *Server) cgratesNotification(c *gin.Context) {
	event := c.Param("type")
	switch event {
	case reactor.EventEightyPostpaid, reactor.EventHundredPostpaid,
		reactor.EventEightyPrepaid, reactor.EventHundredPrepaid,
		reactor.EventExpiryPrepaid:
	default:
		abortWithError(c, fmt.Errorf("%w: unknown notification type %q", errBadRequest, event))
		return
	}
	var req cgratesNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	err := s.queue.Enqueue(c.Request.Context(), reactor.TaskRaterNotification, reactor.NotificationPayload{
		Type:             event,
		SubscriptionCode: req.SubscriptionCode,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// cgratesExpiry is the action-plan expiry hook. It carries the
// subscription in the path because the Rater templates the URL.
func (s *Server) cgratesExpiry(c *gin.Context) {
	code := c.Param("subscription")
	if code == "" {
		abortWithError(c, fmt.Errorf("%w: subscription", errBadIdentifier))
		return
	}
	err := s.queue.Enqueue(c.Request.Context(), reactor.TaskRaterNotification, reactor.NotificationPayload{
		Type:             reactor.EventExpiryPrepaid,
		SubscriptionCode: code,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
