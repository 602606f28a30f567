package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
)

// envelope is the uniform response body every endpoint returns.
type envelope struct {
	Status   string `json:"status"`
	Error    string `json:"error"`
	Hint     string `json:"hint"`
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	Time     string `json:"time"`
	Data     any    `json:"data"`
	Count    *int64 `json:"count,omitempty"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

func newEnvelope(c *gin.Context) envelope {
	return envelope{
		Status: "ok",
		UserID: c.GetString(ctxUserID),
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
}

func respond(c *gin.Context, status int, data any) {
	env := newEnvelope(c)
	env.Data = data
	c.JSON(status, env)
}

func respondMessage(c *gin.Context, status int, message string) {
	env := newEnvelope(c)
	env.Message = message
	c.JSON(status, env)
}

// respondList attaches count and the next/previous page links derived
// from the request's own URL.
func respondList(c *gin.Context, data any, count int64, page pagination.Page) {
	env := newEnvelope(c)
	env.Data = data
	env.Count = &count
	if !page.Bypass {
		limit := page.Limit
		if limit <= 0 {
			limit = pagination.DefaultLimit
		}
		if int64(page.Offset+limit) < count {
			env.Next = pageLink(c, limit, page.Offset+limit)
		}
		if page.Offset > 0 {
			prev := page.Offset - limit
			if prev < 0 {
				prev = 0
			}
			env.Previous = pageLink(c, limit, prev)
		}
	}
	c.JSON(http.StatusOK, env)
}

func pageLink(c *gin.Context, limit, offset int) string {
	q := c.Request.URL.Query()
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))
	u := *c.Request.URL
	u.RawQuery = q.Encode()
	return u.String()
}
