package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"github.com/smallbiznis/trunkgate/pkg/money"
)

func parsePage(c *gin.Context) (pagination.Page, error) {
	var page pagination.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		return page, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return page, nil
}

func parseID(c *gin.Context, param string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.Param(param))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s", errBadIdentifier, param)
	}
	return id, nil
}

// parseQueryID reads a required snowflake id query parameter.
func parseQueryID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.Query(name))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s", errBadIdentifier, name)
	}
	return id, nil
}

// parseUnixParam reads an optional unix-seconds query parameter.
func parseUnixParam(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errBadRequest, name)
	}
	t := time.Unix(secs, 0).UTC()
	return &t, nil
}

// parseAmountParam reads an optional currency-hundredths parameter.
func parseAmountParam(c *gin.Context, name string) (*money.Amount, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errBadRequest, name)
	}
	amount := money.Amount(n)
	return &amount, nil
}
