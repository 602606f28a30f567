package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	branchdomain "github.com/smallbiznis/trunkgate/internal/branch/domain"
	creditdomain "github.com/smallbiznis/trunkgate/internal/credit/domain"
	customerdomain "github.com/smallbiznis/trunkgate/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/trunkgate/internal/invoice/domain"
	"github.com/smallbiznis/trunkgate/internal/ledger"
	operatordomain "github.com/smallbiznis/trunkgate/internal/operator/domain"
	packdomain "github.com/smallbiznis/trunkgate/internal/pack/domain"
	"github.com/smallbiznis/trunkgate/internal/rater"
	runtimeconfigdomain "github.com/smallbiznis/trunkgate/internal/runtimeconfig/domain"
	subdomain "github.com/smallbiznis/trunkgate/internal/subscription/domain"
	"github.com/smallbiznis/trunkgate/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	errUnauthorized  = errors.New("unauthorized")
	errBadRequest    = errors.New("invalid request")
	errBadIdentifier = errors.New("invalid identifier")
)

// abortWithError defers the response to the error middleware.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// errorMiddleware turns the last handler error into the envelope with
// the taxonomy status code.
func errorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		if last == nil {
			return
		}
		status, kind, hint := classify(last.Err)
		env := envelope{
			Status:  "error",
			Error:   kind,
			Hint:    hint,
			Message: last.Err.Error(),
			UserID:  c.GetString(ctxUserID),
			Time:    time.Now().UTC().Format(time.RFC3339),
		}
		c.AbortWithStatusJSON(status, env)
	}
}

// classify maps an error to (http status, taxonomy kind, hint).
func classify(err error) (int, string, string) {
	switch {
	case isValidation(err):
		return http.StatusBadRequest, "validation", "check the request payload and query parameters"
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "auth", "provide a valid token"
	case errors.Is(err, creditdomain.ErrOfflineApprovalOnly),
		errors.Is(err, packdomain.ErrImmutable):
		return http.StatusForbidden, "permission", "the operation is not allowed in this state"
	case isNotFound(err):
		return http.StatusNotFound, "not-found", ""
	case errors.Is(err, rater.ErrTimeout):
		return http.StatusRequestTimeout, "timeout", "the rating engine did not answer in time"
	case isConflict(err):
		return http.StatusConflict, "conflict", "the operation violates a ledger invariant"
	case errors.Is(err, rater.ErrTransport):
		return http.StatusServiceUnavailable, "transport", "the rating engine is unreachable"
	case errors.Is(err, rater.ErrRater), errors.Is(err, rater.ErrProtocolMismatch):
		return http.StatusBadGateway, "rater-error", "the rating engine rejected the operation"
	default:
		return http.StatusInternalServerError, "internal", ""
	}
}

func isValidation(err error) bool {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, errBadIdentifier),
		errors.Is(err, pagination.ErrBadOrderField),
		errors.Is(err, packdomain.ErrBadDue),
		errors.Is(err, creditdomain.ErrBadUsedFor),
		errors.Is(err, creditdomain.ErrBadAmount),
		errors.Is(err, creditdomain.ErrDecreaseNeedsTarget),
		errors.Is(err, customerdomain.ErrInvalidCode),
		errors.Is(err, branchdomain.ErrInvalidCode),
		errors.Is(err, subdomain.ErrInvalidCause),
		errors.Is(err, subdomain.ErrInvalidType):
		return true
	}
	return false
}

func isNotFound(err error) bool {
	switch {
	case errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, subdomain.ErrNotFound),
		errors.Is(err, branchdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, creditdomain.ErrNotFound),
		errors.Is(err, creditdomain.ErrPaymentNotFound),
		errors.Is(err, packdomain.ErrNotFound),
		errors.Is(err, operatordomain.ErrNotFound),
		errors.Is(err, runtimeconfigdomain.ErrNotFound),
		errors.Is(err, rater.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	}
	return false
}

func isConflict(err error) bool {
	switch {
	case errors.Is(err, ledger.ErrCoolDown),
		errors.Is(err, ledger.ErrPaymentInFlight),
		errors.Is(err, ledger.ErrRevoked),
		errors.Is(err, customerdomain.ErrDuplicateCode),
		errors.Is(err, subdomain.ErrDuplicateCode),
		errors.Is(err, branchdomain.ErrDuplicateCode),
		errors.Is(err, packdomain.ErrDuplicateCode),
		errors.Is(err, operatordomain.ErrDuplicateCode),
		errors.Is(err, packdomain.ErrActiveExists),
		errors.Is(err, creditdomain.ErrInsufficientCredit),
		errors.Is(err, creditdomain.ErrSameStatus),
		errors.Is(err, creditdomain.ErrNotPayable),
		errors.Is(err, creditdomain.ErrTerminal),
		errors.Is(err, invoicedomain.ErrInterimInFlight),
		errors.Is(err, invoicedomain.ErrTooSoon),
		errors.Is(err, subdomain.ErrUnlimited),
		errors.Is(err, subdomain.ErrSameType),
		errors.Is(err, subdomain.ErrAccountExists),
		errors.Is(err, subdomain.ErrBlacklisted),
		errors.Is(err, subdomain.ErrDeallocated),
		errors.Is(err, subdomain.ErrBaseTooLow),
		errors.Is(err, subdomain.ErrNoActivePackage):
		return true
	}
	return false
}
