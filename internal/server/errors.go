package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paydomain "github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/ratelimit"
)

// errorResponse keeps the `detail` body the mobile and web clients parse.
type errorResponse struct {
	Detail string `json:"detail"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// requestError is a rejection of the request shape, before any domain call.
type requestError struct {
	detail string
}

func (e *requestError) Error() string { return e.detail }

func invalidRequestError(detail string) error {
	return &requestError{detail: detail}
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	if payErr, ok := paydomain.AsError(err); ok {
		return payErr.Status, errorResponse{Detail: payErr.Message}
	}

	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusUnprocessableEntity, errorResponse{Detail: reqErr.detail}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusUnprocessableEntity, errorResponse{Detail: "Invalid request"}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Detail: "Not authenticated"}
	case errors.Is(err, ratelimit.ErrLockTimeout):
		return http.StatusServiceUnavailable, errorResponse{Detail: "Wallet is busy, please retry"}
	default:
		return http.StatusInternalServerError, errorResponse{Detail: "Internal server error"}
	}
}

func classifyErrorForLog(err error) (string, string) {
	if payErr, ok := paydomain.AsError(err); ok {
		return "myeclpay", payErr.ErrorCode()
	}
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr), errors.Is(err, ErrInvalidRequest):
		return "validation_error", "invalid_request"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized", "unauthorized"
	case errors.Is(err, ratelimit.ErrLockTimeout):
		return "unavailable", "wallet_lock_timeout"
	default:
		return "internal_error", "internal_error"
	}
}
