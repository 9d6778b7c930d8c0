package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/redbank/donation-system/internal/api/metrics"
	"github.com/redbank/donation-system/internal/core/domain"
)

// Context keys populated by Auth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// Authenticator verifies an Authorization header value.
type Authenticator interface {
	Authenticate(headerValue string) (domain.Identity, error)
}

// Auth runs the auth gate and injects the caller's identity into context.
// Rejections are returned as domain errors for the central error handler.
func Auth(gate Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := gate.Authenticate(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				metrics.AuthFailuresTotal.WithLabelValues(failureReason(err)).Inc()
				return err
			}

			c.Set(ContextUserID, id.UserID)
			c.Set(ContextRole, id.Role)

			return next(c)
		}
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingAuthHeader):
		return "missing_header"
	case errors.Is(err, domain.ErrMalformedAuthScheme):
		return "malformed_scheme"
	default:
		return "invalid_token"
	}
}
