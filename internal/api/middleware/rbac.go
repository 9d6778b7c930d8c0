package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/redbank/donation-system/internal/api/metrics"
	"github.com/redbank/donation-system/internal/core/domain"
)

// RBAC admits only callers whose role, as set by Auth, is one of roles.
// Denials surface as domain.ErrForbidden through the central error handler.
func RBAC(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ContextRole).(string)
			if !allowed[role] {
				metrics.AuthFailuresTotal.WithLabelValues("role_denied").Inc()
				return fmt.Errorf("%w: role %q cannot %s %s", domain.ErrForbidden, role, c.Request().Method, c.Path())
			}
			return next(c)
		}
	}
}
