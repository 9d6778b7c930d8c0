package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/redbank/donation-system/internal/api/middleware"
	"github.com/redbank/donation-system/internal/core/domain"
)

// identityFrom extracts the identity injected by the Auth middleware. A
// missing user id means the middleware did not run for this route.
func identityFrom(c echo.Context) (domain.Identity, error) {
	userID, _ := c.Get(middleware.ContextUserID).(string)
	role, _ := c.Get(middleware.ContextRole).(string)
	if userID == "" {
		return domain.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return domain.Identity{UserID: userID, Role: role}, nil
}

// bindAndValidate decodes the body into req and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
