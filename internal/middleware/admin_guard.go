package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/httpx"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
)

// AdminGuard ensures only admin users can access admin routes
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if httpx.Role(c) != marketplace.RoleAdmin {
			return httpx.FailStatus(c, http.StatusForbidden, httpx.ErrCodeForbidden, "admin access only")
		}
		return next(c)
	}
}
