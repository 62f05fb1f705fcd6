package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/httpx"
)

// RequireRoles ensures the requester's role is one of the allowed roles.
// Usage: route(..., RequireRoles("admin"))
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := httpx.Role(c)
			if role == "" {
				return httpx.FailStatus(c, http.StatusForbidden, httpx.ErrCodeForbidden, "role missing")
			}
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return httpx.FailStatus(c, http.StatusForbidden, httpx.ErrCodeForbidden, "access denied")
		}
	}
}
