package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meridianpress/editorial-backend/internal/model"
)

// RequirePermission enforces that the authenticated user's role carries
// the named permission. The role is read from context, so SessionAuth
// must run earlier in the chain. A missing or unknown role is denied with
// 403, the same as a known role without the permission.
func RequirePermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok || !model.RoleHasPermission(role, perm) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
