package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
// Admin passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, has := range userRoles {
				if strings.EqualFold(has, RoleAdmin) {
					return next(c)
				}
				for _, required := range roles {
					if strings.EqualFold(has, required) {
						return next(c)
					}
				}
			}
			if len(userRoles) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireSelfOrRole allows the request when the :id path parameter is the
// caller's own account id, or when the caller holds one of roles.
func RequireSelfOrRole(param string, roles ...string) echo.MiddlewareFunc {
	byRole := RequireRole(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		checked := byRole(next)
		return func(c echo.Context) error {
			if s := SessionFromContext(c.Request().Context()); s != nil && c.Param(param) == s.AccountID.String() {
				return next(c)
			}
			return checked(c)
		}
	}
}
