package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Role names carried in JWT claims. ADMIN passes every role gate.
const (
	RolePatient   = "PATIENT"
	RoleDoctor    = "DOCTOR"
	RoleFrontdesk = "FRONTDESK"
	RoleAdmin     = "ADMIN"
)

// RequireRole returns middleware that checks if the caller has one of the
// specified roles. ADMIN always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			callerRole := RoleFromContext(c.Request().Context())
			if callerRole == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if callerRole == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
