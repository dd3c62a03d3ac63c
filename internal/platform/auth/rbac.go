package auth

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/apperr"
)

// RequireRole returns middleware that admits only callers holding one of roles.
// There is no implicit superuser: Admin must be listed to pass.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return apperr.ToHTTP(ErrInvalidCredentials.WithMessage("no principal"))
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			return apperr.ToHTTP(ErrForbidden.Wrap(fmt.Errorf("role %s not in %v", p.Role, roles)))
		}
	}
}
