package middleware

import (
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/model"
	"github.com/kupapos/kupa/internal/service"
)

// RequireRole rejects requests whose principal holds none of roles.  It must
// run after an auth gate; with no roles it only requires a principal.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := slices.Clone(roles)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return service.ErrUnauthenticated
			}
			if len(allowed) > 0 && !slices.Contains(allowed, p.Role) {
				return service.ErrInsufficientRole
			}
			return next(c)
		}
	}
}
