package middleware

// context.go holds the accessors for values the auth gates store on the echo
// context.  Handlers read the principal through PrincipalFrom only.

import (
	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/model"
)

const principalKey = "auth.principal"

// SetPrincipal attaches p to the request.
func SetPrincipal(c echo.Context, p model.Principal) { c.Set(principalKey, p) }

// PrincipalFrom returns the principal stored by an auth gate.  The boolean is
// false on public routes and on optional gates without a valid token.
func PrincipalFrom(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(principalKey).(model.Principal)
	return p, ok && p.ID != ""
}

// userID returns the authenticated user id or "anon".  Rate limit keys use it.
func userID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return p.ID
	}
	return "anon"
}
