package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/model"
	"github.com/kupapos/kupa/internal/service"
)

// Cookie and header names shared by the gates and the auth handlers.
const (
	AccessCookie  = "kupa_access_token"
	RefreshCookie = "kupa_refresh_token"
	CSRFCookie    = "kupa_csrf_token"
	CSRFHeader    = "x-csrf-token"
)

// Authenticator resolves an access token to a principal.
// *service.SessionService implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (model.Principal, error)
}

type CookieAuthOptions struct {
	// CookieName defaults to AccessCookie.
	CookieName string
	// Optional lets requests without a valid token through anonymously.
	Optional bool
	// Roles restricts access when non-empty.
	Roles []model.Role
}

// CookieAuth reads the access token from a cookie, verifies it and stores
// the principal on the context.  Failures surface as service.ErrUnauthenticated
// and service.ErrInsufficientRole.
func CookieAuth(auth Authenticator, opts CookieAuthOptions) echo.MiddlewareFunc {
	name := opts.CookieName
	if name == "" {
		name = AccessCookie
	}
	return gate(auth, opts.Optional, opts.Roles, func(c echo.Context) string {
		ck, err := c.Cookie(name)
		if err != nil {
			return ""
		}
		return ck.Value
	})
}

// BearerAuth is CookieAuth for the legacy scheme: the token travels in an
// "Authorization: Bearer" header.
func BearerAuth(auth Authenticator, roles ...model.Role) echo.MiddlewareFunc {
	return gate(auth, false, roles, BearerToken)
}

// BearerToken returns the token from an "Authorization: Bearer" header or "".
func BearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func gate(auth Authenticator, optional bool, roles []model.Role, extract func(echo.Context) string) echo.MiddlewareFunc {
	requireRole := RequireRole(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withRole := requireRole(next)
		return func(c echo.Context) error {
			raw := extract(c)
			if raw == "" {
				if optional {
					return next(c)
				}
				return service.ErrUnauthenticated
			}
			p, err := auth.Authenticate(c.Request().Context(), raw)
			if err != nil {
				if optional {
					return next(c)
				}
				return err
			}
			SetPrincipal(c, p)
			return withRole(c)
		}
	}
}
