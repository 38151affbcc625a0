// Package router wires handlers and gates onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/handler"
	"github.com/kupapos/kupa/internal/middleware"
	"github.com/kupapos/kupa/internal/model"
)

// RegisterRoutes registers routes that need no session: the health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers the cookie session endpoints under /auth.  limit
// guards the credential endpoints; pass nil to skip rate limiting.  None of
// these routes require CSRF: login and register precede the CSRF cookie, and
// refresh and logout only ever shorten or renew the caller's own session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.POST("/login", a.Login, guard(limit)...)
	g.POST("/register", a.Register, guard(limit)...)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.GET("/me", a.Me)
}

// RegisterLegacyAuth registers the bearer token variant under /legacy/auth.
func RegisterLegacyAuth(e *echo.Echo, l *handler.LegacyAuthHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/legacy/auth")
	g.POST("/login", l.Login, guard(limit)...)
	g.POST("/register", l.Register, guard(limit)...)
	g.POST("/logout", l.Logout)
	g.GET("/me", l.Me)
}

// Protected returns a group whose routes run the gates in order: access
// cookie, role, then CSRF on state-changing methods.  Downstream modules
// mount their routes on it and read the caller through
// middleware.PrincipalFrom.
func Protected(e *echo.Echo, prefix string, auth middleware.Authenticator, roles ...model.Role) *echo.Group {
	return e.Group(prefix,
		middleware.CookieAuth(auth, middleware.CookieAuthOptions{Roles: roles}),
		middleware.CSRF(middleware.CSRFCookie, middleware.CSRFHeader),
	)
}

// RegisterSession mounts the session probe on a protected group.
func RegisterSession(e *echo.Echo, auth middleware.Authenticator) {
	g := Protected(e, "/api/session", auth)
	g.GET("", handler.Session)
	g.POST("/heartbeat", handler.Heartbeat)
}

// RegisterLegacySession mounts the session probe for bearer token clients.
func RegisterLegacySession(e *echo.Echo, auth middleware.Authenticator) {
	g := e.Group("/legacy/api/session", middleware.BearerAuth(auth))
	g.GET("", handler.Session)
}

func guard(limit echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if limit == nil {
		return nil
	}
	return []echo.MiddlewareFunc{limit}
}
