package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/middleware"
	"github.com/kupapos/kupa/internal/service"
)

// Session reports the principal resolved by the auth gate.  Clients use it to
// probe whether their cookies are still good without loading the user.
func Session(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return service.ErrUnauthenticated
	}
	return c.JSON(http.StatusOK, echo.Map{"principal": toPrincipalDTO(p)})
}

// Heartbeat is a state-changing no-op behind the CSRF gate.  A 200 proves the
// client holds a live session and a matching CSRF token.
func Heartbeat(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return service.ErrUnauthenticated
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "userId": p.ID, "at": time.Now().UTC()})
}
