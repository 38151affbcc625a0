package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/middleware"
	"github.com/kupapos/kupa/internal/service"
)

// LegacyAuthHandler serves the bearer token endpoints kept for older
// clients.  Tokens travel in the JSON body; there is no refresh and no CSRF.
type LegacyAuthHandler struct {
	Sessions *service.SessionService
}

func NewLegacyAuthHandler(s *service.SessionService) *LegacyAuthHandler {
	return &LegacyAuthHandler{Sessions: s}
}

func (h *LegacyAuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed body", service.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Sessions.Login(ctx, service.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse(sess))
}

func (h *LegacyAuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed body", service.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Sessions.Register(ctx, req.registration())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tokenResponse(sess))
}

// Logout cannot revoke a legacy token; clients discard it.
func (h *LegacyAuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	h.Sessions.Logout(ctx, middleware.BearerToken(c), "")
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

func (h *LegacyAuthHandler) Me(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Sessions.CurrentUser(ctx, middleware.BearerToken(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserDTO(u)})
}

func tokenResponse(sess service.Session) echo.Map {
	return echo.Map{
		"user":      toUserDTO(sess.User),
		"token":     sess.Tokens.AccessToken,
		"expiresAt": sess.Tokens.AccessExpiresAt.UTC(),
	}
}
