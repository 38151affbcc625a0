package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/middleware"
	"github.com/kupapos/kupa/internal/service"
)

// requestTimeout bounds the store and database work of one auth call.
const requestTimeout = 5 * time.Second

// AuthHandler serves the cookie based session endpoints under /auth.
type AuthHandler struct {
	Sessions *service.SessionService
	Cookies  Cookies
}

func NewAuthHandler(s *service.SessionService, cookies Cookies) *AuthHandler {
	return &AuthHandler{Sessions: s, Cookies: cookies}
}

// Login: check credentials, set session cookies, return the user.
func (h *AuthHandler) Login(c echo.Context) error {
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
	if err := h.Cookies.SetSession(c, sess.Tokens); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserDTO(sess.User), "message": "Logged in successfully"})
}

// Register: create business and owner, then behave like Login.
func (h *AuthHandler) Register(c echo.Context) error {
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
	if err := h.Cookies.SetSession(c, sess.Tokens); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": toUserDTO(sess.User), "message": "Account created successfully"})
}

// Refresh rotates the refresh cookie.  Any failure clears the session
// cookies; an unusable token answers 401 so the client goes back to login.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Sessions.Refresh(ctx, cookieValue(c, middleware.RefreshCookie))
	if err != nil {
		h.Cookies.Clear(c)
		if errors.Is(err, service.ErrSessionExpired) {
			return err
		}
		return fmt.Errorf("refresh session: %w", err)
	}
	if err := h.Cookies.SetSession(c, sess.Tokens); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserDTO(sess.User), "message": "Session refreshed"})
}

// Logout always succeeds and always clears the cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	h.Sessions.Logout(ctx, cookieValue(c, middleware.AccessCookie), cookieValue(c, middleware.RefreshCookie))
	h.Cookies.Clear(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// Me returns the user behind the access cookie.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Sessions.CurrentUser(ctx, cookieValue(c, middleware.AccessCookie))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserDTO(u)})
}
