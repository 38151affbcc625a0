package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/middleware"
	"github.com/kupapos/kupa/internal/service"
	"github.com/kupapos/kupa/internal/utils"
)

// Cookies writes the session cookies.  Access and refresh cookies are
// HttpOnly; the CSRF cookie is readable by scripts so the client can echo it
// in the x-csrf-token header.  All of them are SameSite=Strict and scoped to
// the whole application.
type Cookies struct {
	Secure     bool // false only in local development
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SetSession writes access and refresh cookies.  The CSRF cookie is set to
// csrf when given; otherwise the value already held by the client is kept
// and its lifetime renewed, and a new one is minted only if there is none.
func (w Cookies) SetSession(c echo.Context, t service.Tokens) error {
	csrf := t.CSRFToken
	if csrf == "" {
		if ck, err := c.Cookie(middleware.CSRFCookie); err == nil && ck.Value != "" {
			csrf = ck.Value
		} else {
			v, err := utils.NewCSRFToken()
			if err != nil {
				return err
			}
			csrf = v
		}
	}
	c.SetCookie(w.cookie(middleware.AccessCookie, t.AccessToken, w.AccessTTL, true))
	c.SetCookie(w.cookie(middleware.RefreshCookie, t.RefreshToken, w.RefreshTTL, true))
	c.SetCookie(w.cookie(middleware.CSRFCookie, csrf, w.RefreshTTL, false))
	return nil
}

// Clear expires all three session cookies.
func (w Cookies) Clear(c echo.Context) {
	for _, name := range []string{middleware.AccessCookie, middleware.RefreshCookie} {
		c.SetCookie(w.cookie(name, "", -1, true))
	}
	c.SetCookie(w.cookie(middleware.CSRFCookie, "", -1, false))
}

func (w Cookies) cookie(name, value string, ttl time.Duration, httpOnly bool) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   w.Domain,
		HttpOnly: httpOnly,
		Secure:   w.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if ttl < 0 {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		return ck
	}
	ck.MaxAge = int(ttl / time.Second)
	ck.Expires = time.Now().Add(ttl)
	return ck
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
