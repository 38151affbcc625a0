package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/kupapos/kupa/internal/model"
	"github.com/kupapos/kupa/internal/service"
)

type stubAuth map[string]model.Principal

func (s stubAuth) Authenticate(_ context.Context, tok string) (model.Principal, error) {
	p, ok := s[tok]
	if !ok {
		return model.Principal{}, service.ErrUnauthenticated
	}
	return p, nil
}

var (
	admin   = model.Principal{ID: "u-admin", Role: model.RoleAdmin, BusinessID: "b1"}
	cashier = model.Principal{ID: "u-user", Role: model.RoleUser, BusinessID: "b1"}
	tokens  = stubAuth{"admin-token": admin, "user-token": cashier}
)

func newContext(method string, mutate func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/api/session", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func withCookie(name, value string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func okHandler(c echo.Context) error {
	p, ok := PrincipalFrom(c)
	if !ok {
		return c.String(http.StatusOK, "anonymous")
	}
	return c.String(http.StatusOK, p.ID)
}

func TestCookieAuth(t *testing.T) {
	mw := CookieAuth(tokens, CookieAuthOptions{})

	t.Run("valid cookie", func(t *testing.T) {
		c, rec := newContext(http.MethodGet, withCookie(AccessCookie, "admin-token"))
		require.NoError(t, mw(okHandler)(c))
		require.Equal(t, "u-admin", rec.Body.String())
	})

	t.Run("missing cookie", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, nil)
		require.ErrorIs(t, mw(okHandler)(c), service.ErrUnauthenticated)
	})

	t.Run("invalid token", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, withCookie(AccessCookie, "forged"))
		require.ErrorIs(t, mw(okHandler)(c), service.ErrUnauthenticated)
	})
}

func TestCookieAuthOptional(t *testing.T) {
	mw := CookieAuth(tokens, CookieAuthOptions{Optional: true})

	c, rec := newContext(http.MethodGet, withCookie(AccessCookie, "forged"))
	require.NoError(t, mw(okHandler)(c))
	require.Equal(t, "anonymous", rec.Body.String())

	c, rec = newContext(http.MethodGet, withCookie(AccessCookie, "user-token"))
	require.NoError(t, mw(okHandler)(c))
	require.Equal(t, "u-user", rec.Body.String())
}

func TestCookieAuthRoles(t *testing.T) {
	mw := CookieAuth(tokens, CookieAuthOptions{Roles: []model.Role{model.RoleAdmin, model.RoleManager}})

	c, _ := newContext(http.MethodGet, withCookie(AccessCookie, "user-token"))
	require.ErrorIs(t, mw(okHandler)(c), service.ErrInsufficientRole)

	c, rec := newContext(http.MethodGet, withCookie(AccessCookie, "admin-token"))
	require.NoError(t, mw(okHandler)(c))
	require.Equal(t, "u-admin", rec.Body.String())
}

func TestBearerAuth(t *testing.T) {
	mw := BearerAuth(tokens)

	c, rec := newContext(http.MethodGet, func(r *http.Request) { r.Header.Set("Authorization", "Bearer user-token") })
	require.NoError(t, mw(okHandler)(c))
	require.Equal(t, "u-user", rec.Body.String())

	c, _ = newContext(http.MethodGet, func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcg==") })
	require.ErrorIs(t, mw(okHandler)(c), service.ErrUnauthenticated)

	// the access cookie is not a bearer credential
	c, _ = newContext(http.MethodGet, withCookie(AccessCookie, "user-token"))
	require.ErrorIs(t, mw(okHandler)(c), service.ErrUnauthenticated)
}

func TestRequireRoleWithoutPrincipal(t *testing.T) {
	c, _ := newContext(http.MethodGet, nil)
	require.ErrorIs(t, RequireRole(model.RoleAdmin)(okHandler)(c), service.ErrUnauthenticated)
}

func TestCSRF(t *testing.T) {
	mw := CSRF("", "")

	t.Run("safe method passes", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, nil)
		require.NoError(t, mw(okHandler)(c))
	})

	t.Run("matching header", func(t *testing.T) {
		c, _ := newContext(http.MethodPost, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: CSRFCookie, Value: "abc"})
			r.Header.Set(CSRFHeader, "abc")
		})
		require.NoError(t, mw(okHandler)(c))
	})

	for name, mutate := range map[string]func(*http.Request){
		"no cookie": func(r *http.Request) { r.Header.Set(CSRFHeader, "abc") },
		"no header": withCookie(CSRFCookie, "abc"),
		"mismatch": func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: CSRFCookie, Value: "abc"})
			r.Header.Set(CSRFHeader, "abd")
		},
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newContext(http.MethodDelete, mutate)
			require.ErrorIs(t, mw(okHandler)(c), service.ErrCsrfMismatch)
		})
	}
}

func TestGateOrderTokenRoleCSRF(t *testing.T) {
	chain := func(h echo.HandlerFunc) echo.HandlerFunc {
		return CookieAuth(tokens, CookieAuthOptions{Roles: []model.Role{model.RoleAdmin}})(CSRF("", "")(h))
	}

	// no token and no csrf header: authentication is reported first
	c, _ := newContext(http.MethodPost, nil)
	require.ErrorIs(t, chain(okHandler)(c), service.ErrUnauthenticated)

	// wrong role and no csrf header: role is reported before csrf
	c, _ = newContext(http.MethodPost, withCookie(AccessCookie, "user-token"))
	require.ErrorIs(t, chain(okHandler)(c), service.ErrInsufficientRole)

	c, _ = newContext(http.MethodPost, withCookie(AccessCookie, "admin-token"))
	require.ErrorIs(t, chain(okHandler)(c), service.ErrCsrfMismatch)
}
