package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/service"
)

// CSRF enforces the double-submit check on state-changing methods: the
// header value must equal the CSRF cookie.  Safe methods pass untouched.
func CSRF(cookieName, headerName string) echo.MiddlewareFunc {
	if cookieName == "" {
		cookieName = CSRFCookie
	}
	if headerName == "" {
		headerName = CSRFHeader
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !stateChanging(c.Request().Method) {
				return next(c)
			}
			ck, err := c.Cookie(cookieName)
			if err != nil || ck.Value == "" {
				return service.ErrCsrfMismatch
			}
			hdr := c.Request().Header.Get(headerName)
			if hdr == "" || subtle.ConstantTimeCompare([]byte(hdr), []byte(ck.Value)) != 1 {
				return service.ErrCsrfMismatch
			}
			return next(c)
		}
	}
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
