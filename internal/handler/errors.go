package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/logx"
	"github.com/kupapos/kupa/internal/service"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ErrorHandler renders every error returned by a handler or gate as
// {"error","code"} with the status its kind maps to.
func ErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		log := logx.FromContext(c.Request().Context())
		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed", "path", c.Path(), "error", err)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.Warn("write error response", "error", werr)
		}
	}
}

func classify(err error) (int, errorBody) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{err.Error(), "invalid_input"}
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusBadRequest, errorBody{err.Error(), "email_taken"}
	case errors.Is(err, service.ErrBusinessNameRequired):
		return http.StatusBadRequest, errorBody{err.Error(), "business_name_required"}
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{err.Error(), "invalid_credentials"}
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{err.Error(), "unauthenticated"}
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized, errorBody{err.Error(), "session_expired"}
	case errors.Is(err, service.ErrCsrfMismatch):
		return http.StatusForbidden, errorBody{err.Error(), "csrf_mismatch"}
	case errors.Is(err, service.ErrInsufficientRole):
		return http.StatusForbidden, errorBody{err.Error(), "forbidden"}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, errorBody{msg, "http_error"}
	}
	return http.StatusInternalServerError, errorBody{"internal server error", "internal_error"}
}
