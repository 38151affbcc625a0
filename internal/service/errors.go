package service

import "errors"

// Errors returned by SessionService and the HTTP gates.  Handlers map them
// onto status codes; wrapped variants keep the sentinel reachable through
// errors.Is.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailTaken           = errors.New("email already registered")
	ErrBusinessNameRequired = errors.New("business name is required")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthenticated      = errors.New("not authenticated")
	ErrCsrfMismatch         = errors.New("csrf token mismatch")
	ErrInsufficientRole     = errors.New("insufficient permissions")
	ErrSessionExpired       = errors.New("session expired")
)
