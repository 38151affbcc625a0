// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// session service to distinguish between different failure scenarios
// without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an account is created with an email that
// is already registered.
var ErrEmailExists = errors.New("email already exists")
