package domain

import "github.com/pkg/errors"

// Error taxonomy shared by every layer. Wrap with errors.Wrap to add detail;
// callers test with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrInvalid         = errors.New("invalid argument")
)
