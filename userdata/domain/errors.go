package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrThrottled       = errors.New("rate limit exceeded")
	ErrUnauthenticated = errors.New("authentication required")
	ErrValidation      = errors.New("invalid request body")
	ErrStorage         = errors.New("storage failure")

	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// ValidationError descreve o primeiro campo rejeitado. Fica só no log.
type ValidationError struct {
	Kind   EndpointKind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", e.Kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StorageError embrulha qualquer falha do storage durante uma operação.
type StorageError struct {
	Op    string
	Email string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Email, e.Err)
}

// Unwrap expõe tanto ErrStorage quanto a causa (ex.: ErrUserNotFound).
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }
