// Package apperr defines the error kinds surfaced by the progress and settlement core.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyApplied    = errors.New("already applied")
	ErrAlreadySubmitted  = errors.New("already submitted")
	ErrAlreadyApproved   = errors.New("already approved")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPriceLocked       = errors.New("task price is locked by an approved completion")
	ErrStorageFailure    = errors.New("storage failure")

	// ErrNoActiveApplication matches ErrNotFound with errors.Is.
	ErrNoActiveApplication = fmt.Errorf("%w: no active application", ErrNotFound)
)

var kinds = []error{
	ErrNotFound,
	ErrForbidden,
	ErrAlreadyApplied,
	ErrAlreadySubmitted,
	ErrAlreadyApproved,
	ErrAlreadyClaimed,
	ErrInsufficientFunds,
	ErrInvalidAmount,
	ErrInvalidTransition,
	ErrPriceLocked,
	ErrStorageFailure,
}

// Kind returns the taxonomy sentinel matched by err, or nil.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Storage passes taxonomy errors through and wraps anything else as ErrStorageFailure.
func Storage(err error) error {
	if err == nil || Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}

// Forbiddenf builds an ErrForbidden with context.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// NotFoundf builds an ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
