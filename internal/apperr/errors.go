// Package apperr is the error taxonomy of the storefront core.
//
// Validation-class errors (insufficient stock, missing selection,
// illegal transition) are returned to the caller for user-facing
// correction. Integrity-class errors (total mismatch, identity
// collision) abort the whole operation with nothing persisted and are
// logged at high severity. Collaborator failures are logged and never
// escalated into the triggering business operation.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrTotalMismatch signals client-side total tampering or a
	// stale-price race. Nothing is persisted.
	ErrTotalMismatch = errors.New("order total mismatch")

	// ErrIdentityCollision means sequence code allocation produced a
	// duplicate. Fatal, never retried silently.
	ErrIdentityCollision = errors.New("order code collision")

	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// InsufficientStock carries the shortfall for user re-selection.
type InsufficientStock struct {
	ProductID uint
	Requested int
	Available int
}

func (e *InsufficientStock) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStock) Is(target error) bool { return target == ErrValidation }

// MissingSelection means a required size or color was not chosen.
type MissingSelection struct {
	ProductID uint
	Field     string
}

func (e *MissingSelection) Error() string {
	return fmt.Sprintf("product %d: %s selection required", e.ProductID, e.Field)
}

func (e *MissingSelection) Is(target error) bool { return target == ErrValidation }

// IllegalTransition rejects an order status change the state machine
// does not permit.
type IllegalTransition struct {
	From string
	To   string
}

func (e *IllegalTransition) Error() string {
	return fmt.Sprintf("illegal status transition %q -> %q", e.From, e.To)
}

func (e *IllegalTransition) Is(target error) bool { return target == ErrConflict }
