package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Domain error taxonomy. Ledger-level errors abort the enclosing transaction
// and surface verbatim to the caller; lock contention never does — the
// skip-locked fallback absorbs it at the quant-row level.
var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidTransition      = errors.New("invalid move state transition")
	ErrRoundingInconsistency  = errors.New("quantity does not respect the unit of measure rounding")
	ErrTrackingViolation      = errors.New("tracked product requires a lot/serial number")
	ErrUomCategoryMismatch    = errors.New("units of measure belong to different categories")
	ErrUnreserveExceeded      = errors.New("cannot unreserve more than the reserved quantity")
)

// InsufficientStockError carries the figures for the API envelope.
type InsufficientStockError struct {
	ProductID  uuid.UUID
	LocationID uuid.UUID
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s at location %s: requested %s, available %s",
		e.ProductID, e.LocationID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidTransitionError reports a forbidden state-machine edge or a write
// blocked by the move's current state.
type InvalidTransitionError struct {
	MoveID uuid.UUID
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("move %s: cannot %s from state %q", e.MoveID, e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
