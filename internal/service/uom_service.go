package service

import (
	"github.com/shopspring/decimal"

	"stockledger/internal/model"
)

// RoundingMethod selects how a converted quantity snaps to the unit's
// rounding step. Half-up vs up vs down is a load-bearing business rule:
// reservations round half-up, shipped remainders round against the customer.
type RoundingMethod int

const (
	RoundHalfUp RoundingMethod = iota
	RoundUp
	RoundDown
)

// RoundQuantity snaps qty to a multiple of the rounding step using method.
// A zero or negative step returns qty unchanged.
func RoundQuantity(qty, rounding decimal.Decimal, method RoundingMethod) decimal.Decimal {
	if rounding.Sign() <= 0 {
		return qty
	}
	steps := qty.Div(rounding)
	switch method {
	case RoundUp:
		steps = steps.Ceil()
	case RoundDown:
		steps = steps.Floor()
	default:
		steps = steps.Round(0)
	}
	return steps.Mul(rounding)
}

// CompareQuantities compares a and b at the precision of the rounding step:
// -1, 0 or 1. Two quantities closer than half a step are equal.
func CompareQuantities(a, b, rounding decimal.Decimal) int {
	if rounding.Sign() <= 0 {
		return a.Cmp(b)
	}
	diff := a.Sub(b)
	if diff.Abs().Cmp(rounding.Div(decimal.NewFromInt(2))) < 0 {
		return 0
	}
	return diff.Sign()
}

// QuantityIsZero reports whether qty rounds to zero at the given step.
func QuantityIsZero(qty, rounding decimal.Decimal) bool {
	return CompareQuantities(qty, decimal.Zero, rounding) == 0
}

// ConvertQuantity converts qty from one unit to another within the same UoM
// category, rounding the result to the target unit's step. Passing the same
// unit on both sides short-circuits without rounding drift.
func ConvertQuantity(qty decimal.Decimal, from, to *model.UoM, method RoundingMethod) (decimal.Decimal, error) {
	if from == nil || to == nil || from.ID == to.ID {
		return qty, nil
	}
	if from.CategoryID != to.CategoryID {
		return decimal.Zero, ErrUomCategoryMismatch
	}
	converted := qty.Mul(from.Factor).Div(to.Factor)
	return RoundQuantity(converted, to.Rounding, method), nil
}

// ToReference converts qty into the category's reference unit (factor 1)
// without knowing the reference record: multiplying by the factor is enough.
func ToReference(qty decimal.Decimal, from *model.UoM) decimal.Decimal {
	if from == nil {
		return qty
	}
	return qty.Mul(from.Factor)
}

// FromReference converts a reference-unit qty back into uom, rounded with method.
func FromReference(qty decimal.Decimal, to *model.UoM, method RoundingMethod) decimal.Decimal {
	if to == nil {
		return qty
	}
	return RoundQuantity(qty.Div(to.Factor), to.Rounding, method)
}
