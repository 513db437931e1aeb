package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UoM is a unit of measure. Factor expresses how many reference units one of
// this unit represents within its category (Dozen→12, Unit→1, Gram→0.001 when
// the category reference is the kilogram). Rounding is the smallest step a
// quantity in this unit may take — every quantity comparison in the ledger
// goes through it, never through a hardcoded epsilon.
type UoM struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name       string          `gorm:"not null"`
	CategoryID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Factor     decimal.Decimal `gorm:"type:decimal(20,10);not null"`
	Rounding   decimal.Decimal `gorm:"type:decimal(20,10);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (UoM) TableName() string { return "uoms" }
