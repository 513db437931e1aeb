package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoveLine is a concrete allocation fulfilling part of a move's demand at
// quant granularity. ProductUomQty is the reserved amount, QtyDone the amount
// actually transferred; both are expressed in the product's reference UoM.
// Lines never outlive their move (cascade delete) except once done.
type MoveLine struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MoveID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`

	LocationID     uuid.UUID `gorm:"type:uuid;not null;index"`
	LocationDestID uuid.UUID `gorm:"type:uuid;not null"`

	LotID           *uuid.UUID `gorm:"type:uuid;index"`
	PackageID       *uuid.UUID `gorm:"type:uuid"`
	ResultPackageID *uuid.UUID `gorm:"type:uuid"`
	OwnerID         *uuid.UUID `gorm:"type:uuid"`

	ProductUomQty decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	QtyDone       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`

	State     string `gorm:"not null;default:'draft'"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Move *Move `gorm:"foreignKey:MoveID"`
	Lot  *Lot  `gorm:"foreignKey:LotID"`
}

func (MoveLine) TableName() string { return "stock_move_lines" }
