package model

import (
	"time"

	"github.com/google/uuid"
)

// Lot is a lot or serial number. For serial tracking every quant referencing
// the lot holds at most one unit.
type Lot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"not null;index:idx_lot_product_name,unique"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index:idx_lot_product_name,unique"`
	CreatedAt time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

// QuantPackage groups quants physically moved together.
type QuantPackage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

func (QuantPackage) TableName() string { return "quant_packages" }
