package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	// ProductTypeProduct is a stockable product tracked by the quant ledger.
	ProductTypeProduct = "product"
	// ProductTypeConsu is consumable: movable but never reserved against stock.
	ProductTypeConsu   = "consu"
	ProductTypeService = "service"
)

const (
	TrackingNone   = "none"
	TrackingLot    = "lot"
	TrackingSerial = "serial"
)

// Product is the minimal product master the ledger needs: reference UoM,
// tracking mode, and the category that may carry a removal strategy.
type Product struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name       string     `gorm:"index;not null"`
	Type       string     `gorm:"not null;default:'product'"` // product | consu | service
	Tracking   string     `gorm:"not null;default:'none'"`    // none | lot | serial
	UomID      uuid.UUID  `gorm:"type:uuid;not null"`
	CategoryID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Uom      *UoM             `gorm:"foreignKey:UomID"`
	Category *ProductCategory `gorm:"foreignKey:CategoryID"`
}

// IsStockable reports whether quantities of this product live in the ledger.
func (p *Product) IsStockable() bool { return p.Type == ProductTypeProduct }

// ProductCategory carries the removal strategy override for all its products.
type ProductCategory struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name            string    `gorm:"not null"`
	RemovalStrategy string    `gorm:"not null;default:''"` // "" | fifo | lifo | closest
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ProductCategory) TableName() string { return "product_categories" }
