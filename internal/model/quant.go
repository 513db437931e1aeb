package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Quant is one row of the inventory ledger: the on-hand and reserved quantity
// for a (product, location, lot, package, owner) key. Quants are created
// lazily on first movement into a key and garbage-collected once quantity,
// reserved quantity and any pending inventory count are all zero.
//
// Duplicate rows for the same key are legal: under lock contention the ledger
// prefers inserting a sibling row over blocking (see QuantRepository.Gather
// with LockSkipLocked). The maintenance pass folds duplicates back together.
type Quant struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_quant_key"`
	LocationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_quant_key"`
	LotID      *uuid.UUID `gorm:"type:uuid;index:idx_quant_key"`
	PackageID  *uuid.UUID `gorm:"type:uuid;index:idx_quant_key"`
	OwnerID    *uuid.UUID `gorm:"type:uuid;index:idx_quant_key"`
	CompanyID  *uuid.UUID `gorm:"type:uuid;index"`

	Quantity         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	ReservedQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	// InventoryQuantity is the counted quantity of a pending inventory
	// adjustment; applying it writes the delta through the ledger.
	InventoryQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	// InDate is the oldest incoming timestamp at this key — the FIFO/LIFO sort key.
	InDate    time.Time `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Product  *Product  `gorm:"foreignKey:ProductID"`
	Location *Location `gorm:"foreignKey:LocationID"`
	Lot      *Lot      `gorm:"foreignKey:LotID"`
}

func (Quant) TableName() string { return "stock_quants" }

// AvailableQuantity is on-hand minus reserved.
func (q *Quant) AvailableQuantity() decimal.Decimal {
	return q.Quantity.Sub(q.ReservedQuantity)
}

// SameKey reports whether two quants address the same logical ledger key.
func (q *Quant) SameKey(other *Quant) bool {
	return q.ProductID == other.ProductID &&
		q.LocationID == other.LocationID &&
		uuidPtrEq(q.LotID, other.LotID) &&
		uuidPtrEq(q.PackageID, other.PackageID) &&
		uuidPtrEq(q.OwnerID, other.OwnerID) &&
		uuidPtrEq(q.CompanyID, other.CompanyID)
}

func uuidPtrEq(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
