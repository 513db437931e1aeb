package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	LocationUsageInternal   = "internal"
	LocationUsageSupplier   = "supplier"
	LocationUsageCustomer   = "customer"
	LocationUsageInventory  = "inventory"
	LocationUsageProduction = "production"
	LocationUsageTransit    = "transit"
	LocationUsageView       = "view"
)

// Location is a node in the warehouse tree. ParentPath is the materialized
// "/"-terminated chain of ancestor ids (own id included), maintained on write,
// so subtree queries are a single LIKE.
type Location struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name            string     `gorm:"not null"`
	ParentID        *uuid.UUID `gorm:"type:uuid;index"`
	ParentPath      string     `gorm:"index;not null;default:''"`
	Usage           string     `gorm:"not null;default:'internal'"`
	RemovalStrategy string     `gorm:"not null;default:''"` // "" | fifo | lifo | closest
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Parent *Location `gorm:"foreignKey:ParentID"`
}

// IsSubLocationOf reports whether l sits under (or is) other.
func (l *Location) IsSubLocationOf(other *Location) bool {
	return strings.HasPrefix(l.ParentPath, other.ParentPath)
}

// ShouldBypassReservation: moves taking stock out of virtual locations
// (suppliers, inventory loss, production…) never reserve against the ledger —
// those locations are allowed to go negative on demand.
func (l *Location) ShouldBypassReservation() bool {
	return l.Usage != LocationUsageInternal && l.Usage != LocationUsageTransit
}

// AncestorIDs parses ParentPath into the ancestor chain, own id excluded,
// ordered root-first.
func (l *Location) AncestorIDs() []uuid.UUID {
	parts := strings.Split(strings.Trim(l.ParentPath, "/"), "/")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(p)
		if err != nil || id == l.ID {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
