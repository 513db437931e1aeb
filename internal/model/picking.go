package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MoveTypeDirect ships each move as soon as it is ready.
	MoveTypeDirect = "direct"
	// MoveTypeOne ships everything at once: a merged move only counts as
	// assigned when every part of it was.
	MoveTypeOne = "one"
)

// Picking is the thin orchestration shell the ledger reports into. Only the
// fields the move engine reads live here; list views, chatter and the rest of
// the picking workflow belong to the consuming application.
type Picking struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name              string     `gorm:"uniqueIndex;not null"`
	MoveType          string     `gorm:"not null;default:'direct'"` // direct | one
	ImmediateTransfer bool       `gorm:"not null;default:false"`
	// RequireLots: the picking type mandates lot/serial capture at validation.
	RequireLots bool       `gorm:"not null;default:true"`
	BackorderID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Backorder *Picking `gorm:"foreignKey:BackorderID"`
}

func (Picking) TableName() string { return "stock_pickings" }

// ProcurementGroup ties moves raised by the same upstream demand together.
type ProcurementGroup struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"not null"`
	MoveType  string    `gorm:"not null;default:'direct'"`
	CreatedAt time.Time
}

func (ProcurementGroup) TableName() string { return "procurement_groups" }
