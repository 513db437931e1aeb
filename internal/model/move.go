package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MoveStateDraft              = "draft"
	MoveStateWaiting            = "waiting"
	MoveStateConfirmed          = "confirmed"
	MoveStatePartiallyAvailable = "partially_available"
	MoveStateAssigned           = "assigned"
	MoveStateDone               = "done"
	MoveStateCancel             = "cancel"
)

const (
	ProcureMakeToStock = "make_to_stock"
	ProcureMakeToOrder = "make_to_order"
)

// Move is a demand to transfer ProductUomQty of a product (expressed in
// ProductUomID) from LocationID to LocationDestID. Moves chain into a DAG
// through the stock_move_move_rel join table: a move's sources are the moves
// whose destination feeds it.
type Move struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Reference string    `gorm:"index"`
	Origin    string    `gorm:"index"`

	ProductID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductUomID  uuid.UUID       `gorm:"type:uuid;not null"`
	ProductUomQty decimal.Decimal `gorm:"type:decimal(20,4);not null"`

	State         string `gorm:"not null;default:'draft';index"`
	ProcureMethod string `gorm:"not null;default:'make_to_stock'"`

	LocationID     uuid.UUID `gorm:"type:uuid;not null;index"`
	LocationDestID uuid.UUID `gorm:"type:uuid;not null;index"`

	PickingID *uuid.UUID `gorm:"type:uuid;index"`
	GroupID   *uuid.UUID `gorm:"type:uuid;index"`
	OwnerID   *uuid.UUID `gorm:"type:uuid"`

	PriceUnit       decimal.Decimal `gorm:"type:decimal(16,4);not null;default:0"`
	PropagateCancel bool            `gorm:"not null;default:true"`
	Scrapped        bool            `gorm:"not null;default:false"`

	OriginReturnedMoveID *uuid.UUID `gorm:"type:uuid"`
	PackageLevelID       *uuid.UUID `gorm:"type:uuid"`
	PackagingID          *uuid.UUID `gorm:"type:uuid"`
	DateDeadline         *time.Time

	DateDone  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Product      *Product  `gorm:"foreignKey:ProductID"`
	ProductUom   *UoM      `gorm:"foreignKey:ProductUomID"`
	Location     *Location `gorm:"foreignKey:LocationID"`
	LocationDest *Location `gorm:"foreignKey:LocationDestID"`
	Picking      *Picking  `gorm:"foreignKey:PickingID"`

	Lines []MoveLine `gorm:"foreignKey:MoveID;constraint:OnDelete:CASCADE"`

	// OrigMoves feed this move; DestMoves consume its output.
	OrigMoves []*Move `gorm:"many2many:stock_move_move_rel;joinForeignKey:move_dest_id;joinReferences:move_orig_id"`
	DestMoves []*Move `gorm:"many2many:stock_move_move_rel;joinForeignKey:move_orig_id;joinReferences:move_dest_id"`
}

func (Move) TableName() string { return "stock_moves" }

// IsTerminal reports whether the move can no longer change quantity-wise.
func (m *Move) IsTerminal() bool {
	return m.State == MoveStateDone || m.State == MoveStateCancel
}

// CanReserve reports whether the reservation engine may act on the move.
func (m *Move) CanReserve() bool {
	switch m.State {
	case MoveStateConfirmed, MoveStateWaiting, MoveStatePartiallyAvailable:
		return true
	}
	return false
}

// HasUnfinishedOrig reports whether any predecessor still has to deliver.
func (m *Move) HasUnfinishedOrig() bool {
	for _, orig := range m.OrigMoves {
		if orig.State != MoveStateDone && orig.State != MoveStateCancel {
			return true
		}
	}
	return false
}
