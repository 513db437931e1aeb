package dto

import (
	"time"

	"stockledger/internal/model"

	"github.com/shopspring/decimal"
)

// ─── Filter / List ──────────────────────────────────────────────────────────

// MoveFilter is bound from the query string of GET /api/moves.
type MoveFilter struct {
	State     string `form:"state,default=all"` // draft | confirmed | waiting | partially_available | assigned | done | cancel | all
	ProductID string `form:"product_id" validate:"omitempty,uuid"`
	PickingID string `form:"picking_id" validate:"omitempty,uuid"`
	Origin    string `form:"origin"`
	Page      int    `form:"page,default=1"   validate:"min=1"`
	Limit     int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type MoveListResponse struct {
	Data  []MoveResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateMoveRequest struct {
	Reference      string          `json:"reference"`
	Origin         string          `json:"origin"`
	ProductID      string          `json:"product_id"       validate:"required,uuid"`
	LocationID     string          `json:"location_id"      validate:"required,uuid"`
	LocationDestID string          `json:"location_dest_id" validate:"required,uuid"`
	UomID          string          `json:"uom_id"           validate:"omitempty,uuid"`
	Quantity       decimal.Decimal `json:"quantity"         validate:"required"`
	ProcureMethod  string          `json:"procure_method"   validate:"omitempty,oneof=make_to_stock make_to_order"`
	PickingID      string          `json:"picking_id"       validate:"omitempty,uuid"`
	PriceUnit      decimal.Decimal `json:"price_unit"`
	OrigMoveIDs    []string        `json:"orig_move_ids"    validate:"omitempty,dive,uuid"`
}

type MoveIDsRequest struct {
	MoveIDs []string `json:"move_ids" validate:"required,min=1,dive,uuid"`
}

type DoneRequest struct {
	MoveIDs         []string `json:"move_ids" validate:"required,min=1,dive,uuid"`
	CancelBackorder bool     `json:"cancel_backorder"`
}

type SplitRequest struct {
	// Quantity to carve out, expressed in the product's reference UoM.
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
}

type SetDemandRequest struct {
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
}

type SetUomRequest struct {
	UomID string `json:"uom_id" validate:"required,uuid"`
}

type SetLineDoneRequest struct {
	LineID   string          `json:"line_id"  validate:"required,uuid"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type MoveLineResponse struct {
	ID             string          `json:"id"`
	LocationID     string          `json:"location_id"`
	LocationDestID string          `json:"location_dest_id"`
	LotID          *string         `json:"lot_id"`
	PackageID      *string         `json:"package_id"`
	OwnerID        *string         `json:"owner_id"`
	Reserved       decimal.Decimal `json:"reserved"`
	QtyDone        decimal.Decimal `json:"qty_done"`
}

type MoveResponse struct {
	ID             string             `json:"id"`
	Reference      string             `json:"reference"`
	Origin         string             `json:"origin"`
	ProductID      string             `json:"product_id"`
	LocationID     string             `json:"location_id"`
	LocationDestID string             `json:"location_dest_id"`
	UomID          string             `json:"uom_id"`
	Quantity       decimal.Decimal    `json:"quantity"`
	State          string             `json:"state"`
	ProcureMethod  string             `json:"procure_method"`
	PickingID      *string            `json:"picking_id"`
	Lines          []MoveLineResponse `json:"lines"`
	DateDone       *string            `json:"date_done"`
	CreatedAt      string             `json:"created_at"`
}

// NewMoveResponse flattens a loaded move for the API.
func NewMoveResponse(m *model.Move) MoveResponse {
	resp := MoveResponse{
		ID:             m.ID.String(),
		Reference:      m.Reference,
		Origin:         m.Origin,
		ProductID:      m.ProductID.String(),
		LocationID:     m.LocationID.String(),
		LocationDestID: m.LocationDestID.String(),
		UomID:          m.ProductUomID.String(),
		Quantity:       m.ProductUomQty,
		State:          m.State,
		ProcureMethod:  m.ProcureMethod,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
	if m.PickingID != nil {
		s := m.PickingID.String()
		resp.PickingID = &s
	}
	if m.DateDone != nil {
		s := m.DateDone.Format(time.RFC3339)
		resp.DateDone = &s
	}
	for i := range m.Lines {
		line := &m.Lines[i]
		lr := MoveLineResponse{
			ID:             line.ID.String(),
			LocationID:     line.LocationID.String(),
			LocationDestID: line.LocationDestID.String(),
			Reserved:       line.ProductUomQty,
			QtyDone:        line.QtyDone,
		}
		if line.LotID != nil {
			s := line.LotID.String()
			lr.LotID = &s
		}
		if line.PackageID != nil {
			s := line.PackageID.String()
			lr.PackageID = &s
		}
		if line.OwnerID != nil {
			s := line.OwnerID.String()
			lr.OwnerID = &s
		}
		resp.Lines = append(resp.Lines, lr)
	}
	return resp
}
