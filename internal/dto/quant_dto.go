package dto

import (
	"time"

	"stockledger/internal/model"

	"github.com/shopspring/decimal"
)

// ─── Filter / List ──────────────────────────────────────────────────────────

// QuantFilter is bound from the query string of GET /api/quants.
type QuantFilter struct {
	ProductID  string `form:"product_id"  validate:"omitempty,uuid"`
	LocationID string `form:"location_id" validate:"omitempty,uuid"`
	LotID      string `form:"lot_id"      validate:"omitempty,uuid"`
	Page       int    `form:"page,default=1"   validate:"min=1"`
	Limit      int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type QuantListResponse struct {
	Data  []QuantResponse `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

// AdjustRequest applies an on-hand delta at a key. LotName resolves (or
// creates) the lot for tracked products.
type AdjustRequest struct {
	ProductID  string          `json:"product_id"  validate:"required,uuid"`
	LocationID string          `json:"location_id" validate:"required,uuid"`
	Delta      decimal.Decimal `json:"delta"       validate:"required"`
	LotName    string          `json:"lot_name"`
	PackageID  string          `json:"package_id"  validate:"omitempty,uuid"`
	OwnerID    string          `json:"owner_id"    validate:"omitempty,uuid"`
}

type AvailabilityFilter struct {
	ProductID  string `form:"product_id"  validate:"required,uuid"`
	LocationID string `form:"location_id" validate:"required,uuid"`
	LotID      string `form:"lot_id"      validate:"omitempty,uuid"`
	Strict     bool   `form:"strict"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type QuantResponse struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"product_id"`
	LocationID        string          `json:"location_id"`
	LotID             *string         `json:"lot_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	InventoryQuantity decimal.Decimal `json:"inventory_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	InDate            string          `json:"in_date"`
}

func NewQuantResponse(q *model.Quant) QuantResponse {
	resp := QuantResponse{
		ID:                q.ID.String(),
		ProductID:         q.ProductID.String(),
		LocationID:        q.LocationID.String(),
		Quantity:          q.Quantity,
		ReservedQuantity:  q.ReservedQuantity,
		InventoryQuantity: q.InventoryQuantity,
		AvailableQuantity: q.AvailableQuantity(),
		InDate:            q.InDate.Format(time.RFC3339),
	}
	if q.LotID != nil {
		s := q.LotID.String()
		resp.LotID = &s
	}
	return resp
}

type AvailabilityResponse struct {
	ProductID  string          `json:"product_id"`
	LocationID string          `json:"location_id"`
	Available  decimal.Decimal `json:"available"`
}

type MaintenanceResponse struct {
	Merged  int `json:"merged"`
	Removed int `json:"removed"`
}
