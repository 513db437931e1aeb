package handler

import (
	"net/http"

	"stockledger/internal/apierror"
	"stockledger/internal/dto"
	"stockledger/internal/repository"
	"stockledger/internal/service"
	"stockledger/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type QuantsHandler struct {
	ledger    service.QuantLedger
	quants    repository.QuantRepository
	products  repository.ProductRepository
	locations repository.LocationRepository
}

func NewQuantsHandler(
	ledger service.QuantLedger,
	quants repository.QuantRepository,
	products repository.ProductRepository,
	locations repository.LocationRepository,
) *QuantsHandler {
	return &QuantsHandler{ledger: ledger, quants: quants, products: products, locations: locations}
}

// List returns a paginated view of the quant ledger.
func (h *QuantsHandler) List(c *gin.Context) {
	var filter dto.QuantFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	quants, total, err := h.quants.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to list quants"))
		return
	}
	resp := dto.QuantListResponse{Total: total, Page: filter.Page, Limit: filter.Limit}
	for i := range quants {
		resp.Data = append(resp.Data, dto.NewQuantResponse(&quants[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// Availability answers "how much can still be reserved here".
func (h *QuantsHandler) Availability(c *gin.Context) {
	var filter dto.AvailabilityFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	if err := validate.Struct(&filter); err != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.New(err.Error()))
		return
	}
	productID, _ := uuid.Parse(filter.ProductID)
	locationID, _ := uuid.Parse(filter.LocationID)

	product, err := h.products.Get(c.Request.Context(), productID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	location, err := h.locations.Get(c.Request.Context(), locationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	opts := service.LedgerOptions{Strict: filter.Strict}
	if filter.LotID != "" {
		lotID, err := uuid.Parse(filter.LotID)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("invalid lot id"))
			return
		}
		opts.LotID = &lotID
	}
	available, err := h.ledger.AvailableQuantity(c.Request.Context(), h.quants.DB(), product, location, opts)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AvailabilityResponse{
		ProductID:  filter.ProductID,
		LocationID: filter.LocationID,
		Available:  available,
	})
}

// Adjust applies an inventory delta at a key.
func (h *QuantsHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !bindAndValidate(c, &req) {
		return
	}
	productID, _ := uuid.Parse(req.ProductID)
	locationID, _ := uuid.Parse(req.LocationID)

	var packageID, ownerID *uuid.UUID
	if req.PackageID != "" {
		id, err := uuid.Parse(req.PackageID)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("invalid package id"))
			return
		}
		packageID = &id
	}
	if req.OwnerID != "" {
		id, err := uuid.Parse(req.OwnerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("invalid owner id"))
			return
		}
		ownerID = &id
	}

	available, err := h.ledger.Adjust(c.Request.Context(), productID, locationID, req.Delta, req.LotName, packageID, ownerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": available})
}

// ApplyInventory commits a quant's pending counted quantity to the ledger.
func (h *QuantsHandler) ApplyInventory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	if err := h.ledger.ApplyInventory(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Maintenance runs the merge and zero-sweep passes on demand.
func (h *QuantsHandler) Maintenance(c *gin.Context) {
	merged, removed := worker.RunMaintenancePass(c.Request.Context(), h.ledger)
	c.JSON(http.StatusOK, dto.MaintenanceResponse{Merged: merged, Removed: removed})
}
