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
	"github.com/rs/zerolog/log"
)

type MovesHandler struct {
	svc        service.MoveService
	reserve    service.ReservationEngine
	repo       repository.MoveRepository
	dispatcher *worker.Dispatcher
}

func NewMovesHandler(svc service.MoveService, reserve service.ReservationEngine, repo repository.MoveRepository, dispatcher *worker.Dispatcher) *MovesHandler {
	return &MovesHandler{svc: svc, reserve: reserve, repo: repo, dispatcher: dispatcher}
}

func parseMoveIDs(c *gin.Context, raw []string) ([]uuid.UUID, bool) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("invalid move id: "+r))
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// Create registers a draft move.
func (h *MovesHandler) Create(c *gin.Context) {
	var req dto.CreateMoveRequest
	if !bindAndValidate(c, &req) {
		return
	}
	move, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewMoveResponse(move))
}

// List returns a paginated, filtered list of moves.
func (h *MovesHandler) List(c *gin.Context) {
	var filter dto.MoveFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	moves, total, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to list moves"))
		return
	}
	resp := dto.MoveListResponse{Total: total, Page: filter.Page, Limit: filter.Limit}
	for i := range moves {
		resp.Data = append(resp.Data, dto.NewMoveResponse(&moves[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one move with its lines and state.
func (h *MovesHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	move, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewMoveResponse(move))
}

// Confirm transitions drafts into the pipeline, merges duplicates, then hands
// the reservation attempt to the worker pool.
func (h *MovesHandler) Confirm(c *gin.Context) {
	var req dto.MoveIDsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ids, ok := parseMoveIDs(c, req.MoveIDs)
	if !ok {
		return
	}
	if err := h.svc.ActionConfirm(c.Request.Context(), ids); err != nil {
		respondServiceError(c, err)
		return
	}
	// Best effort: the scheduler cron covers any dropped job.
	if err := h.dispatcher.EnqueueReserve(c.Request.Context(), ids); err != nil {
		log.Warn().Err(err).Msg("failed to enqueue reservation job")
	}
	c.Status(http.StatusNoContent)
}

// Assign reserves stock for the given moves synchronously.
func (h *MovesHandler) Assign(c *gin.Context) {
	var req dto.MoveIDsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ids, ok := parseMoveIDs(c, req.MoveIDs)
	if !ok {
		return
	}
	if err := h.reserve.ActionAssign(c.Request.Context(), ids); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unreserve returns every reservation of the given moves to the pool.
func (h *MovesHandler) Unreserve(c *gin.Context) {
	var req dto.MoveIDsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ids, ok := parseMoveIDs(c, req.MoveIDs)
	if !ok {
		return
	}
	if err := h.svc.DoUnreserve(c.Request.Context(), ids); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Done validates the given moves: ledger updates, backorders, extra moves.
func (h *MovesHandler) Done(c *gin.Context) {
	var req dto.DoneRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ids, ok := parseMoveIDs(c, req.MoveIDs)
	if !ok {
		return
	}
	if err := h.svc.ActionDone(c.Request.Context(), ids, req.CancelBackorder); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Cancel cancels the given moves and propagates or detaches successors.
func (h *MovesHandler) Cancel(c *gin.Context) {
	var req dto.MoveIDsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ids, ok := parseMoveIDs(c, req.MoveIDs)
	if !ok {
		return
	}
	if err := h.svc.ActionCancel(c.Request.Context(), ids); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Split carves a quantity out of a move into a new sibling move.
func (h *MovesHandler) Split(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	var req dto.SplitRequest
	if !bindAndValidate(c, &req) {
		return
	}
	newID, err := h.svc.Split(c.Request.Context(), id, req.Quantity)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"move_id": newID.String()})
}

// SetDemand rewrites a move's demanded quantity.
func (h *MovesHandler) SetDemand(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	var req dto.SetDemandRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.svc.SetDemand(c.Request.Context(), id, req.Quantity); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetUom changes a move's unit of measure within the same category.
func (h *MovesHandler) SetUom(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	var req dto.SetUomRequest
	if !bindAndValidate(c, &req) {
		return
	}
	uomID, err := uuid.Parse(req.UomID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid uom id"))
		return
	}
	if err := h.svc.SetUom(c.Request.Context(), id, uomID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetLineDone records a picked quantity on one of the move's lines.
func (h *MovesHandler) SetLineDone(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return
	}
	var req dto.SetLineDoneRequest
	if !bindAndValidate(c, &req) {
		return
	}
	lineID, err := uuid.Parse(req.LineID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid line id"))
		return
	}
	if err := h.svc.SetLineQtyDone(c.Request.Context(), id, lineID, req.Quantity); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
