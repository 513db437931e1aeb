package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockledger/internal/dto"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MoveService drives the move lifecycle: confirm, unreserve, done, cancel,
// split, and the guarded field writes the state machine allows.
type MoveService interface {
	Create(ctx context.Context, req dto.CreateMoveRequest) (*model.Move, error)
	ActionConfirm(ctx context.Context, ids []uuid.UUID) error
	DoUnreserve(ctx context.Context, ids []uuid.UUID) error
	ActionDone(ctx context.Context, ids []uuid.UUID, cancelBackorder bool) error
	ActionCancel(ctx context.Context, ids []uuid.UUID) error
	Split(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (uuid.UUID, error)

	// Guarded writes. Freely rewriting fields past certain states would break
	// ledger accounting, so each mutable field group is its own command.
	SetDemand(ctx context.Context, id uuid.UUID, qty decimal.Decimal) error
	SetUom(ctx context.Context, id uuid.UUID, uomID uuid.UUID) error
	SetLineQtyDone(ctx context.Context, moveID, lineID uuid.UUID, qty decimal.Decimal) error
}

type moveService struct {
	moves     repository.MoveRepository
	lines     repository.MoveLineRepository
	locations repository.LocationRepository
	products  repository.ProductRepository
	uoms      repository.UomRepository
	pickings  repository.PickingRepository
	ledger    QuantLedger
	reserve   ReservationEngine
}

func NewMoveService(
	moves repository.MoveRepository,
	lines repository.MoveLineRepository,
	locations repository.LocationRepository,
	products repository.ProductRepository,
	uoms repository.UomRepository,
	pickings repository.PickingRepository,
	ledger QuantLedger,
	reserve ReservationEngine,
) MoveService {
	return &moveService{
		moves:     moves,
		lines:     lines,
		locations: locations,
		products:  products,
		uoms:      uoms,
		pickings:  pickings,
		ledger:    ledger,
		reserve:   reserve,
	}
}

// ── Aggregate quantity helpers ───────────────────────────────────────────────
// All aggregate comparisons happen in the product's reference UoM.

func moveDemandRef(m *model.Move) decimal.Decimal {
	return ToReference(m.ProductUomQty, m.ProductUom)
}

func moveReservedRef(m *model.Move) decimal.Decimal {
	total := decimal.Zero
	for i := range m.Lines {
		total = total.Add(m.Lines[i].ProductUomQty)
	}
	return total
}

func moveQtyDoneRef(m *model.Move) decimal.Decimal {
	total := decimal.Zero
	for i := range m.Lines {
		total = total.Add(m.Lines[i].QtyDone)
	}
	return total
}

func hasDoneOrig(m *model.Move) bool {
	for _, orig := range m.OrigMoves {
		if orig.State == model.MoveStateDone {
			return true
		}
	}
	return false
}

// computeMoveState applies the recompute rule after any line change:
// assigned iff fully reserved, partially available iff some reservation,
// else waiting while a predecessor (or an unserved MTO procurement) blocks.
func computeMoveState(m *model.Move) string {
	switch m.State {
	case model.MoveStateDraft, model.MoveStateDone, model.MoveStateCancel:
		return m.State
	}
	rounding := productRounding(m.Product)
	demand := moveDemandRef(m)
	reserved := moveReservedRef(m)
	if demand.Sign() > 0 && CompareQuantities(reserved, demand, rounding) >= 0 {
		return model.MoveStateAssigned
	}
	if reserved.Sign() > 0 {
		return model.MoveStatePartiallyAvailable
	}
	if m.HasUnfinishedOrig() {
		return model.MoveStateWaiting
	}
	if m.ProcureMethod == model.ProcureMakeToOrder && !hasDoneOrig(m) {
		return model.MoveStateWaiting
	}
	return model.MoveStateConfirmed
}

// ── Create ───────────────────────────────────────────────────────────────────

func (s *moveService) Create(ctx context.Context, req dto.CreateMoveRequest) (*model.Move, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("product_id: %w", err)
	}
	locationID, err := uuid.Parse(req.LocationID)
	if err != nil {
		return nil, fmt.Errorf("location_id: %w", err)
	}
	locationDestID, err := uuid.Parse(req.LocationDestID)
	if err != nil {
		return nil, fmt.Errorf("location_dest_id: %w", err)
	}

	var move *model.Move
	txErr := runTx(ctx, s.moves.DB(), func(tx *gorm.DB) error {
		product, err := s.products.GetTx(tx, productID)
		if err != nil {
			return fmt.Errorf("product %s not found", req.ProductID)
		}

		uomID := product.UomID
		if req.UomID != "" {
			parsed, err := uuid.Parse(req.UomID)
			if err != nil {
				return fmt.Errorf("uom_id: %w", err)
			}
			uom, err := s.uoms.GetTx(tx, parsed)
			if err != nil {
				return fmt.Errorf("uom %s not found", req.UomID)
			}
			if product.Uom != nil && uom.CategoryID != product.Uom.CategoryID {
				return ErrUomCategoryMismatch
			}
			uomID = uom.ID
		}

		procure := req.ProcureMethod
		if procure == "" {
			procure = model.ProcureMakeToStock
		}

		move = &model.Move{
			ID:              uuid.New(),
			Reference:       req.Reference,
			Origin:          req.Origin,
			ProductID:       product.ID,
			ProductUomID:    uomID,
			ProductUomQty:   req.Quantity,
			State:           model.MoveStateDraft,
			ProcureMethod:   procure,
			LocationID:      locationID,
			LocationDestID:  locationDestID,
			PriceUnit:       req.PriceUnit,
			PropagateCancel: true,
		}
		if req.PickingID != "" {
			pid, err := uuid.Parse(req.PickingID)
			if err != nil {
				return fmt.Errorf("picking_id: %w", err)
			}
			move.PickingID = &pid
		}
		if err := s.moves.CreateTx(tx, move); err != nil {
			return err
		}

		if len(req.OrigMoveIDs) > 0 {
			origIDs := make([]uuid.UUID, 0, len(req.OrigMoveIDs))
			for _, raw := range req.OrigMoveIDs {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("orig_move_ids: %w", err)
				}
				origIDs = append(origIDs, id)
			}
			if err := s.moves.AddOrigMovesTx(tx, move, origIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return move, nil
}

// ── Confirm ──────────────────────────────────────────────────────────────────

func (s *moveService) ActionConfirm(ctx context.Context, ids []uuid.UUID) error {
	return runTx(ctx, s.moves.DB(), func(tx *gorm.DB) error {
		moves, err := s.moves.GetTx(tx, ids)
		if err != nil {
			return err
		}
		confirmed := make([]*model.Move, 0, len(moves))
		for _, m := range moves {
			if m.State != model.MoveStateDraft {
				continue
			}
			s.confirmOne(m)
			confirmed = append(confirmed, m)
		}

		survivors, err := s.mergeMovesTx(tx, confirmed)
		if err != nil {
			return err
		}
		for _, m := range survivors {
			if err := s.moves.SaveTx(tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *moveService) confirmOne(m *model.Move) {
	if m.ProcureMethod == model.ProcureMakeToOrder || m.HasUnfinishedOrig() {
		m.State = model.MoveStateWaiting
	} else {
		m.State = model.MoveStateConfirmed
	}
}

// ── Unreserve ────────────────────────────────────────────────────────────────

func (s *moveService) DoUnreserve(ctx context.Context, ids []uuid.UUID) error {
	return runTx(ctx, s.moves.DB(), func(tx *gorm.DB) error {
		moves, err := s.moves.GetTx(tx, ids)
		if err != nil {
			return err
		}
		for _, m := range moves {
			if m.State == model.MoveStateDone {
				return &InvalidTransitionError{MoveID: m.ID, From: m.State, Action: "unreserve"}
			}
			if m.State == model.MoveStateDraft || m.State == model.MoveStateCancel {
				continue
			}
			if err := s.releaseMoveTx(ctx, tx, m); err != nil {
				return err
			}
			m.State = computeMoveState(m)
			if err := s.moves.SaveTx(tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// releaseMoveTx returns every line's reservation to the pool. Lines that
// already carry a done quantity stay (zeroed); untouched lines are deleted.
func (s *moveService) releaseMoveTx(ctx context.Context, tx *gorm.DB, m *model.Move) error {
	var deleted []uuid.UUID
	kept := m.Lines[:0]
	for i := range m.Lines {
		line := &m.Lines[i]
		if err := s.releaseLineTx(ctx, tx, m, line); err != nil {
			return err
		}
		if line.QtyDone.Sign() > 0 {
			line.ProductUomQty = decimal.Zero
			if err := s.lines.SaveTx(tx, line); err != nil {
				return err
			}
			kept = append(kept, *line)
		} else {
			deleted = append(deleted, line.ID)
		}
	}
	m.Lines = kept
	return s.lines.DeleteTx(tx, deleted)
}

func (s *moveService) releaseLineTx(ctx context.Context, tx *gorm.DB, m *model.Move, line *model.MoveLine) error {
	if line.ProductUomQty.Sign() <= 0 || !m.Product.IsStockable() {
		return nil
	}
	srcLoc, err := s.locations.GetTx(tx, line.LocationID)
	if err != nil {
		return err
	}
	if srcLoc.ShouldBypassReservation() {
		return nil
	}
	_, err = s.ledger.ReleaseUpTo(ctx, tx, m.Product, srcLoc, line.ProductUomQty, LedgerOptions{
		LotID: line.LotID, PackageID: line.PackageID, OwnerID: line.OwnerID, Strict: true,
	})
	return err
}

// ── Cancel ───────────────────────────────────────────────────────────────────

func (s *moveService) ActionCancel(ctx context.Context, ids []uuid.UUID) error {
	return runTx(ctx, s.moves.DB(), func(tx *gorm.DB) error {
		visited := make(map[uuid.UUID]bool)
		queue := ids
		for len(queue) > 0 {
			batch := queue
			queue = nil
			moves, err := s.moves.GetTx(tx, batch)
			if err != nil {
				return err
			}
			for _, m := range moves {
				if visited[m.ID] {
					continue
				}
				visited[m.ID] = true
				next, err := s.cancelOneTx(ctx, tx, m)
				if err != nil {
					return err
				}
				queue = append(queue, next...)
			}
		}
		return nil
	})
}

// cancelOneTx cancels m and returns successor ids to cancel in turn.
// Successors are cascaded only when the move propagates cancellation and all
// of their predecessors are terminal; otherwise they are detached so they do
// not starve in a perpetual waiting state.
func (s *moveService) cancelOneTx(ctx context.Context, tx *gorm.DB, m *model.Move) ([]uuid.UUID, error) {
	if m.State == model.MoveStateCancel {
		return nil, nil
	}
	if m.State == model.MoveStateDone && !m.Scrapped {
		return nil, &InvalidTransitionError{MoveID: m.ID, From: m.State, Action: "cancel"}
	}
	if err := s.releaseMoveTx(ctx, tx, m); err != nil {
		return nil, err
	}
	m.State = model.MoveStateCancel
	if err := s.moves.SaveTx(tx, m); err != nil {
		return nil, err
	}

	var cascade []uuid.UUID
	for _, dest := range m.DestMoves {
		if dest.IsTerminal() {
			continue
		}
		if m.PropagateCancel {
			if allOrigsTerminal(dest, m.ID) {
				cascade = append(cascade, dest.ID)
			}
			continue
		}
		if err := s.detachTx(tx, dest); err != nil {
			return nil, err
		}
	}
	log.Info().Str("move_id", m.ID.String()).Int("cascaded", len(cascade)).Msg("move cancelled")
	return cascade, nil
}

// allOrigsTerminal checks dest's predecessors, counting cancelledID as
// already terminal (it is mid-flight in the same transaction).
func allOrigsTerminal(dest *model.Move, cancelledID uuid.UUID) bool {
	for _, orig := range dest.OrigMoves {
		if orig.ID == cancelledID {
			continue
		}
		if !orig.IsTerminal() {
			return false
		}
	}
	return true
}

func (s *moveService) detachTx(tx *gorm.DB, dest *model.Move) error {
	if err := s.moves.ClearOrigMovesTx(tx, dest); err != nil {
		return err
	}
	dest.OrigMoves = nil
	dest.ProcureMethod = model.ProcureMakeToStock
	if dest.State == model.MoveStateWaiting {
		dest.State = computeMoveState(dest)
	}
	return s.moves.SaveTx(tx, dest)
}

// ── Done ─────────────────────────────────────────────────────────────────────

func (s *moveService) ActionDone(ctx context.Context, ids []uuid.UUID, cancelBackorder bool) error {
	return runTx(ctx, s.moves.DB(), func(tx *gorm.DB) error {
		moves, err := s.moves.GetTx(tx, ids)
		if err != nil {
			return err
		}

		for _, m := range moves {
			if m.State == model.MoveStateDraft {
				s.confirmOne(m)
			}
		}

		var todo []*model.Move
		backorders := make(map[uuid.UUID]*model.Move) // original id → backorder
		for _, m := range moves {
			if m.IsTerminal() {
				continue
			}
			rounding := productRounding(m.Product)
			demand := moveDemandRef(m)
			done := moveQtyDoneRef(m)

			if QuantityIsZero(done, rounding) {
				if cancelBackorder || QuantityIsZero(demand, rounding) {
					if _, err := s.cancelOneTx(ctx, tx, m); err != nil {
						return err
					}
				}
				continue
			}

			if err := s.checkLines(m, rounding); err != nil {
				return err
			}

			switch CompareQuantities(done, demand, rounding) {
			case 1:
				if err := s.createExtraMoveTx(tx, m, done.Sub(demand)); err != nil {
					return err
				}
			case -1:
				if cancelBackorder {
					m.ProductUomQty = FromReference(done, m.ProductUom, RoundHalfUp)
				} else {
					backorder, err := s.splitTx(tx, m, demand.Sub(done))
					if err != nil {
						return err
					}
					s.confirmOne(backorder)
					if err := s.moves.SaveTx(tx, backorder); err != nil {
						return err
					}
					backorders[m.ID] = backorder
				}
			}
			todo = append(todo, m)
		}

		now := time.Now().UTC()
		for _, m := range todo {
			if err := s.commitMoveTx(ctx, tx, m, now); err != nil {
				return err
			}
		}

		if err := s.assignBackorderPickingTx(tx, todo, backorders); err != nil {
			return err
		}
		return s.triggerSuccessorsTx(ctx, tx, todo)
	})
}

// checkLines enforces done-time invariants: quantities on the UoM grid and
// lots present for tracked products when the picking type mandates capture.
func (s *moveService) checkLines(m *model.Move, rounding decimal.Decimal) error {
	requireLots := m.Picking == nil || m.Picking.RequireLots
	for i := range m.Lines {
		line := &m.Lines[i]
		if line.QtyDone.Sign() == 0 {
			continue
		}
		if !line.QtyDone.Equal(RoundQuantity(line.QtyDone, rounding, RoundHalfUp)) {
			return fmt.Errorf("move %s line %s qty_done %s: %w",
				m.ID, line.ID, line.QtyDone, ErrRoundingInconsistency)
		}
		if m.Product.Tracking != model.TrackingNone && requireLots && line.LotID == nil {
			return fmt.Errorf("move %s line %s: %w", m.ID, line.ID, ErrTrackingViolation)
		}
	}
	return nil
}

// commitMoveTx writes each line's done quantity through the ledger and seals
// the move. The reservation is consumed: ProductUomQty resets to zero.
func (s *moveService) commitMoveTx(ctx context.Context, tx *gorm.DB, m *model.Move, now time.Time) error {
	var deleted []uuid.UUID
	kept := m.Lines[:0]
	for i := range m.Lines {
		line := &m.Lines[i]
		if line.QtyDone.Sign() == 0 {
			// Reservation released back to the pool; the backorder re-reserves.
			if err := s.releaseLineTx(ctx, tx, m, line); err != nil {
				return err
			}
			deleted = append(deleted, line.ID)
			continue
		}
		if err := s.commitLineTx(ctx, tx, m, line, now); err != nil {
			return err
		}
		kept = append(kept, *line)
	}
	m.Lines = kept
	if err := s.lines.DeleteTx(tx, deleted); err != nil {
		return err
	}

	m.State = model.MoveStateDone
	m.DateDone = &now
	return s.moves.SaveTx(tx, m)
}

func (s *moveService) commitLineTx(ctx context.Context, tx *gorm.DB, m *model.Move, line *model.MoveLine, now time.Time) error {
	if !m.Product.IsStockable() {
		line.ProductUomQty = decimal.Zero
		line.State = model.MoveStateDone
		return s.lines.SaveTx(tx, line)
	}

	if err := s.releaseLineTx(ctx, tx, m, line); err != nil {
		return err
	}

	srcLoc, err := s.locations.GetTx(tx, line.LocationID)
	if err != nil {
		return err
	}
	destLoc, err := s.locations.GetTx(tx, line.LocationDestID)
	if err != nil {
		return err
	}

	if err := s.decrementSourceTx(ctx, tx, m, line, srcLoc); err != nil {
		return err
	}
	_, _, err = s.ledger.UpdateAvailableQuantity(ctx, tx, m.Product, destLoc, line.QtyDone, LedgerOptions{
		LotID:     line.LotID,
		PackageID: line.ResultPackageID,
		OwnerID:   line.OwnerID,
		InDate:    &now,
	})
	if err != nil {
		return err
	}

	line.ProductUomQty = decimal.Zero
	line.State = model.MoveStateDone
	return s.lines.SaveTx(tx, line)
}

// decrementSourceTx removes the done quantity from the source key. When a
// tracked quant would go negative while untracked stock sits at the same key,
// the untracked quant absorbs the shortfall first — negative on-hand belongs
// to "unknown lot", not to a lot we supposedly just shipped.
func (s *moveService) decrementSourceTx(ctx context.Context, tx *gorm.DB, m *model.Move, line *model.MoveLine, srcLoc *model.Location) error {
	qty := line.QtyDone
	lotOpts := LedgerOptions{
		LotID: line.LotID, PackageID: line.PackageID, OwnerID: line.OwnerID,
		Strict: true, AllowNegative: true,
	}

	if m.Product.Tracking != model.TrackingNone && line.LotID != nil {
		rounding := productRounding(m.Product)
		lotAvailable, err := s.ledger.AvailableQuantity(ctx, tx, m.Product, srcLoc, lotOpts)
		if err != nil {
			return err
		}
		if CompareQuantities(qty, lotAvailable, rounding) > 0 {
			untrackedOpts := lotOpts
			untrackedOpts.LotID = nil
			untrackedAvailable, err := s.ledger.AvailableQuantity(ctx, tx, m.Product, srcLoc, untrackedOpts)
			if err != nil {
				return err
			}
			if untrackedAvailable.Sign() > 0 {
				shortfall := qty.Sub(decimal.Max(lotAvailable, decimal.Zero))
				fromUntracked := decimal.Min(shortfall, untrackedAvailable)
				untrackedOpts.AllowNegative = false
				if _, _, err := s.ledger.UpdateAvailableQuantity(ctx, tx, m.Product, srcLoc, fromUntracked.Neg(), untrackedOpts); err != nil {
					return err
				}
				qty = qty.Sub(fromUntracked)
			}
		}
	}

	_, _, err := s.ledger.UpdateAvailableQuantity(ctx, tx, m.Product, srcLoc, qty.Neg(), LedgerOptions{
		LotID: line.LotID, PackageID: line.PackageID, OwnerID: line.OwnerID,
	})
	return err
}

// assignBackorderPickingTx groups each original picking's backorder moves
// into a fresh picking chained to it.
func (s *moveService) assignBackorderPickingTx(tx *gorm.DB, done []*model.Move, backorders map[uuid.UUID]*model.Move) error {
	byPicking := make(map[uuid.UUID][]*model.Move)
	for _, m := range done {
		backorder, ok := backorders[m.ID]
		if !ok || m.PickingID == nil {
			continue
		}
		byPicking[*m.PickingID] = append(byPicking[*m.PickingID], backorder)
	}
	for pickingID, moves := range byPicking {
		original, err := s.pickings.GetTx(tx, pickingID)
		if err != nil {
			return err
		}
		backorderPicking := &model.Picking{
			ID:          uuid.New(),
			Name:        fmt.Sprintf("%s-BACK", original.Name),
			MoveType:    original.MoveType,
			RequireLots: original.RequireLots,
			BackorderID: &original.ID,
		}
		if err := s.pickings.CreateTx(tx, backorderPicking); err != nil {
			return err
		}
		for _, m := range moves {
			m.PickingID = &backorderPicking.ID
			if err := s.moves.SaveTx(tx, m); err != nil {
				return err
			}
		}
		log.Info().
			Str("picking_id", pickingID.String()).
			Str("backorder_picking_id", backorderPicking.ID.String()).
			Int("moves", len(moves)).
			Msg("backorder picking created")
	}
	return nil
}

// triggerSuccessorsTx re-runs reservation on successors unblocked by this
// completion, so chained pickings become ready without waiting for the cron.
func (s *moveService) triggerSuccessorsTx(ctx context.Context, tx *gorm.DB, done []*model.Move) error {
	seen := make(map[uuid.UUID]bool)
	var destIDs []uuid.UUID
	for _, m := range done {
		for _, dest := range m.DestMoves {
			if !seen[dest.ID] {
				seen[dest.ID] = true
				destIDs = append(destIDs, dest.ID)
			}
		}
	}
	if len(destIDs) == 0 {
		return nil
	}
	dests, err := s.moves.GetTx(tx, destIDs)
	if err != nil {
		return err
	}
	ready := dests[:0]
	for _, d := range dests {
		if d.CanReserve() && !d.HasUnfinishedOrig() {
			ready = append(ready, d)
		}
	}
	return s.reserve.AssignMovesTx(ctx, tx, ready)
}

// ── Guarded field writes ─────────────────────────────────────────────────────

func (s *moveService) SetDemand(ctx context.Context, id uuid.UUID, qty decimal.Decimal) error {
	return runTx(ctx, s.moves.DB(), func(tx *gorm.DB) error {
		m, err := s.getOneTx(tx, id)
		if err != nil {
			return err
		}
		if m.IsTerminal() {
			return &InvalidTransitionError{MoveID: m.ID, From: m.State, Action: "change demand"}
		}
		m.ProductUomQty = qty
		m.State = computeMoveState(m)
		return s.moves.SaveTx(tx, m)
	})
}

func (s *moveService) SetUom(ctx context.Context, id uuid.UUID, uomID uuid.UUID) error {
	return runTx(ctx, s.moves.DB(), func(tx *gorm.DB) error {
		m, err := s.getOneTx(tx, id)
		if err != nil {
			return err
		}
		if m.State == model.MoveStateDone {
			return &InvalidTransitionError{MoveID: m.ID, From: m.State, Action: "change unit of measure"}
		}
		uom, err := s.uoms.GetTx(tx, uomID)
		if err != nil {
			return err
		}
		if m.ProductUom != nil && uom.CategoryID != m.ProductUom.CategoryID {
			return ErrUomCategoryMismatch
		}
		m.ProductUomID = uom.ID
		m.ProductUom = uom
		m.State = computeMoveState(m)
		return s.moves.SaveTx(tx, m)
	})
}

// SetLineQtyDone records picked quantity. On a done move the write becomes a
// ledger correction: the on-hand delta is replayed at both endpoints.
func (s *moveService) SetLineQtyDone(ctx context.Context, moveID, lineID uuid.UUID, qty decimal.Decimal) error {
	return runTx(ctx, s.moves.DB(), func(tx *gorm.DB) error {
		m, err := s.getOneTx(tx, moveID)
		if err != nil {
			return err
		}
		if m.State == model.MoveStateCancel {
			return &InvalidTransitionError{MoveID: m.ID, From: m.State, Action: "set done quantity"}
		}
		var line *model.MoveLine
		for i := range m.Lines {
			if m.Lines[i].ID == lineID {
				line = &m.Lines[i]
				break
			}
		}
		if line == nil {
			return fmt.Errorf("line %s does not belong to move %s", lineID, moveID)
		}
		rounding := productRounding(m.Product)
		if !qty.Equal(RoundQuantity(qty, rounding, RoundHalfUp)) {
			return fmt.Errorf("qty_done %s: %w", qty, ErrRoundingInconsistency)
		}

		if m.State == model.MoveStateDone {
			diff := qty.Sub(line.QtyDone)
			if diff.IsZero() {
				return nil
			}
			srcLoc, err := s.locations.GetTx(tx, line.LocationID)
			if err != nil {
				return err
			}
			destLoc, err := s.locations.GetTx(tx, line.LocationDestID)
			if err != nil {
				return err
			}
			srcOpts := LedgerOptions{LotID: line.LotID, PackageID: line.PackageID, OwnerID: line.OwnerID}
			destOpts := LedgerOptions{LotID: line.LotID, PackageID: line.ResultPackageID, OwnerID: line.OwnerID}
			if _, _, err := s.ledger.UpdateAvailableQuantity(ctx, tx, m.Product, srcLoc, diff.Neg(), srcOpts); err != nil {
				return err
			}
			if _, _, err := s.ledger.UpdateAvailableQuantity(ctx, tx, m.Product, destLoc, diff, destOpts); err != nil {
				return err
			}
			log.Info().
				Str("move_id", moveID.String()).
				Str("line_id", lineID.String()).
				Str("diff", diff.String()).
				Msg("done-move quantity corrected")
		}

		line.QtyDone = qty
		if err := s.lines.SaveTx(tx, line); err != nil {
			return err
		}
		m.State = computeMoveState(m)
		return s.moves.SaveTx(tx, m)
	})
}

func (s *moveService) getOneTx(tx *gorm.DB, id uuid.UUID) (*model.Move, error) {
	moves, err := s.moves.GetTx(tx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(moves) == 0 {
		return nil, errors.New("move not found")
	}
	return moves[0], nil
}
