package service

import (
	"context"
	"fmt"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Split carves qty (reference UoM) out of a move into a new sibling move and
// confirms the sibling. The reservation stays with the original; the sibling
// starts unreserved.
func (s *moveService) Split(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (uuid.UUID, error) {
	var newID uuid.UUID
	err := runTx(ctx, s.moves.DB(), func(tx *gorm.DB) error {
		m, err := s.getOneTx(tx, id)
		if err != nil {
			return err
		}
		sibling, err := s.splitTx(tx, m, qty)
		if err != nil {
			return err
		}
		s.confirmOne(sibling)
		if err := s.moves.SaveTx(tx, sibling); err != nil {
			return err
		}
		if err := s.moves.SaveTx(tx, m); err != nil {
			return err
		}
		newID = sibling.ID
		return nil
	})
	return newID, err
}

// splitTx creates the sibling as a draft and reduces the original's demand.
// The caller confirms the sibling and saves the original.
func (s *moveService) splitTx(tx *gorm.DB, m *model.Move, qtyRef decimal.Decimal) (*model.Move, error) {
	switch m.State {
	case model.MoveStateDone, model.MoveStateCancel, model.MoveStateDraft:
		return nil, &InvalidTransitionError{MoveID: m.ID, From: m.State, Action: "split"}
	}
	rounding := productRounding(m.Product)
	demandRef := moveDemandRef(m)
	if qtyRef.Sign() <= 0 || CompareQuantities(qtyRef, demandRef, rounding) >= 0 {
		return nil, fmt.Errorf("split quantity %s out of range (0, %s)", qtyRef, demandRef)
	}

	// Express the carved quantity in the move's UoM when that survives the
	// round trip; otherwise fall back to the reference UoM so no quantity is
	// silently lost to rounding.
	splitUomID := m.ProductUomID
	splitQty := FromReference(qtyRef, m.ProductUom, RoundHalfUp)
	if CompareQuantities(ToReference(splitQty, m.ProductUom), qtyRef, rounding) != 0 {
		splitUomID = m.Product.UomID
		splitQty = qtyRef
	}

	sibling := &model.Move{
		ID:                   uuid.New(),
		Reference:            m.Reference,
		Origin:               m.Origin,
		ProductID:            m.ProductID,
		ProductUomID:         splitUomID,
		ProductUomQty:        splitQty,
		State:                model.MoveStateDraft,
		ProcureMethod:        model.ProcureMakeToStock,
		LocationID:           m.LocationID,
		LocationDestID:       m.LocationDestID,
		PickingID:            m.PickingID,
		GroupID:              m.GroupID,
		OwnerID:              m.OwnerID,
		PriceUnit:            m.PriceUnit,
		PropagateCancel:      m.PropagateCancel,
		Scrapped:             m.Scrapped,
		OriginReturnedMoveID: m.OriginReturnedMoveID,
		PackageLevelID:       m.PackageLevelID,
		PackagingID:          m.PackagingID,
		DateDeadline:         m.DateDeadline,
		Product:              m.Product,
		ProductUom:           m.ProductUom,
		Location:             m.Location,
		LocationDest:         m.LocationDest,
		Picking:              m.Picking,
	}
	if splitUomID != m.ProductUomID && m.Product.Uom != nil {
		sibling.ProductUom = m.Product.Uom
	}
	if err := s.moves.CreateTx(tx, sibling); err != nil {
		return nil, err
	}

	// The sibling inherits the original's position in the chain.
	origIDs := make([]uuid.UUID, 0, len(m.OrigMoves))
	for _, orig := range m.OrigMoves {
		origIDs = append(origIDs, orig.ID)
	}
	destIDs := make([]uuid.UUID, 0, len(m.DestMoves))
	for _, dest := range m.DestMoves {
		destIDs = append(destIDs, dest.ID)
	}
	if err := s.moves.AddOrigMovesTx(tx, sibling, origIDs); err != nil {
		return nil, err
	}
	if err := s.moves.AddDestMovesTx(tx, sibling, destIDs); err != nil {
		return nil, err
	}
	sibling.OrigMoves = m.OrigMoves
	sibling.DestMoves = m.DestMoves

	m.ProductUomQty = m.ProductUomQty.Sub(FromReference(qtyRef, m.ProductUom, RoundHalfUp))

	log.Info().
		Str("move_id", m.ID.String()).
		Str("sibling_id", sibling.ID.String()).
		Str("qty", qtyRef.String()).
		Msg("move split")
	return sibling, nil
}

// createExtraMoveTx handles done quantity exceeding demand. A candidate move
// is prepared for the excess and folded straight back into the original when
// every merge-distinguishing field matches, which bumps the demand instead of
// leaving a stray move behind.
func (s *moveService) createExtraMoveTx(tx *gorm.DB, m *model.Move, excessRef decimal.Decimal) error {
	extraQty := FromReference(excessRef, m.ProductUom, RoundHalfUp)
	extra := &model.Move{
		ID:                   uuid.New(),
		Reference:            m.Reference,
		Origin:               m.Origin,
		ProductID:            m.ProductID,
		ProductUomID:         m.ProductUomID,
		ProductUomQty:        extraQty,
		State:                model.MoveStateConfirmed,
		ProcureMethod:        model.ProcureMakeToStock,
		LocationID:           m.LocationID,
		LocationDestID:       m.LocationDestID,
		PickingID:            m.PickingID,
		GroupID:              m.GroupID,
		OwnerID:              m.OwnerID,
		PriceUnit:            m.PriceUnit,
		PropagateCancel:      m.PropagateCancel,
		Scrapped:             m.Scrapped,
		OriginReturnedMoveID: m.OriginReturnedMoveID,
		PackageLevelID:       m.PackageLevelID,
		PackagingID:          m.PackagingID,
		DateDeadline:         m.DateDeadline,
	}

	if mergeKeyOf(extra) == mergeKeyOf(m) {
		m.ProductUomQty = m.ProductUomQty.Add(extraQty)
		log.Info().
			Str("move_id", m.ID.String()).
			Str("extra_qty", extraQty.String()).
			Msg("overage merged into move demand")
		return nil
	}
	return s.moves.CreateTx(tx, extra)
}
