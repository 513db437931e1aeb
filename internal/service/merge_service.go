package service

import (
	"strings"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// mergeKey holds every field that must match for two moves to be folded into
// one. Quantity and description deliberately stay out: they are what merging
// combines.
type mergeKey struct {
	productID            uuid.UUID
	priceUnit            string
	procureMethod        string
	locationID           uuid.UUID
	locationDestID       uuid.UUID
	uomID                uuid.UUID
	ownerID              uuid.UUID
	scrapped             bool
	originReturnedMoveID uuid.UUID
	packageLevelID       uuid.UUID
	packagingID          uuid.UUID
	pickingID            uuid.UUID
	dateDeadline         int64
}

func mergeKeyOf(m *model.Move) mergeKey {
	key := mergeKey{
		productID:            m.ProductID,
		priceUnit:            m.PriceUnit.String(),
		procureMethod:        m.ProcureMethod,
		locationID:           m.LocationID,
		locationDestID:       m.LocationDestID,
		uomID:                m.ProductUomID,
		ownerID:              nilToZero(m.OwnerID),
		scrapped:             m.Scrapped,
		originReturnedMoveID: nilToZero(m.OriginReturnedMoveID),
		packageLevelID:       nilToZero(m.PackageLevelID),
		packagingID:          nilToZero(m.PackagingID),
		pickingID:            nilToZero(m.PickingID),
	}
	if m.DateDeadline != nil {
		key.dateDeadline = m.DateDeadline.Unix()
	}
	return key
}

var statePriority = map[string]int{
	model.MoveStateConfirmed:          1,
	model.MoveStatePartiallyAvailable: 2,
	model.MoveStateWaiting:            3,
	model.MoveStateAssigned:           4,
}

// mergedState picks the state of a merged move. Normally the most advanced
// state wins; for an all-at-once picking the least advanced wins instead, so
// the picking never looks ready while part of its demand is not.
func mergedState(moves []*model.Move) string {
	allAtOnce := false
	for _, m := range moves {
		if m.Picking != nil && m.Picking.MoveType == model.MoveTypeOne {
			allAtOnce = true
			break
		}
	}
	best := moves[0].State
	for _, m := range moves[1:] {
		better := statePriority[m.State] > statePriority[best]
		if allAtOnce {
			better = statePriority[m.State] < statePriority[best]
		}
		if better {
			best = m.State
		}
	}
	return best
}

func mergedOrigin(moves []*model.Move) string {
	var parts []string
	seen := make(map[string]bool)
	for _, m := range moves {
		if m.Origin == "" || seen[m.Origin] {
			continue
		}
		seen[m.Origin] = true
		parts = append(parts, m.Origin)
	}
	return strings.Join(parts, "/")
}

// mergeMovesTx folds same-key moves together and nets negative demand against
// positive, then returns the survivors. Called on confirmation, so duplicate
// order lines never produce duplicate reservations.
func (s *moveService) mergeMovesTx(tx *gorm.DB, moves []*model.Move) ([]*model.Move, error) {
	groups := make(map[mergeKey][]*model.Move)
	var keyOrder []mergeKey
	for _, m := range moves {
		if m.IsTerminal() || m.State == model.MoveStateDraft {
			continue
		}
		key := mergeKeyOf(m)
		if _, seen := groups[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		groups[key] = append(groups[key], m)
	}

	removed := make(map[uuid.UUID]bool)
	var survivors []*model.Move
	for _, key := range keyOrder {
		group := groups[key]
		if len(group) == 1 {
			survivors = append(survivors, group[0])
			continue
		}
		survivor, err := s.foldGroupTx(tx, group)
		if err != nil {
			return nil, err
		}
		for _, m := range group[1:] {
			removed[m.ID] = true
		}
		survivors = append(survivors, survivor)
	}

	survivors, err := s.netNegativesTx(tx, survivors)
	if err != nil {
		return nil, err
	}

	for _, m := range moves {
		if removed[m.ID] {
			continue
		}
		found := false
		for _, sv := range survivors {
			if sv.ID == m.ID {
				found = true
				break
			}
		}
		if !found && !removed[m.ID] && m.State != model.MoveStateCancel {
			survivors = append(survivors, m)
		}
	}
	return survivors, nil
}

func (s *moveService) foldGroupTx(tx *gorm.DB, group []*model.Move) (*model.Move, error) {
	survivor := group[0]
	var staleIDs []uuid.UUID
	var lineIDs []uuid.UUID

	for _, other := range group[1:] {
		survivor.ProductUomQty = survivor.ProductUomQty.Add(other.ProductUomQty)
		for i := range other.Lines {
			lineIDs = append(lineIDs, other.Lines[i].ID)
			survivor.Lines = append(survivor.Lines, other.Lines[i])
		}
		origIDs := make([]uuid.UUID, 0, len(other.OrigMoves))
		for _, orig := range other.OrigMoves {
			origIDs = append(origIDs, orig.ID)
			survivor.OrigMoves = append(survivor.OrigMoves, orig)
		}
		destIDs := make([]uuid.UUID, 0, len(other.DestMoves))
		for _, dest := range other.DestMoves {
			destIDs = append(destIDs, dest.ID)
			survivor.DestMoves = append(survivor.DestMoves, dest)
		}
		if err := s.moves.AddOrigMovesTx(tx, survivor, origIDs); err != nil {
			return nil, err
		}
		if err := s.moves.AddDestMovesTx(tx, survivor, destIDs); err != nil {
			return nil, err
		}
		staleIDs = append(staleIDs, other.ID)
	}

	survivor.Origin = mergedOrigin(group)
	survivor.State = mergedState(group)

	if err := s.lines.ReassignMoveTx(tx, lineIDs, survivor.ID); err != nil {
		return nil, err
	}
	for i := range survivor.Lines {
		survivor.Lines[i].MoveID = survivor.ID
	}
	if err := s.moves.DeleteTx(tx, staleIDs); err != nil {
		return nil, err
	}
	log.Info().
		Str("survivor_id", survivor.ID.String()).
		Int("merged", len(staleIDs)).
		Msg("moves merged")
	return survivor, nil
}

// netNegativesTx cancels negative demand against positive demand under the
// same key. A move whose demand reaches zero is cancelled and dropped.
func (s *moveService) netNegativesTx(tx *gorm.DB, moves []*model.Move) ([]*model.Move, error) {
	rounding := func(m *model.Move) decimal.Decimal { return productRounding(m.Product) }

	var positives, negatives []*model.Move
	for _, m := range moves {
		if m.ProductUomQty.Sign() < 0 {
			negatives = append(negatives, m)
		} else {
			positives = append(positives, m)
		}
	}

	drop := make(map[uuid.UUID]bool)
	var dropIDs []uuid.UUID
	for _, neg := range negatives {
		key := mergeKeyOf(neg)
		// priceUnit is excluded when matching a negative correction against
		// the positive demand it reverts.
		key.priceUnit = ""
		for _, pos := range positives {
			if drop[pos.ID] {
				continue
			}
			posKey := mergeKeyOf(pos)
			posKey.priceUnit = ""
			if posKey != key {
				continue
			}
			absorb := decimal.Min(pos.ProductUomQty, neg.ProductUomQty.Neg())
			pos.ProductUomQty = pos.ProductUomQty.Sub(absorb)
			neg.ProductUomQty = neg.ProductUomQty.Add(absorb)
			if QuantityIsZero(pos.ProductUomQty, rounding(pos)) {
				pos.State = model.MoveStateCancel
				drop[pos.ID] = true
				dropIDs = append(dropIDs, pos.ID)
			}
			if QuantityIsZero(neg.ProductUomQty, rounding(neg)) {
				break
			}
		}
		if QuantityIsZero(neg.ProductUomQty, rounding(neg)) {
			neg.State = model.MoveStateCancel
			drop[neg.ID] = true
			dropIDs = append(dropIDs, neg.ID)
		}
	}

	if err := s.moves.DeleteTx(tx, dropIDs); err != nil {
		return nil, err
	}
	if len(dropIDs) > 0 {
		log.Info().Int("netted", len(dropIDs)).Msg("negative moves netted against positive demand")
	}

	kept := moves[:0]
	for _, m := range moves {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	return kept, nil
}
