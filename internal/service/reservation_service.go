package service

import (
	"context"
	"errors"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReservationEngine turns confirmed demand into move lines backed by ledger
// reservations. Assign never fails on shortage: it reserves what it can and
// leaves the move partially available or waiting.
type ReservationEngine interface {
	ActionAssign(ctx context.Context, ids []uuid.UUID) error
	// AssignMovesTx is the in-transaction form, used when completing a move
	// unblocks its successors inside the same commit.
	AssignMovesTx(ctx context.Context, tx *gorm.DB, moves []*model.Move) error
}

type reservationEngine struct {
	moves     repository.MoveRepository
	lines     repository.MoveLineRepository
	locations repository.LocationRepository
	ledger    QuantLedger
}

func NewReservationEngine(
	moves repository.MoveRepository,
	lines repository.MoveLineRepository,
	locations repository.LocationRepository,
	ledger QuantLedger,
) ReservationEngine {
	return &reservationEngine{moves: moves, lines: lines, locations: locations, ledger: ledger}
}

// lineKey identifies a reservable slice of stock brought into a location by a
// predecessor: where it landed, under which lot, package and owner.
type lineKey struct {
	locationID uuid.UUID
	lotID      uuid.UUID
	packageID  uuid.UUID
	ownerID    uuid.UUID
}

func ptrOrNil(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	v := id
	return &v
}

func nilToZero(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func (e *reservationEngine) ActionAssign(ctx context.Context, ids []uuid.UUID) error {
	return runTx(ctx, e.moves.DB(), func(tx *gorm.DB) error {
		moves, err := e.moves.GetTx(tx, ids)
		if err != nil {
			return err
		}
		return e.AssignMovesTx(ctx, tx, moves)
	})
}

func (e *reservationEngine) AssignMovesTx(ctx context.Context, tx *gorm.DB, moves []*model.Move) error {
	var newLines []*model.MoveLine
	for _, m := range moves {
		if !m.CanReserve() {
			continue
		}
		rounding := productRounding(m.Product)
		demand := moveDemandRef(m)
		missing := demand.Sub(moveReservedRef(m))
		if CompareQuantities(missing, decimal.Zero, rounding) <= 0 {
			m.State = computeMoveState(m)
			if err := e.moves.SaveTx(tx, m); err != nil {
				return err
			}
			continue
		}
		missing = RoundQuantity(missing, rounding, RoundHalfUp)

		var lines []*model.MoveLine
		var err error
		switch {
		case m.Location.ShouldBypassReservation() || !m.Product.IsStockable():
			lines = e.forceLines(m, missing)
		case len(m.OrigMoves) == 0:
			lines, err = e.reserveFromStockTx(ctx, tx, m, missing)
		default:
			lines, err = e.reserveFromChainTx(ctx, tx, m, missing)
		}
		if err != nil {
			return err
		}

		for _, line := range lines {
			m.Lines = append(m.Lines, *line)
		}
		newLines = append(newLines, lines...)

		m.State = computeMoveState(m)
		if err := e.moves.SaveTx(tx, m); err != nil {
			return err
		}
		log.Debug().
			Str("move_id", m.ID.String()).
			Str("state", m.State).
			Int("new_lines", len(lines)).
			Msg("move assigned")
	}
	return e.lines.CreateBatchTx(tx, newLines)
}

// forceLines builds lines without touching the ledger. Supplier, customer and
// inventory-loss locations hold no countable stock, and consumables are never
// reserved. Quantities brought in by done predecessors keep their lot and
// package identity; the rest is a plain line at the source location.
func (e *reservationEngine) forceLines(m *model.Move, missing decimal.Decimal) []*model.MoveLine {
	var lines []*model.MoveLine
	remaining := missing

	brought, order := e.availableMoveLines(m)
	for _, key := range order {
		if remaining.Sign() <= 0 {
			break
		}
		qty := brought[key]
		if qty.Sign() <= 0 {
			continue
		}
		take := decimal.Min(qty, remaining)
		lines = append(lines, e.newLine(m, key.locationID, ptrOrNil(key.lotID), ptrOrNil(key.packageID), ptrOrNil(key.ownerID), take))
		remaining = remaining.Sub(take)
	}
	if remaining.Sign() > 0 {
		lines = append(lines, e.newLine(m, m.LocationID, nil, nil, m.OwnerID, remaining))
	}
	return lines
}

// reserveFromStockTx serves an unchained move from whatever the source
// subtree offers, in removal-strategy order.
func (e *reservationEngine) reserveFromStockTx(ctx context.Context, tx *gorm.DB, m *model.Move, missing decimal.Decimal) ([]*model.MoveLine, error) {
	opts := LedgerOptions{OwnerID: m.OwnerID}
	available, err := e.ledger.AvailableQuantity(ctx, tx, m.Product, m.Location, opts)
	if err != nil {
		return nil, err
	}
	if available.Sign() <= 0 {
		return nil, nil
	}
	rounding := productRounding(m.Product)
	taking := RoundQuantity(decimal.Min(missing, available), rounding, RoundDown)
	if taking.Sign() <= 0 {
		return nil, nil
	}

	takes, err := e.ledger.UpdateReservedQuantity(ctx, tx, m.Product, m.Location, taking, opts)
	if err != nil {
		// A concurrent reservation can win the race between the availability
		// read and the reserve; the move simply stays short this round.
		if errors.Is(err, ErrInsufficientStock) {
			return nil, nil
		}
		return nil, err
	}

	lines := make([]*model.MoveLine, 0, len(takes))
	for _, take := range takes {
		q := take.Quant
		lines = append(lines, e.newLine(m, q.LocationID, q.LotID, q.PackageID, q.OwnerID, take.Quantity))
	}
	return lines, nil
}

// reserveFromChainTx serves a chained move strictly from what its done
// predecessors brought in, net of what sibling successors already claimed.
func (e *reservationEngine) reserveFromChainTx(ctx context.Context, tx *gorm.DB, m *model.Move, missing decimal.Decimal) ([]*model.MoveLine, error) {
	brought, order := e.availableMoveLines(m)
	rounding := productRounding(m.Product)

	var lines []*model.MoveLine
	remaining := missing
	for _, key := range order {
		if remaining.Sign() <= 0 {
			break
		}
		qty := brought[key]
		if qty.Sign() <= 0 {
			continue
		}
		location, err := e.locations.GetTx(tx, key.locationID)
		if err != nil {
			return nil, err
		}
		opts := LedgerOptions{
			LotID:     ptrOrNil(key.lotID),
			PackageID: ptrOrNil(key.packageID),
			OwnerID:   ptrOrNil(key.ownerID),
			Strict:    true,
		}
		available, err := e.ledger.AvailableQuantity(ctx, tx, m.Product, location, opts)
		if err != nil {
			return nil, err
		}
		// The ledger can hold less than the chain accounting says, e.g. after
		// an inventory adjustment; fall back to the smaller quantity.
		taking := decimal.Min(decimal.Min(qty, remaining), available)
		taking = RoundQuantity(taking, rounding, RoundDown)
		if taking.Sign() <= 0 {
			continue
		}
		if _, err := e.ledger.UpdateReservedQuantity(ctx, tx, m.Product, location, taking, opts); err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				continue
			}
			return nil, err
		}
		lines = append(lines, e.newLine(m, key.locationID, opts.LotID, opts.PackageID, opts.OwnerID, taking))
		remaining = remaining.Sub(taking)
	}
	return lines, nil
}

// availableMoveLines computes, per line key, how much the done predecessors
// delivered into this move's source minus what every successor of those
// predecessors (this move included) has already reserved or shipped.
// Returns the map plus a deterministic key order (first-delivered first).
func (e *reservationEngine) availableMoveLines(m *model.Move) (map[lineKey]decimal.Decimal, []lineKey) {
	brought := make(map[lineKey]decimal.Decimal)
	var order []lineKey

	for _, orig := range m.OrigMoves {
		if orig.State != model.MoveStateDone {
			continue
		}
		for i := range orig.Lines {
			line := &orig.Lines[i]
			key := lineKey{
				locationID: line.LocationDestID,
				lotID:      nilToZero(line.LotID),
				packageID:  nilToZero(line.ResultPackageID),
				ownerID:    nilToZero(line.OwnerID),
			}
			if _, seen := brought[key]; !seen {
				order = append(order, key)
			}
			brought[key] = brought[key].Add(line.QtyDone)
		}
	}

	// Each sibling is visited once even when reachable through several
	// predecessors.
	seenSiblings := make(map[uuid.UUID]bool)
	for _, orig := range m.OrigMoves {
		if orig.State != model.MoveStateDone {
			continue
		}
		for _, sibling := range orig.DestMoves {
			if seenSiblings[sibling.ID] {
				continue
			}
			seenSiblings[sibling.ID] = true
			for i := range sibling.Lines {
				line := &sibling.Lines[i]
				key := lineKey{
					locationID: line.LocationID,
					lotID:      nilToZero(line.LotID),
					packageID:  nilToZero(line.PackageID),
					ownerID:    nilToZero(line.OwnerID),
				}
				// A standing reservation and an entered qty_done overlap until
				// the sibling validates, so debit the larger of the two. Done
				// lines carry qty_done only (ProductUomQty is reset on done).
				brought[key] = brought[key].Sub(decimal.Max(line.ProductUomQty, line.QtyDone))
			}
		}
	}
	return brought, order
}

func (e *reservationEngine) newLine(m *model.Move, locationID uuid.UUID, lotID, packageID, ownerID *uuid.UUID, qty decimal.Decimal) *model.MoveLine {
	return &model.MoveLine{
		ID:             uuid.New(),
		MoveID:         m.ID,
		ProductID:      m.ProductID,
		LocationID:     locationID,
		LocationDestID: m.LocationDestID,
		LotID:          lotID,
		PackageID:      packageID,
		OwnerID:        ownerID,
		ProductUomQty:  qty,
		QtyDone:        decimal.Zero,
		State:          m.State,
	}
}
