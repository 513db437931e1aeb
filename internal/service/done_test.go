package service

import (
	"context"
	"testing"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoneMovesStockBetweenLocations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	src := f.addQuant(f.widget, f.stock, "10", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "6")

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.svc.SetLineQtyDone(ctx, m.ID, m.Lines[0].ID, d("6")))

	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, false))

	assert.Equal(t, model.MoveStateDone, m.State)
	require.NotNil(t, m.DateDone)
	assert.True(t, d("4").Equal(src.Quantity))
	assert.True(t, src.ReservedQuantity.IsZero())
	assert.True(t, d("6").Equal(f.quantAt(f.widget, f.customers, nil)))

	require.Len(t, m.Lines, 1)
	assert.True(t, m.Lines[0].ProductUomQty.IsZero())
	assert.Equal(t, model.MoveStateDone, m.Lines[0].State)
}

func TestDonePartialCreatesBackorder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addQuant(f.widget, f.stock, "10", nil, t0)
	picking := f.addPicking("PICK/0001")
	m := f.newMove(f.widget, f.stock, f.customers, "10")
	m.PickingID = &picking.ID
	m.Picking = picking

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.svc.SetLineQtyDone(ctx, m.ID, m.Lines[0].ID, d("6")))

	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, false))

	assert.Equal(t, model.MoveStateDone, m.State)
	assert.True(t, d("6").Equal(m.ProductUomQty))

	backorder := f.otherMove(m.ID)
	require.NotNil(t, backorder)
	assert.Equal(t, model.MoveStateConfirmed, backorder.State)
	assert.True(t, d("4").Equal(backorder.ProductUomQty))

	require.NotNil(t, backorder.PickingID)
	backPicking := f.pickings.pickings[*backorder.PickingID]
	require.NotNil(t, backPicking)
	assert.Equal(t, "PICK/0001-BACK", backPicking.Name)
	require.NotNil(t, backPicking.BackorderID)
	assert.Equal(t, picking.ID, *backPicking.BackorderID)
}

func TestDonePartialWithCancelBackorderReducesDemand(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addQuant(f.widget, f.stock, "10", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "10")

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.svc.SetLineQtyDone(ctx, m.ID, m.Lines[0].ID, d("6")))

	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, true))

	assert.Equal(t, model.MoveStateDone, m.State)
	assert.True(t, d("6").Equal(m.ProductUomQty))
	assert.Nil(t, f.otherMove(m.ID))
}

func TestDoneOverageBumpsDemandWhenMergeable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addQuant(f.widget, f.stock, "20", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "10")
	m.State = model.MoveStateConfirmed
	m.Lines = []model.MoveLine{{
		ID:             uuid.New(),
		MoveID:         m.ID,
		ProductID:      f.widget.ID,
		LocationID:     f.stock.ID,
		LocationDestID: f.customers.ID,
		QtyDone:        d("12"),
	}}

	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, false))

	assert.Equal(t, model.MoveStateDone, m.State)
	assert.True(t, d("12").Equal(m.ProductUomQty))
	assert.Nil(t, f.otherMove(m.ID))
}

func TestDoneOverageCreatesExtraMoveWhenNotMergeable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addQuant(f.widget, f.stock, "20", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "10")
	m.State = model.MoveStateConfirmed
	m.ProcureMethod = model.ProcureMakeToOrder
	m.Lines = []model.MoveLine{{
		ID:             uuid.New(),
		MoveID:         m.ID,
		ProductID:      f.widget.ID,
		LocationID:     f.stock.ID,
		LocationDestID: f.customers.ID,
		QtyDone:        d("12"),
	}}

	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, false))

	// The excess demand is make-to-stock, so it cannot fold back into the
	// make-to-order original.
	assert.True(t, d("10").Equal(m.ProductUomQty))
	extra := f.otherMove(m.ID)
	require.NotNil(t, extra)
	assert.Equal(t, model.MoveStateConfirmed, extra.State)
	assert.Equal(t, model.ProcureMakeToStock, extra.ProcureMethod)
	assert.True(t, d("2").Equal(extra.ProductUomQty))
}

func TestDoneWithNothingPicked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := f.addQuant(f.widget, f.stock, "10", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "6")

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))

	// Nothing was picked: without cancel_backorder the move is left alone.
	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, false))
	assert.Equal(t, model.MoveStateAssigned, m.State)
	assert.True(t, d("6").Equal(q.ReservedQuantity))

	// With cancel_backorder it is cancelled and the reservation returned.
	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, true))
	assert.Equal(t, model.MoveStateCancel, m.State)
	assert.True(t, q.ReservedQuantity.IsZero())
}

func TestDoneRequiresLotForTrackedProduct(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addQuant(f.serum, f.stock, "10", nil, t0)
	m := f.newMove(f.serum, f.stock, f.customers, "3")
	m.State = model.MoveStateConfirmed
	m.Lines = []model.MoveLine{{
		ID:             uuid.New(),
		MoveID:         m.ID,
		ProductID:      f.serum.ID,
		LocationID:     f.stock.ID,
		LocationDestID: f.customers.ID,
		QtyDone:        d("3"),
	}}

	err := f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, false)
	require.ErrorIs(t, err, ErrTrackingViolation)
}

func TestDoneRejectsOffGridQuantity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addQuant(f.widget, f.stock, "10", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "3")
	m.State = model.MoveStateConfirmed
	m.Lines = []model.MoveLine{{
		ID:             uuid.New(),
		MoveID:         m.ID,
		ProductID:      f.widget.ID,
		LocationID:     f.stock.ID,
		LocationDestID: f.customers.ID,
		QtyDone:        d("1.0005"),
	}}

	err := f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, false)
	require.ErrorIs(t, err, ErrRoundingInconsistency)
}

func TestDoneUntrackedStockAbsorbsLotShortfall(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	lot := f.addLot(f.serum, "LOT-A")
	lotQuant := f.addQuant(f.serum, f.stock, "2", lot, t0)
	untracked := f.addQuant(f.serum, f.stock, "5", nil, t0)

	m := f.newMove(f.serum, f.stock, f.customers, "4")
	m.State = model.MoveStateConfirmed
	m.Lines = []model.MoveLine{{
		ID:             uuid.New(),
		MoveID:         m.ID,
		ProductID:      f.serum.ID,
		LocationID:     f.stock.ID,
		LocationDestID: f.customers.ID,
		LotID:          &lot.ID,
		QtyDone:        d("4"),
	}}

	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, false))

	// Shipping 4 of a lot holding 2: the untracked quant covers the gap so
	// the lot does not go negative while anonymous stock sits beside it.
	assert.True(t, lotQuant.Quantity.IsZero())
	assert.True(t, d("3").Equal(untracked.Quantity))
	assert.True(t, d("4").Equal(f.quantAt(f.serum, f.customers, &lot.ID)))
}

func TestDoneTriggersSuccessorReservation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.newMove(f.widget, f.suppliers, f.stock, "5")
	b := f.newMove(f.widget, f.stock, f.customers, "5")
	b.ProcureMethod = model.ProcureMakeToOrder
	f.chain(a, b)

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{a.ID, b.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{a.ID}))
	require.Equal(t, model.MoveStateAssigned, a.State)
	require.Equal(t, model.MoveStateWaiting, b.State)

	require.NoError(t, f.svc.SetLineQtyDone(ctx, a.ID, a.Lines[0].ID, d("5")))
	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{a.ID}, false))

	// Completing the receipt reserves the delivery in the same pass.
	assert.Equal(t, model.MoveStateDone, a.State)
	assert.Equal(t, model.MoveStateAssigned, b.State)
	require.Len(t, b.Lines, 1)
	assert.True(t, d("5").Equal(b.Lines[0].ProductUomQty))
	assert.Equal(t, f.stock.ID, b.Lines[0].LocationID)
}

func TestSetLineQtyDoneCorrectsDoneMove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	src := f.addQuant(f.widget, f.stock, "10", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "6")

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.svc.SetLineQtyDone(ctx, m.ID, m.Lines[0].ID, d("6")))
	require.NoError(t, f.svc.ActionDone(ctx, []uuid.UUID{m.ID}, false))
	require.True(t, d("4").Equal(src.Quantity))

	// Correcting the shipped quantity afterwards replays the difference
	// through the ledger at both endpoints.
	require.NoError(t, f.svc.SetLineQtyDone(ctx, m.ID, m.Lines[0].ID, d("8")))
	assert.True(t, d("2").Equal(src.Quantity))
	assert.True(t, d("8").Equal(f.quantAt(f.widget, f.customers, nil)))
	assert.True(t, d("8").Equal(m.Lines[0].QtyDone))
}

// quantAt sums on-hand quantity for a product at an exact location and lot key.
func (f *fixture) quantAt(p *model.Product, loc *model.Location, lotID *uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, q := range f.quants.quants {
		if q.ProductID == p.ID && q.LocationID == loc.ID && uuidPtrsEqual(q.LotID, lotID) {
			total = total.Add(q.Quantity)
		}
	}
	return total
}

// otherMove returns the single move that is not id, nil when none exists.
func (f *fixture) otherMove(id uuid.UUID) *model.Move {
	for _, m := range f.moves.moves {
		if m.ID != id {
			return m
		}
	}
	return nil
}
