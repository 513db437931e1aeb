package service

import (
	"context"
	"testing"

	"stockledger/internal/dto"
	"stockledger/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMoveDefaults(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m, err := f.svc.Create(ctx, dto.CreateMoveRequest{
		Reference:      "OUT/0001",
		ProductID:      f.widget.ID.String(),
		LocationID:     f.stock.ID.String(),
		LocationDestID: f.customers.ID.String(),
		Quantity:       d("5"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.MoveStateDraft, m.State)
	assert.Equal(t, model.ProcureMakeToStock, m.ProcureMethod)
	assert.Equal(t, f.widget.UomID, m.ProductUomID)
	assert.True(t, m.PropagateCancel)
	assert.Contains(t, f.moves.moves, m.ID)
}

func TestCreateMoveRejectsUomFromAnotherCategory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	kg := f.addUom("kg", uuid.New(), "1", "0.001")

	_, err := f.svc.Create(ctx, dto.CreateMoveRequest{
		ProductID:      f.widget.ID.String(),
		LocationID:     f.stock.ID.String(),
		LocationDestID: f.customers.ID.String(),
		UomID:          kg.ID.String(),
		Quantity:       d("5"),
	})
	require.ErrorIs(t, err, ErrUomCategoryMismatch)
}

func TestCreateMoveLinksPredecessors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	orig := f.newMove(f.widget, f.suppliers, f.stock, "5")

	m, err := f.svc.Create(ctx, dto.CreateMoveRequest{
		ProductID:      f.widget.ID.String(),
		LocationID:     f.stock.ID.String(),
		LocationDestID: f.customers.ID.String(),
		Quantity:       d("5"),
		ProcureMethod:  model.ProcureMakeToOrder,
		OrigMoveIDs:    []string{orig.ID.String()},
	})
	require.NoError(t, err)
	require.Len(t, m.OrigMoves, 1)
	assert.Equal(t, orig.ID, m.OrigMoves[0].ID)
	assert.True(t, containsMove(orig.DestMoves, m.ID))
}

func TestConfirmStateByProcurement(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	mts := f.newMove(f.widget, f.stock, f.customers, "5")
	mto := f.newMove(f.widget, f.stock, f.customers, "5")
	mto.ProcureMethod = model.ProcureMakeToOrder
	mto.PriceUnit = d("1") // keep it out of the MTS move's merge group

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{mts.ID, mto.ID}))
	assert.Equal(t, model.MoveStateConfirmed, mts.State)
	assert.Equal(t, model.MoveStateWaiting, mto.State)
}

func TestUnreserveReturnsStockToPool(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := f.addQuant(f.widget, f.stock, "10", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "6")

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))
	require.True(t, d("6").Equal(q.ReservedQuantity))

	require.NoError(t, f.svc.DoUnreserve(ctx, []uuid.UUID{m.ID}))
	assert.True(t, q.ReservedQuantity.IsZero())
	assert.Empty(t, m.Lines)
	assert.Empty(t, f.lines.lines)
	assert.Equal(t, model.MoveStateConfirmed, m.State)
}

func TestUnreserveKeepsStartedLines(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := f.addQuant(f.widget, f.stock, "10", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "6")

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.svc.SetLineQtyDone(ctx, m.ID, m.Lines[0].ID, d("2")))

	require.NoError(t, f.svc.DoUnreserve(ctx, []uuid.UUID{m.ID}))
	assert.True(t, q.ReservedQuantity.IsZero())
	require.Len(t, m.Lines, 1)
	assert.True(t, m.Lines[0].ProductUomQty.IsZero())
	assert.True(t, d("2").Equal(m.Lines[0].QtyDone))
}

func TestUnreserveDoneMoveFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.newMove(f.widget, f.stock, f.customers, "6")
	m.State = model.MoveStateDone

	err := f.svc.DoUnreserve(ctx, []uuid.UUID{m.ID})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelReleasesReservation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := f.addQuant(f.widget, f.stock, "10", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "6")

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.svc.ActionCancel(ctx, []uuid.UUID{m.ID}))

	assert.Equal(t, model.MoveStateCancel, m.State)
	assert.True(t, q.ReservedQuantity.IsZero())
	assert.Empty(t, m.Lines)
}

func TestCancelPropagatesDownstream(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.newMove(f.widget, f.suppliers, f.stock, "5")
	b := f.newMove(f.widget, f.stock, f.customers, "5")
	b.ProcureMethod = model.ProcureMakeToOrder
	f.chain(a, b)

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{a.ID, b.ID}))
	require.NoError(t, f.svc.ActionCancel(ctx, []uuid.UUID{a.ID}))

	assert.Equal(t, model.MoveStateCancel, a.State)
	assert.Equal(t, model.MoveStateCancel, b.State)
}

func TestCancelDetachesWhenNotPropagating(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.newMove(f.widget, f.suppliers, f.stock, "5")
	a.PropagateCancel = false
	b := f.newMove(f.widget, f.stock, f.customers, "5")
	b.ProcureMethod = model.ProcureMakeToOrder
	f.chain(a, b)

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{a.ID, b.ID}))
	require.Equal(t, model.MoveStateWaiting, b.State)

	require.NoError(t, f.svc.ActionCancel(ctx, []uuid.UUID{a.ID}))
	assert.Equal(t, model.MoveStateCancel, a.State)
	// b lives on as an ordinary stock-sourced move.
	assert.Equal(t, model.MoveStateConfirmed, b.State)
	assert.Equal(t, model.ProcureMakeToStock, b.ProcureMethod)
	assert.Empty(t, b.OrigMoves)
}

func TestCancelWaitsForLastLivePredecessor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.newMove(f.widget, f.suppliers, f.stock, "3")
	c := f.newMove(f.widget, f.suppliers, f.shelf, "2")
	b := f.newMove(f.widget, f.stock, f.customers, "5")
	b.ProcureMethod = model.ProcureMakeToOrder
	f.chain(a, b)
	f.chain(c, b)

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{a.ID, c.ID, b.ID}))

	require.NoError(t, f.svc.ActionCancel(ctx, []uuid.UUID{a.ID}))
	assert.Equal(t, model.MoveStateWaiting, b.State) // c still has to deliver

	require.NoError(t, f.svc.ActionCancel(ctx, []uuid.UUID{c.ID}))
	assert.Equal(t, model.MoveStateCancel, b.State)
}

func TestCancelDoneMove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.newMove(f.widget, f.stock, f.customers, "5")
	m.State = model.MoveStateDone

	err := f.svc.ActionCancel(ctx, []uuid.UUID{m.ID})
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Scrap moves are the one exception.
	m.Scrapped = true
	require.NoError(t, f.svc.ActionCancel(ctx, []uuid.UUID{m.ID}))
	assert.Equal(t, model.MoveStateCancel, m.State)
}

func TestComputeMoveStateTable(t *testing.T) {
	origIn := func(state string) []*model.Move {
		return []*model.Move{{State: state}}
	}
	linesOf := func(qty string) []model.MoveLine {
		return []model.MoveLine{{ProductUomQty: d(qty)}}
	}

	cases := []struct {
		name string
		move model.Move
		want string
	}{
		{"draft is sticky", model.Move{State: model.MoveStateDraft, ProductUomQty: d("5")}, model.MoveStateDraft},
		{"done is terminal", model.Move{State: model.MoveStateDone, ProductUomQty: d("5")}, model.MoveStateDone},
		{"cancel is terminal", model.Move{State: model.MoveStateCancel, ProductUomQty: d("5")}, model.MoveStateCancel},
		{"fully reserved", model.Move{State: model.MoveStateConfirmed, ProductUomQty: d("5"), Lines: linesOf("5")}, model.MoveStateAssigned},
		{"over reserved", model.Move{State: model.MoveStateConfirmed, ProductUomQty: d("5"), Lines: linesOf("6")}, model.MoveStateAssigned},
		{"partially reserved", model.Move{State: model.MoveStateConfirmed, ProductUomQty: d("5"), Lines: linesOf("2")}, model.MoveStatePartiallyAvailable},
		{"nothing reserved", model.Move{State: model.MoveStateAssigned, ProductUomQty: d("5")}, model.MoveStateConfirmed},
		{"live predecessor blocks", model.Move{State: model.MoveStateConfirmed, ProductUomQty: d("5"), OrigMoves: origIn(model.MoveStateConfirmed)}, model.MoveStateWaiting},
		{"done predecessor unblocks", model.Move{State: model.MoveStateWaiting, ProductUomQty: d("5"), OrigMoves: origIn(model.MoveStateDone)}, model.MoveStateConfirmed},
		{"cancelled predecessor unblocks", model.Move{State: model.MoveStateWaiting, ProductUomQty: d("5"), OrigMoves: origIn(model.MoveStateCancel)}, model.MoveStateConfirmed},
		{"mto without served orig waits", model.Move{State: model.MoveStateConfirmed, ProductUomQty: d("5"), ProcureMethod: model.ProcureMakeToOrder}, model.MoveStateWaiting},
		{"mto with done orig proceeds", model.Move{State: model.MoveStateWaiting, ProductUomQty: d("5"), ProcureMethod: model.ProcureMakeToOrder, OrigMoves: origIn(model.MoveStateDone)}, model.MoveStateConfirmed},
		{"zero demand never assigned", model.Move{State: model.MoveStateConfirmed, Lines: linesOf("0")}, model.MoveStateConfirmed},
		{"partial reservation outranks predecessor", model.Move{State: model.MoveStatePartiallyAvailable, ProductUomQty: d("5"), Lines: linesOf("2"), OrigMoves: origIn(model.MoveStateAssigned)}, model.MoveStatePartiallyAvailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.move
			assert.Equal(t, tc.want, computeMoveState(&m))
		})
	}
}

func TestSetDemandRecomputesState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addQuant(f.widget, f.stock, "4", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "10")

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))
	require.Equal(t, model.MoveStatePartiallyAvailable, m.State)

	// Lowering demand to what is reserved makes the move ready.
	require.NoError(t, f.svc.SetDemand(ctx, m.ID, d("4")))
	assert.Equal(t, model.MoveStateAssigned, m.State)
}

func TestSetDemandForbiddenOnTerminalMove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.newMove(f.widget, f.stock, f.customers, "5")
	m.State = model.MoveStateDone

	err := f.svc.SetDemand(ctx, m.ID, d("3"))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetUomChecksCategory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	kg := f.addUom("kg", uuid.New(), "1", "0.001")
	m := f.newMove(f.widget, f.stock, f.customers, "5")

	err := f.svc.SetUom(ctx, m.ID, kg.ID)
	require.ErrorIs(t, err, ErrUomCategoryMismatch)

	require.NoError(t, f.svc.SetUom(ctx, m.ID, f.dozen.ID))
	assert.Equal(t, f.dozen.ID, m.ProductUomID)

	m.State = model.MoveStateDone
	err = f.svc.SetUom(ctx, m.ID, f.unit.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetLineQtyDoneRejectsOffGridQuantity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.addQuant(f.widget, f.stock, "10", nil, t0)
	m := f.newMove(f.widget, f.stock, f.customers, "6")

	require.NoError(t, f.svc.ActionConfirm(ctx, []uuid.UUID{m.ID}))
	require.NoError(t, f.reserve.ActionAssign(ctx, []uuid.UUID{m.ID}))

	err := f.svc.SetLineQtyDone(ctx, m.ID, m.Lines[0].ID, d("1.0005"))
	require.ErrorIs(t, err, ErrRoundingInconsistency)
}
