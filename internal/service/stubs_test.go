package service

import (
	"context"
	"strings"
	"time"

	"stockledger/internal/dto"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory repository stubs. They honor the same contracts as the GORM
// implementations, including the lock modes: LockSkipLocked drops rows whose
// IDs sit in the locked set so tests can exercise the sibling-quant fallback.
// Every DB() returns nil, which makes runTx call the workload directly.

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func uuidPtrsEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ── Quants ───────────────────────────────────────────────────────────────────

type stubQuantRepo struct {
	quants    map[uuid.UUID]*model.Quant
	order     []uuid.UUID
	locked    map[uuid.UUID]bool
	products  *stubProductRepo
	locations *stubLocationRepo
}

func newStubQuantRepo(products *stubProductRepo, locations *stubLocationRepo) *stubQuantRepo {
	return &stubQuantRepo{
		quants:    make(map[uuid.UUID]*model.Quant),
		locked:    make(map[uuid.UUID]bool),
		products:  products,
		locations: locations,
	}
}

func (r *stubQuantRepo) DB() *gorm.DB { return nil }

func (r *stubQuantRepo) hydrate(q *model.Quant) *model.Quant {
	if q.Product == nil {
		q.Product = r.products.products[q.ProductID]
	}
	if q.Location == nil {
		q.Location = r.locations.locations[q.LocationID]
	}
	return q
}

func (r *stubQuantRepo) GatherTx(tx *gorm.DB, f repository.QuantFilter, order string) ([]*model.Quant, error) {
	var out []*model.Quant
	for _, id := range r.order {
		q := r.hydrate(r.quants[id])
		if q.ProductID != f.ProductID {
			continue
		}
		if f.Lock == repository.LockSkipLocked && r.locked[q.ID] {
			continue
		}
		if f.Strict {
			if q.LocationID != f.Location.ID ||
				!uuidPtrsEqual(q.LotID, f.LotID) ||
				!uuidPtrsEqual(q.PackageID, f.PackageID) ||
				!uuidPtrsEqual(q.OwnerID, f.OwnerID) {
				continue
			}
		} else {
			if !strings.HasPrefix(q.Location.ParentPath, f.Location.ParentPath) {
				continue
			}
			if f.LotID != nil && q.LotID != nil && *q.LotID != *f.LotID {
				continue
			}
			if f.PackageID != nil && !uuidPtrsEqual(q.PackageID, f.PackageID) {
				continue
			}
			if f.OwnerID != nil && !uuidPtrsEqual(q.OwnerID, f.OwnerID) {
				continue
			}
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *stubQuantRepo) CreateTx(tx *gorm.DB, q *model.Quant) error {
	r.quants[q.ID] = r.hydrate(q)
	r.order = append(r.order, q.ID)
	return nil
}

func (r *stubQuantRepo) SaveTx(tx *gorm.DB, q *model.Quant) error {
	if _, ok := r.quants[q.ID]; !ok {
		return r.CreateTx(tx, q)
	}
	r.quants[q.ID] = q
	return nil
}

func (r *stubQuantRepo) DeleteTx(tx *gorm.DB, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(r.quants, id)
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.quants[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
	return nil
}

func (r *stubQuantRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Quant, error) {
	q, ok := r.quants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.hydrate(q), nil
}

func (r *stubQuantRepo) ZeroCandidatesTx(tx *gorm.DB) ([]*model.Quant, error) {
	epsilon := d("0.00005")
	var out []*model.Quant
	for _, id := range r.order {
		q := r.hydrate(r.quants[id])
		if q.Quantity.Abs().Cmp(epsilon) < 0 &&
			q.ReservedQuantity.Abs().Cmp(epsilon) < 0 &&
			q.InventoryQuantity.Abs().Cmp(epsilon) < 0 {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *stubQuantRepo) DuplicateGroupsTx(tx *gorm.DB) ([][]*model.Quant, error) {
	var groups [][]*model.Quant
	for _, id := range r.order {
		q := r.quants[id]
		placed := false
		for i, group := range groups {
			if group[0].SameKey(q) {
				groups[i] = append(group, q)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []*model.Quant{q})
		}
	}
	var out [][]*model.Quant
	for _, group := range groups {
		if len(group) > 1 {
			out = append(out, group)
		}
	}
	return out, nil
}

func (r *stubQuantRepo) List(ctx context.Context, filter dto.QuantFilter) ([]model.Quant, int64, error) {
	return nil, 0, nil
}

// ── Locations ────────────────────────────────────────────────────────────────

type stubLocationRepo struct {
	locations map[uuid.UUID]*model.Location
}

func (r *stubLocationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Location, error) {
	return r.GetTx(nil, id)
}

func (r *stubLocationRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Location, error) {
	loc, ok := r.locations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return loc, nil
}

func (r *stubLocationRepo) AncestorChainTx(tx *gorm.DB, loc *model.Location) ([]*model.Location, error) {
	chain := []*model.Location{loc}
	ancestorIDs := loc.AncestorIDs()
	for i := len(ancestorIDs) - 1; i >= 0; i-- {
		if a, ok := r.locations[ancestorIDs[i]]; ok {
			chain = append(chain, a)
		}
	}
	return chain, nil
}

func (r *stubLocationRepo) Create(ctx context.Context, loc *model.Location) error {
	if loc.ID == uuid.Nil {
		loc.ID = uuid.New()
	}
	if loc.ParentID != nil {
		parent := r.locations[*loc.ParentID]
		loc.ParentPath = parent.ParentPath + loc.ID.String() + "/"
	} else {
		loc.ParentPath = loc.ID.String() + "/"
	}
	r.locations[loc.ID] = loc
	return nil
}

// ── Products, UoMs, lots, pickings ───────────────────────────────────────────

type stubProductRepo struct {
	products map[uuid.UUID]*model.Product
}

func (r *stubProductRepo) Get(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.GetTx(nil, id)
}

func (r *stubProductRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *stubProductRepo) Create(ctx context.Context, p *model.Product) error {
	r.products[p.ID] = p
	return nil
}

type stubUomRepo struct {
	uoms map[uuid.UUID]*model.UoM
}

func (r *stubUomRepo) Get(ctx context.Context, id uuid.UUID) (*model.UoM, error) {
	return r.GetTx(nil, id)
}

func (r *stubUomRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.UoM, error) {
	u, ok := r.uoms[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *stubUomRepo) Create(ctx context.Context, u *model.UoM) error {
	r.uoms[u.ID] = u
	return nil
}

type stubLotRepo struct {
	lots map[uuid.UUID]*model.Lot
}

func (r *stubLotRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Lot, error) {
	l, ok := r.lots[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return l, nil
}

func (r *stubLotRepo) FindOrCreateTx(tx *gorm.DB, productID uuid.UUID, name string) (*model.Lot, error) {
	for _, l := range r.lots {
		if l.ProductID == productID && l.Name == name {
			return l, nil
		}
	}
	l := &model.Lot{ID: uuid.New(), ProductID: productID, Name: name}
	r.lots[l.ID] = l
	return l, nil
}

type stubPickingRepo struct {
	pickings map[uuid.UUID]*model.Picking
}

func (r *stubPickingRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Picking, error) {
	p, ok := r.pickings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *stubPickingRepo) CreateTx(tx *gorm.DB, p *model.Picking) error {
	r.pickings[p.ID] = p
	return nil
}

func (r *stubPickingRepo) SaveTx(tx *gorm.DB, p *model.Picking) error {
	r.pickings[p.ID] = p
	return nil
}

// ── Moves ────────────────────────────────────────────────────────────────────

type stubMoveRepo struct {
	moves     map[uuid.UUID]*model.Move
	order     []uuid.UUID
	products  *stubProductRepo
	uoms      *stubUomRepo
	locations *stubLocationRepo
	pickings  *stubPickingRepo
}

func (r *stubMoveRepo) DB() *gorm.DB { return nil }

func (r *stubMoveRepo) hydrate(m *model.Move) *model.Move {
	if m.Product == nil {
		m.Product = r.products.products[m.ProductID]
	}
	if m.ProductUom == nil {
		m.ProductUom = r.uoms.uoms[m.ProductUomID]
	}
	if m.Location == nil {
		m.Location = r.locations.locations[m.LocationID]
	}
	if m.LocationDest == nil {
		m.LocationDest = r.locations.locations[m.LocationDestID]
	}
	if m.Picking == nil && m.PickingID != nil {
		m.Picking = r.pickings.pickings[*m.PickingID]
	}
	return m
}

func (r *stubMoveRepo) GetTx(tx *gorm.DB, ids []uuid.UUID) ([]*model.Move, error) {
	var out []*model.Move
	for _, id := range ids {
		if m, ok := r.moves[id]; ok {
			out = append(out, r.hydrate(m))
		}
	}
	return out, nil
}

func (r *stubMoveRepo) CreateTx(tx *gorm.DB, m *model.Move) error {
	r.moves[m.ID] = m
	r.order = append(r.order, m.ID)
	return nil
}

func (r *stubMoveRepo) SaveTx(tx *gorm.DB, m *model.Move) error {
	if _, ok := r.moves[m.ID]; !ok {
		return r.CreateTx(tx, m)
	}
	r.moves[m.ID] = m
	return nil
}

func (r *stubMoveRepo) DeleteTx(tx *gorm.DB, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(r.moves, id)
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.moves[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
	// Scrub dangling edges, mirroring the join-row cleanup.
	for _, m := range r.moves {
		m.OrigMoves = withoutDeleted(m.OrigMoves, r.moves)
		m.DestMoves = withoutDeleted(m.DestMoves, r.moves)
	}
	return nil
}

func withoutDeleted(edges []*model.Move, alive map[uuid.UUID]*model.Move) []*model.Move {
	kept := edges[:0]
	for _, e := range edges {
		if _, ok := alive[e.ID]; ok {
			kept = append(kept, e)
		}
	}
	return kept
}

func containsMove(edges []*model.Move, id uuid.UUID) bool {
	for _, e := range edges {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (r *stubMoveRepo) AddOrigMovesTx(tx *gorm.DB, m *model.Move, origIDs []uuid.UUID) error {
	for _, id := range origIDs {
		orig, ok := r.moves[id]
		if !ok {
			continue
		}
		if !containsMove(m.OrigMoves, id) {
			m.OrigMoves = append(m.OrigMoves, orig)
		}
		if !containsMove(orig.DestMoves, m.ID) {
			orig.DestMoves = append(orig.DestMoves, m)
		}
	}
	return nil
}

func (r *stubMoveRepo) AddDestMovesTx(tx *gorm.DB, m *model.Move, destIDs []uuid.UUID) error {
	for _, id := range destIDs {
		dest, ok := r.moves[id]
		if !ok {
			continue
		}
		if !containsMove(m.DestMoves, id) {
			m.DestMoves = append(m.DestMoves, dest)
		}
		if !containsMove(dest.OrigMoves, m.ID) {
			dest.OrigMoves = append(dest.OrigMoves, m)
		}
	}
	return nil
}

func (r *stubMoveRepo) ClearOrigMovesTx(tx *gorm.DB, m *model.Move) error {
	for _, orig := range m.OrigMoves {
		kept := orig.DestMoves[:0]
		for _, dest := range orig.DestMoves {
			if dest.ID != m.ID {
				kept = append(kept, dest)
			}
		}
		orig.DestMoves = kept
	}
	return nil
}

func (r *stubMoveRepo) Get(ctx context.Context, id uuid.UUID) (*model.Move, error) {
	m, ok := r.moves[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.hydrate(m), nil
}

func (r *stubMoveRepo) List(ctx context.Context, filter dto.MoveFilter) ([]model.Move, int64, error) {
	return nil, 0, nil
}

func (r *stubMoveRepo) ListAwaitingIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		if r.moves[id].CanReserve() {
			out = append(out, id)
		}
	}
	return out, nil
}

// ── Move lines ───────────────────────────────────────────────────────────────

type stubMoveLineRepo struct {
	lines map[uuid.UUID]*model.MoveLine
}

func (r *stubMoveLineRepo) CreateBatchTx(tx *gorm.DB, lines []*model.MoveLine) error {
	for _, line := range lines {
		cp := *line
		r.lines[line.ID] = &cp
	}
	return nil
}

func (r *stubMoveLineRepo) SaveTx(tx *gorm.DB, line *model.MoveLine) error {
	cp := *line
	r.lines[line.ID] = &cp
	return nil
}

func (r *stubMoveLineRepo) DeleteTx(tx *gorm.DB, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(r.lines, id)
	}
	return nil
}

func (r *stubMoveLineRepo) ReassignMoveTx(tx *gorm.DB, lineIDs []uuid.UUID, moveID uuid.UUID) error {
	for _, id := range lineIDs {
		if line, ok := r.lines[id]; ok {
			line.MoveID = moveID
		}
	}
	return nil
}

// ── Fixture ──────────────────────────────────────────────────────────────────

// fixture wires the full service stack over the stubs plus a small warehouse:
// Stock (internal, with Shelf below it), Customers, Suppliers, a reference
// Unit UoM, a Dozen UoM in the same category, an untracked widget and a
// lot-tracked serum.
type fixture struct {
	quants    *stubQuantRepo
	moves     *stubMoveRepo
	lines     *stubMoveLineRepo
	locations *stubLocationRepo
	products  *stubProductRepo
	uoms      *stubUomRepo
	lots      *stubLotRepo
	pickings  *stubPickingRepo

	ledger  QuantLedger
	reserve ReservationEngine
	svc     MoveService

	unit  *model.UoM
	dozen *model.UoM

	widget *model.Product
	serum  *model.Product

	stock     *model.Location
	shelf     *model.Location
	customers *model.Location
	suppliers *model.Location
}

func newFixture() *fixture {
	f := &fixture{
		locations: &stubLocationRepo{locations: make(map[uuid.UUID]*model.Location)},
		products:  &stubProductRepo{products: make(map[uuid.UUID]*model.Product)},
		uoms:      &stubUomRepo{uoms: make(map[uuid.UUID]*model.UoM)},
		lots:      &stubLotRepo{lots: make(map[uuid.UUID]*model.Lot)},
		pickings:  &stubPickingRepo{pickings: make(map[uuid.UUID]*model.Picking)},
		lines:     &stubMoveLineRepo{lines: make(map[uuid.UUID]*model.MoveLine)},
	}
	f.quants = newStubQuantRepo(f.products, f.locations)
	f.moves = &stubMoveRepo{
		moves:     make(map[uuid.UUID]*model.Move),
		products:  f.products,
		uoms:      f.uoms,
		locations: f.locations,
		pickings:  f.pickings,
	}

	f.ledger = NewQuantLedger(f.quants, f.locations, f.products, f.lots)
	f.reserve = NewReservationEngine(f.moves, f.lines, f.locations, f.ledger)
	f.svc = NewMoveService(f.moves, f.lines, f.locations, f.products, f.uoms, f.pickings, f.ledger, f.reserve)

	qtyCategory := uuid.New()
	f.unit = f.addUom("Unit", qtyCategory, "1", "0.001")
	f.dozen = f.addUom("Dozen", qtyCategory, "12", "0.01")

	f.stock = f.addLocation("Stock", model.LocationUsageInternal, nil)
	f.shelf = f.addLocation("Shelf A", model.LocationUsageInternal, f.stock)
	f.customers = f.addLocation("Customers", model.LocationUsageCustomer, nil)
	f.suppliers = f.addLocation("Suppliers", model.LocationUsageSupplier, nil)

	f.widget = f.addProduct("Widget", model.TrackingNone, f.unit)
	f.serum = f.addProduct("Serum", model.TrackingLot, f.unit)
	return f
}

func (f *fixture) addUom(name string, categoryID uuid.UUID, factor, rounding string) *model.UoM {
	u := &model.UoM{
		ID:         uuid.New(),
		Name:       name,
		CategoryID: categoryID,
		Factor:     d(factor),
		Rounding:   d(rounding),
	}
	f.uoms.uoms[u.ID] = u
	return u
}

func (f *fixture) addLocation(name, usage string, parent *model.Location) *model.Location {
	loc := &model.Location{Name: name, Usage: usage}
	if parent != nil {
		loc.ParentID = &parent.ID
	}
	_ = f.locations.Create(context.Background(), loc)
	return loc
}

func (f *fixture) addProduct(name, tracking string, uom *model.UoM) *model.Product {
	p := &model.Product{
		ID:       uuid.New(),
		Name:     name,
		Type:     model.ProductTypeProduct,
		Tracking: tracking,
		UomID:    uom.ID,
		Uom:      uom,
	}
	f.products.products[p.ID] = p
	return p
}

func (f *fixture) addLot(p *model.Product, name string) *model.Lot {
	l := &model.Lot{ID: uuid.New(), ProductID: p.ID, Name: name}
	f.lots.lots[l.ID] = l
	return l
}

func (f *fixture) addQuant(p *model.Product, loc *model.Location, qty string, lot *model.Lot, inDate time.Time) *model.Quant {
	q := &model.Quant{
		ID:         uuid.New(),
		ProductID:  p.ID,
		LocationID: loc.ID,
		Quantity:   d(qty),
		InDate:     inDate,
		Product:    p,
		Location:   loc,
	}
	if lot != nil {
		q.LotID = &lot.ID
		q.Lot = lot
	}
	_ = f.quants.CreateTx(nil, q)
	return q
}

func (f *fixture) newMove(p *model.Product, from, to *model.Location, qty string) *model.Move {
	m := &model.Move{
		ID:              uuid.New(),
		ProductID:       p.ID,
		Product:         p,
		ProductUomID:    p.UomID,
		ProductUom:      p.Uom,
		ProductUomQty:   d(qty),
		State:           model.MoveStateDraft,
		ProcureMethod:   model.ProcureMakeToStock,
		LocationID:      from.ID,
		Location:        from,
		LocationDestID:  to.ID,
		LocationDest:    to,
		PropagateCancel: true,
	}
	_ = f.moves.CreateTx(nil, m)
	return m
}

func (f *fixture) chain(orig, dest *model.Move) {
	_ = f.moves.AddOrigMovesTx(nil, dest, []uuid.UUID{orig.ID})
}

func (f *fixture) addPicking(name string) *model.Picking {
	p := &model.Picking{
		ID:       uuid.New(),
		Name:     name,
		MoveType: model.MoveTypeDirect,
	}
	f.pickings.pickings[p.ID] = p
	return p
}
