package service

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerOptions narrows a ledger call to a key. Strict pins every dimension
// exactly (nil lot means "no lot"); non-strict aggregates over the location
// subtree and only filters the dimensions that are set. AllowNegative lets
// negative per-lot availabilities offset positive ones — used internally
// during reservation release accounting, never for user-facing availability.
type LedgerOptions struct {
	LotID         *uuid.UUID
	PackageID     *uuid.UUID
	OwnerID       *uuid.UUID
	Strict        bool
	AllowNegative bool
	InDate        *time.Time
}

// QuantTake is one quant's contribution to a reservation change; the
// reservation engine turns each take into a move line.
type QuantTake struct {
	Quant    *model.Quant
	Quantity decimal.Decimal
}

// QuantLedger is the authoritative store of on-hand and reserved quantities.
// All mutating methods run inside the caller's transaction: a reservation
// either applies fully or rolls back, never partially.
type QuantLedger interface {
	AvailableQuantity(ctx context.Context, tx *gorm.DB, product *model.Product, location *model.Location, opts LedgerOptions) (decimal.Decimal, error)
	UpdateAvailableQuantity(ctx context.Context, tx *gorm.DB, product *model.Product, location *model.Location, delta decimal.Decimal, opts LedgerOptions) (decimal.Decimal, time.Time, error)
	UpdateReservedQuantity(ctx context.Context, tx *gorm.DB, product *model.Product, location *model.Location, delta decimal.Decimal, opts LedgerOptions) ([]QuantTake, error)
	// ReleaseUpTo releases at most qty of reservation at a key without failing
	// when less is actually reserved — inventory adjustments can shrink the
	// reserved pool underneath a standing move line.
	ReleaseUpTo(ctx context.Context, tx *gorm.DB, product *model.Product, location *model.Location, qty decimal.Decimal, opts LedgerOptions) ([]QuantTake, error)

	// Adjust applies an on-hand delta at a key, resolving the lot by name —
	// the inventory-adjustment entry point.
	Adjust(ctx context.Context, productID, locationID uuid.UUID, delta decimal.Decimal, lotName string, packageID, ownerID *uuid.UUID) (decimal.Decimal, error)
	// ApplyInventory commits a quant's pending counted quantity.
	ApplyInventory(ctx context.Context, quantID uuid.UUID) error

	// Batch maintenance — run periodically, never on the mutation hot path.
	MergeQuants(ctx context.Context) (int, error)
	UnlinkZeroQuants(ctx context.Context) (int, error)
}

type ledgerService struct {
	quants    repository.QuantRepository
	locations repository.LocationRepository
	products  repository.ProductRepository
	lots      repository.LotRepository
}

func NewQuantLedger(
	quants repository.QuantRepository,
	locations repository.LocationRepository,
	products repository.ProductRepository,
	lots repository.LotRepository,
) QuantLedger {
	return &ledgerService{quants: quants, locations: locations, products: products, lots: lots}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

func productRounding(p *model.Product) decimal.Decimal {
	if p != nil && p.Uom != nil {
		return p.Uom.Rounding
	}
	return decimal.New(1, -3) // 0.001, the finest step the ledger supports
}

// gather fetches candidate quants in removal-strategy order. With a lot on a
// non-strict call, quants carrying the lot come before untracked ones so the
// lot is depleted before untracked stock absorbs the remainder.
func (s *ledgerService) gather(tx *gorm.DB, product *model.Product, location *model.Location, opts LedgerOptions, lock repository.LockMode) ([]*model.Quant, error) {
	chain, err := s.locations.AncestorChainTx(tx, location)
	if err != nil {
		return nil, fmt.Errorf("ancestor chain for %s: %w", location.ID, err)
	}
	strategy := ResolveRemovalStrategy(product, chain)

	quants, err := s.quants.GatherTx(tx, repository.QuantFilter{
		ProductID: product.ID,
		Location:  location,
		LotID:     opts.LotID,
		PackageID: opts.PackageID,
		OwnerID:   opts.OwnerID,
		Strict:    opts.Strict,
		Lock:      lock,
	}, strategy.OrderClause())
	if err != nil {
		return nil, err
	}

	SortQuants(quants, strategy)
	if !opts.Strict && opts.LotID != nil {
		quants = lotMatchesFirst(quants, *opts.LotID)
	}
	return quants, nil
}

func lotMatchesFirst(quants []*model.Quant, lotID uuid.UUID) []*model.Quant {
	ordered := make([]*model.Quant, 0, len(quants))
	for _, q := range quants {
		if q.LotID != nil && *q.LotID == lotID {
			ordered = append(ordered, q)
		}
	}
	for _, q := range quants {
		if q.LotID == nil || *q.LotID != lotID {
			ordered = append(ordered, q)
		}
	}
	return ordered
}

// availableFromQuants sums quantity minus reserved over an already-gathered
// candidate set. For tracked products with AllowNegative unset, only the
// positive per-lot availabilities count: a negative lot never offsets a
// positive one.
func availableFromQuants(product *model.Product, quants []*model.Quant, allowNegative bool) decimal.Decimal {
	rounding := productRounding(product)

	if product.Tracking == model.TrackingNone {
		total := decimal.Zero
		for _, q := range quants {
			total = total.Add(q.AvailableQuantity())
		}
		if !allowNegative && total.Sign() < 0 {
			return decimal.Zero
		}
		return total
	}

	perLot := make(map[uuid.UUID]decimal.Decimal)
	order := make([]uuid.UUID, 0)
	for _, q := range quants {
		key := uuid.Nil
		if q.LotID != nil {
			key = *q.LotID
		}
		if _, seen := perLot[key]; !seen {
			order = append(order, key)
		}
		perLot[key] = perLot[key].Add(q.AvailableQuantity())
	}
	total := decimal.Zero
	for _, key := range order {
		v := perLot[key]
		if allowNegative || CompareQuantities(v, decimal.Zero, rounding) > 0 {
			total = total.Add(v)
		}
	}
	return total
}

func (s *ledgerService) AvailableQuantity(ctx context.Context, tx *gorm.DB, product *model.Product, location *model.Location, opts LedgerOptions) (decimal.Decimal, error) {
	quants, err := s.gather(tx, product, location, opts, repository.LockNone)
	if err != nil {
		return decimal.Zero, err
	}
	return availableFromQuants(product, quants, opts.AllowNegative), nil
}

func (s *ledgerService) UpdateAvailableQuantity(ctx context.Context, tx *gorm.DB, product *model.Product, location *model.Location, delta decimal.Decimal, opts LedgerOptions) (decimal.Decimal, time.Time, error) {
	strictOpts := opts
	strictOpts.Strict = true

	// SKIP LOCKED: rows held by a concurrent transaction are simply not
	// returned. Falling through to a fresh insert trades ledger fragmentation
	// for throughput; the maintenance pass re-consolidates. This fallback is
	// load-bearing for correctness under contention, not an optimization.
	quants, err := s.gather(tx, product, location, strictOpts, repository.LockSkipLocked)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}

	inDate := time.Now().UTC()
	if opts.InDate != nil {
		inDate = opts.InDate.UTC()
	}
	for _, q := range quants {
		if q.InDate.Before(inDate) {
			inDate = q.InDate
		}
	}

	var quant *model.Quant
	if len(quants) > 0 {
		quant = quants[0]
		quant.Quantity = quant.Quantity.Add(delta)
		quant.InDate = inDate
		if err := s.checkSerial(product, quant); err != nil {
			return decimal.Zero, time.Time{}, err
		}
		if err := s.quants.SaveTx(tx, quant); err != nil {
			return decimal.Zero, time.Time{}, err
		}
	} else {
		quant = &model.Quant{
			ID:         uuid.New(),
			ProductID:  product.ID,
			LocationID: location.ID,
			LotID:      opts.LotID,
			PackageID:  opts.PackageID,
			OwnerID:    opts.OwnerID,
			Quantity:   delta,
			InDate:     inDate,
			Location:   location,
		}
		if err := s.checkSerial(product, quant); err != nil {
			return decimal.Zero, time.Time{}, err
		}
		if err := s.quants.CreateTx(tx, quant); err != nil {
			return decimal.Zero, time.Time{}, err
		}
	}

	available, err := s.AvailableQuantity(ctx, tx, product, location, LedgerOptions{
		LotID: opts.LotID, PackageID: opts.PackageID, OwnerID: opts.OwnerID,
		Strict: true, AllowNegative: true,
	})
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	return available, inDate, nil
}

// checkSerial enforces |quantity| <= 1 per serial-tracked quant.
func (s *ledgerService) checkSerial(product *model.Product, q *model.Quant) error {
	if product.Tracking != model.TrackingSerial || q.LotID == nil {
		return nil
	}
	rounding := productRounding(product)
	if CompareQuantities(q.Quantity.Abs(), decimal.NewFromInt(1), rounding) > 0 {
		return fmt.Errorf("serial quant %s would hold %s units: %w", q.ID, q.Quantity, ErrTrackingViolation)
	}
	return nil
}

func (s *ledgerService) UpdateReservedQuantity(ctx context.Context, tx *gorm.DB, product *model.Product, location *model.Location, delta decimal.Decimal, opts LedgerOptions) ([]QuantTake, error) {
	if delta.IsZero() {
		return nil, nil
	}
	rounding := productRounding(product)

	quants, err := s.gather(tx, product, location, opts, repository.LockForUpdate)
	if err != nil {
		return nil, err
	}

	var takes []QuantTake

	if delta.Sign() > 0 {
		maxAvailable := availableFromQuants(product, quants, false)
		if CompareQuantities(delta, maxAvailable, rounding) > 0 {
			return nil, &InsufficientStockError{
				ProductID:  product.ID,
				LocationID: location.ID,
				Requested:  delta,
				Available:  maxAvailable,
			}
		}
		remaining := delta
		for _, q := range quants {
			available := q.AvailableQuantity()
			if available.Sign() <= 0 {
				continue
			}
			take := decimal.Min(available, remaining)
			q.ReservedQuantity = q.ReservedQuantity.Add(take)
			if err := s.quants.SaveTx(tx, q); err != nil {
				return nil, err
			}
			takes = append(takes, QuantTake{Quant: q, Quantity: take})
			remaining = remaining.Sub(take)
			if QuantityIsZero(remaining, rounding) {
				break
			}
		}
		return takes, nil
	}

	takes, remaining, err := s.releaseTx(tx, product, quants, delta.Neg())
	if err != nil {
		return nil, err
	}
	if !QuantityIsZero(remaining, rounding) {
		return nil, fmt.Errorf("product %s at %s, missing %s: %w",
			product.ID, location.ID, remaining, ErrUnreserveExceeded)
	}
	return takes, nil
}

func (s *ledgerService) ReleaseUpTo(ctx context.Context, tx *gorm.DB, product *model.Product, location *model.Location, qty decimal.Decimal, opts LedgerOptions) ([]QuantTake, error) {
	if qty.Sign() <= 0 {
		return nil, nil
	}
	quants, err := s.gather(tx, product, location, opts, repository.LockForUpdate)
	if err != nil {
		return nil, err
	}
	takes, remaining, err := s.releaseTx(tx, product, quants, qty)
	if err != nil {
		return nil, err
	}
	if remaining.Sign() > 0 {
		log.Warn().
			Str("product_id", product.ID.String()).
			Str("location_id", location.ID.String()).
			Str("unreleased", remaining.String()).
			Msg("reservation shrank below move line quantity")
	}
	return takes, nil
}

func (s *ledgerService) releaseTx(tx *gorm.DB, product *model.Product, quants []*model.Quant, qty decimal.Decimal) ([]QuantTake, decimal.Decimal, error) {
	rounding := productRounding(product)
	var takes []QuantTake
	remaining := qty
	for _, q := range quants {
		if q.ReservedQuantity.Sign() <= 0 {
			continue
		}
		take := decimal.Min(q.ReservedQuantity, remaining)
		q.ReservedQuantity = q.ReservedQuantity.Sub(take)
		if err := s.quants.SaveTx(tx, q); err != nil {
			return nil, remaining, err
		}
		takes = append(takes, QuantTake{Quant: q, Quantity: take.Neg()})
		remaining = remaining.Sub(take)
		if QuantityIsZero(remaining, rounding) {
			remaining = decimal.Zero
			break
		}
	}
	return takes, remaining, nil
}

func (s *ledgerService) Adjust(ctx context.Context, productID, locationID uuid.UUID, delta decimal.Decimal, lotName string, packageID, ownerID *uuid.UUID) (decimal.Decimal, error) {
	var available decimal.Decimal
	err := runTx(ctx, s.quants.DB(), func(tx *gorm.DB) error {
		product, err := s.products.GetTx(tx, productID)
		if err != nil {
			return fmt.Errorf("product %s: %w", productID, err)
		}
		location, err := s.locations.GetTx(tx, locationID)
		if err != nil {
			return fmt.Errorf("location %s: %w", locationID, err)
		}

		var lotID *uuid.UUID
		if lotName != "" {
			if product.Tracking == model.TrackingNone {
				return fmt.Errorf("product %s is not tracked: %w", product.Name, ErrTrackingViolation)
			}
			lot, err := s.lots.FindOrCreateTx(tx, productID, lotName)
			if err != nil {
				return err
			}
			lotID = &lot.ID
		}

		available, _, err = s.UpdateAvailableQuantity(ctx, tx, product, location, delta, LedgerOptions{
			LotID: lotID, PackageID: packageID, OwnerID: ownerID,
		})
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	log.Info().
		Str("product_id", productID.String()).
		Str("location_id", locationID.String()).
		Str("delta", delta.String()).
		Msg("stock adjusted")
	return available, nil
}

func (s *ledgerService) ApplyInventory(ctx context.Context, quantID uuid.UUID) error {
	return runTx(ctx, s.quants.DB(), func(tx *gorm.DB) error {
		quant, err := s.quants.GetTx(tx, quantID)
		if err != nil {
			return err
		}
		diff := quant.InventoryQuantity.Sub(quant.Quantity)
		quant.InventoryQuantity = decimal.Zero
		if err := s.quants.SaveTx(tx, quant); err != nil {
			return err
		}
		if QuantityIsZero(diff, productRounding(quant.Product)) {
			return nil
		}
		_, _, err = s.UpdateAvailableQuantity(ctx, tx, quant.Product, quant.Location, diff, LedgerOptions{
			LotID: quant.LotID, PackageID: quant.PackageID, OwnerID: quant.OwnerID,
		})
		if err == nil {
			log.Info().
				Str("quant_id", quantID.String()).
				Str("diff", diff.String()).
				Msg("inventory count applied")
		}
		return err
	})
}

// MergeQuants folds duplicate rows created by the skip-locked fallback back
// into one row per key: quantities sum, in_date keeps the oldest.
func (s *ledgerService) MergeQuants(ctx context.Context) (int, error) {
	merged := 0
	err := runTx(ctx, s.quants.DB(), func(tx *gorm.DB) error {
		groups, err := s.quants.DuplicateGroupsTx(tx)
		if err != nil {
			return err
		}
		for _, group := range groups {
			survivor := group[0]
			var stale []uuid.UUID
			for _, q := range group[1:] {
				survivor.Quantity = survivor.Quantity.Add(q.Quantity)
				survivor.ReservedQuantity = survivor.ReservedQuantity.Add(q.ReservedQuantity)
				survivor.InventoryQuantity = survivor.InventoryQuantity.Add(q.InventoryQuantity)
				if q.InDate.Before(survivor.InDate) {
					survivor.InDate = q.InDate
				}
				stale = append(stale, q.ID)
			}
			if err := s.quants.SaveTx(tx, survivor); err != nil {
				return err
			}
			if err := s.quants.DeleteTx(tx, stale); err != nil {
				return err
			}
			merged += len(stale)
		}
		return nil
	})
	return merged, err
}

func (s *ledgerService) UnlinkZeroQuants(ctx context.Context) (int, error) {
	removed := 0
	err := runTx(ctx, s.quants.DB(), func(tx *gorm.DB) error {
		candidates, err := s.quants.ZeroCandidatesTx(tx)
		if err != nil {
			return err
		}
		var ids []uuid.UUID
		for _, q := range candidates {
			rounding := productRounding(q.Product)
			if QuantityIsZero(q.Quantity, rounding) &&
				QuantityIsZero(q.ReservedQuantity, rounding) &&
				QuantityIsZero(q.InventoryQuantity, rounding) {
				ids = append(ids, q.ID)
			}
		}
		removed = len(ids)
		return s.quants.DeleteTx(tx, ids)
	})
	return removed, err
}
