package repository

import (
	"context"

	"stockledger/internal/dto"
	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockMode selects the row-lock behaviour of a quant gather.
type LockMode int

const (
	LockNone LockMode = iota
	// LockForUpdate blocks until the rows are free (reservation path).
	LockForUpdate
	// LockSkipLocked silently drops rows locked by concurrent transactions.
	// The ledger's on-hand update path depends on this returning an empty set
	// under contention so it can create a sibling quant instead of blocking.
	LockSkipLocked
)

// QuantFilter addresses a ledger key, exactly (Strict) or aggregated over the
// location subtree with only the specified dimensions pinned.
type QuantFilter struct {
	ProductID uuid.UUID
	Location  *model.Location
	LotID     *uuid.UUID
	PackageID *uuid.UUID
	OwnerID   *uuid.UUID
	Strict    bool
	Lock      LockMode
}

// QuantRepository is the data access contract for the quant ledger.
// Services depend on this interface, not on the concrete GORM implementation,
// enabling unit testing via in-memory fakes.
type QuantRepository interface {
	DB() *gorm.DB

	// GatherTx returns candidate quants for f ordered by the given ORDER BY
	// fragment (see RemovalStrategy.OrderClause). Locations and lots are
	// preloaded so removal ordering and line creation need no extra queries.
	GatherTx(tx *gorm.DB, f QuantFilter, order string) ([]*model.Quant, error)

	CreateTx(tx *gorm.DB, q *model.Quant) error
	SaveTx(tx *gorm.DB, q *model.Quant) error
	DeleteTx(tx *gorm.DB, ids []uuid.UUID) error
	GetTx(tx *gorm.DB, id uuid.UUID) (*model.Quant, error)

	// ZeroCandidatesTx lists quants whose quantity, reserved quantity and
	// pending inventory quantity are all numerically negligible; the caller
	// re-checks against the product UoM rounding before unlinking.
	ZeroCandidatesTx(tx *gorm.DB) ([]*model.Quant, error)

	// DuplicateGroupsTx groups quant rows sharing the same logical key,
	// only returning groups with more than one row.
	DuplicateGroupsTx(tx *gorm.DB) ([][]*model.Quant, error)

	List(ctx context.Context, filter dto.QuantFilter) ([]model.Quant, int64, error)
}

type quantRepo struct{ db *gorm.DB }

func NewQuantRepository(db *gorm.DB) QuantRepository { return &quantRepo{db: db} }

func (r *quantRepo) DB() *gorm.DB { return r.db }

func (r *quantRepo) GatherTx(tx *gorm.DB, f QuantFilter, order string) ([]*model.Quant, error) {
	q := tx.Model(&model.Quant{}).
		Joins("JOIN locations ON locations.id = stock_quants.location_id").
		Where("stock_quants.product_id = ?", f.ProductID)

	if f.Strict {
		q = q.Where("stock_quants.location_id = ?", f.Location.ID)
		q = nullSafeEq(q, "stock_quants.lot_id", f.LotID)
		q = nullSafeEq(q, "stock_quants.package_id", f.PackageID)
		q = nullSafeEq(q, "stock_quants.owner_id", f.OwnerID)
	} else {
		q = q.Where("locations.parent_path LIKE ?", f.Location.ParentPath+"%")
		if f.LotID != nil {
			// Untracked quants stay in the candidate set so they can absorb
			// the demand when the lot itself runs dry.
			q = q.Where("(stock_quants.lot_id = ? OR stock_quants.lot_id IS NULL)", *f.LotID)
		}
		if f.PackageID != nil {
			q = q.Where("stock_quants.package_id = ?", *f.PackageID)
		}
		if f.OwnerID != nil {
			q = q.Where("stock_quants.owner_id = ?", *f.OwnerID)
		}
	}

	switch f.Lock {
	case LockForUpdate:
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "stock_quants"}})
	case LockSkipLocked:
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED", Table: clause.Table{Name: "stock_quants"}})
	}

	var quants []*model.Quant
	err := q.Order(order).Preload("Location").Preload("Lot").Find(&quants).Error
	return quants, err
}

func nullSafeEq(q *gorm.DB, column string, id *uuid.UUID) *gorm.DB {
	if id == nil {
		return q.Where(column + " IS NULL")
	}
	return q.Where(column+" = ?", *id)
}

func (r *quantRepo) CreateTx(tx *gorm.DB, q *model.Quant) error {
	return tx.Create(q).Error
}

func (r *quantRepo) SaveTx(tx *gorm.DB, q *model.Quant) error {
	return tx.Save(q).Error
}

func (r *quantRepo) DeleteTx(tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Delete(&model.Quant{}, ids).Error
}

func (r *quantRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Quant, error) {
	var q model.Quant
	err := tx.Preload("Product").Preload("Product.Uom").Preload("Location").First(&q, id).Error
	return &q, err
}

// zeroEpsilon is deliberately below the finest UoM rounding the ledger
// supports (0.001); the service layer applies the real per-product precision.
const zeroEpsilon = "0.00005"

func (r *quantRepo) ZeroCandidatesTx(tx *gorm.DB) ([]*model.Quant, error) {
	var quants []*model.Quant
	err := tx.
		Where("abs(quantity) < ? AND abs(reserved_quantity) < ? AND abs(inventory_quantity) < ?",
			zeroEpsilon, zeroEpsilon, zeroEpsilon).
		Preload("Product").Preload("Product.Uom").
		Find(&quants).Error
	return quants, err
}

func (r *quantRepo) DuplicateGroupsTx(tx *gorm.DB) ([][]*model.Quant, error) {
	// The race window that creates duplicates is small, so the full scan is
	// grouped in memory; the maintenance cron runs it off the hot path.
	var quants []*model.Quant
	if err := tx.Order("created_at ASC, id ASC").Find(&quants).Error; err != nil {
		return nil, err
	}
	type key struct {
		product, location        uuid.UUID
		lot, pkg, owner, company uuid.UUID
	}
	index := make(map[key][]*model.Quant)
	order := make([]key, 0)
	deref := func(id *uuid.UUID) uuid.UUID {
		if id == nil {
			return uuid.Nil
		}
		return *id
	}
	for _, q := range quants {
		k := key{q.ProductID, q.LocationID, deref(q.LotID), deref(q.PackageID), deref(q.OwnerID), deref(q.CompanyID)}
		if _, seen := index[k]; !seen {
			order = append(order, k)
		}
		index[k] = append(index[k], q)
	}
	var groups [][]*model.Quant
	for _, k := range order {
		if len(index[k]) > 1 {
			groups = append(groups, index[k])
		}
	}
	return groups, nil
}

func (r *quantRepo) List(ctx context.Context, filter dto.QuantFilter) ([]model.Quant, int64, error) {
	var quants []model.Quant
	var total int64

	q := r.db.WithContext(ctx).Model(&model.Quant{})
	if filter.ProductID != "" {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.LocationID != "" {
		q = q.Where("location_id = ?", filter.LocationID)
	}
	if filter.LotID != "" {
		q = q.Where("lot_id = ?", filter.LotID)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.Limit
	err := q.Order("in_date ASC").Limit(filter.Limit).Offset(offset).
		Preload("Product").Preload("Location").Preload("Lot").
		Find(&quants).Error
	return quants, total, err
}
