package repository

import (
	"context"

	"stockledger/internal/dto"
	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MoveRepository loads and persists moves with everything the engine needs
// attached: lines, DAG edges, product (with UoM and category) and locations.
type MoveRepository interface {
	DB() *gorm.DB

	GetTx(tx *gorm.DB, ids []uuid.UUID) ([]*model.Move, error)
	CreateTx(tx *gorm.DB, m *model.Move) error
	SaveTx(tx *gorm.DB, m *model.Move) error
	DeleteTx(tx *gorm.DB, ids []uuid.UUID) error

	// AddOrigMovesTx / AddDestMovesTx append DAG edges; ClearOrigMovesTx
	// detaches a move from its predecessors (cancel-detach path).
	AddOrigMovesTx(tx *gorm.DB, m *model.Move, origIDs []uuid.UUID) error
	AddDestMovesTx(tx *gorm.DB, m *model.Move, destIDs []uuid.UUID) error
	ClearOrigMovesTx(tx *gorm.DB, m *model.Move) error

	Get(ctx context.Context, id uuid.UUID) (*model.Move, error)
	List(ctx context.Context, filter dto.MoveFilter) ([]model.Move, int64, error)

	// ListAwaitingIDs feeds the scheduler cron: confirmed / waiting /
	// partially available moves, oldest demand first.
	ListAwaitingIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type moveRepo struct{ db *gorm.DB }

func NewMoveRepository(db *gorm.DB) MoveRepository { return &moveRepo{db: db} }

func (r *moveRepo) DB() *gorm.DB { return r.db }

func preloadMove(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Lines").
		Preload("Product").Preload("Product.Uom").Preload("Product.Category").
		Preload("ProductUom").
		Preload("Location").Preload("LocationDest").
		Preload("Picking").
		Preload("OrigMoves").Preload("OrigMoves.Lines").
		Preload("OrigMoves.DestMoves").Preload("OrigMoves.DestMoves.Lines").
		Preload("DestMoves").Preload("DestMoves.Lines").
		Preload("DestMoves.OrigMoves")
}

func (r *moveRepo) GetTx(tx *gorm.DB, ids []uuid.UUID) ([]*model.Move, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var moves []*model.Move
	err := preloadMove(tx).Where("id IN ?", ids).Find(&moves).Error
	return moves, err
}

func (r *moveRepo) CreateTx(tx *gorm.DB, m *model.Move) error {
	return tx.Omit("OrigMoves", "DestMoves").Create(m).Error
}

func (r *moveRepo) SaveTx(tx *gorm.DB, m *model.Move) error {
	// Associations are managed explicitly through the edge methods; saving
	// them here would re-create merged-away siblings.
	return tx.Omit("Lines", "OrigMoves", "DestMoves", "Product", "ProductUom",
		"Location", "LocationDest", "Picking").Save(m).Error
}

func (r *moveRepo) DeleteTx(tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("move_orig_id IN ? OR move_dest_id IN ?", ids, ids).
		Table("stock_move_move_rel").Delete(nil).Error; err != nil {
		return err
	}
	return tx.Delete(&model.Move{}, ids).Error
}

func (r *moveRepo) AddOrigMovesTx(tx *gorm.DB, m *model.Move, origIDs []uuid.UUID) error {
	for _, id := range origIDs {
		if err := tx.Exec(
			"INSERT INTO stock_move_move_rel (move_dest_id, move_orig_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			m.ID, id).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *moveRepo) AddDestMovesTx(tx *gorm.DB, m *model.Move, destIDs []uuid.UUID) error {
	for _, id := range destIDs {
		if err := tx.Exec(
			"INSERT INTO stock_move_move_rel (move_dest_id, move_orig_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			id, m.ID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *moveRepo) ClearOrigMovesTx(tx *gorm.DB, m *model.Move) error {
	return tx.Exec("DELETE FROM stock_move_move_rel WHERE move_dest_id = ?", m.ID).Error
}

func (r *moveRepo) Get(ctx context.Context, id uuid.UUID) (*model.Move, error) {
	var m model.Move
	err := preloadMove(r.db.WithContext(ctx)).First(&m, id).Error
	return &m, err
}

func (r *moveRepo) List(ctx context.Context, filter dto.MoveFilter) ([]model.Move, int64, error) {
	var moves []model.Move
	var total int64

	q := r.db.WithContext(ctx).Model(&model.Move{})
	if filter.State != "" && filter.State != "all" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.ProductID != "" {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.PickingID != "" {
		q = q.Where("picking_id = ?", filter.PickingID)
	}
	if filter.Origin != "" {
		q = q.Where("origin = ?", filter.Origin)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.Limit
	err := q.Order("created_at DESC").Limit(filter.Limit).Offset(offset).
		Preload("Lines").Preload("Product").
		Find(&moves).Error
	return moves, total, err
}

func (r *moveRepo) ListAwaitingIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&model.Move{}).
		Where("state IN ?", []string{
			model.MoveStateConfirmed,
			model.MoveStateWaiting,
			model.MoveStatePartiallyAvailable,
		}).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
