package repository

import (
	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MoveLineRepository interface {
	// CreateBatchTx inserts all lines in one statement — the reservation
	// engine collects every line of a batch before touching the database.
	CreateBatchTx(tx *gorm.DB, lines []*model.MoveLine) error
	SaveTx(tx *gorm.DB, line *model.MoveLine) error
	DeleteTx(tx *gorm.DB, ids []uuid.UUID) error
	// ReassignMoveTx re-points lines onto another move (merge survivor).
	ReassignMoveTx(tx *gorm.DB, lineIDs []uuid.UUID, moveID uuid.UUID) error
}

type moveLineRepo struct{ db *gorm.DB }

func NewMoveLineRepository(db *gorm.DB) MoveLineRepository { return &moveLineRepo{db: db} }

func (r *moveLineRepo) CreateBatchTx(tx *gorm.DB, lines []*model.MoveLine) error {
	if len(lines) == 0 {
		return nil
	}
	return tx.Create(&lines).Error
}

func (r *moveLineRepo) SaveTx(tx *gorm.DB, line *model.MoveLine) error {
	return tx.Omit("Move", "Lot").Save(line).Error
}

func (r *moveLineRepo) DeleteTx(tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Delete(&model.MoveLine{}, ids).Error
}

func (r *moveLineRepo) ReassignMoveTx(tx *gorm.DB, lineIDs []uuid.UUID, moveID uuid.UUID) error {
	if len(lineIDs) == 0 {
		return nil
	}
	return tx.Model(&model.MoveLine{}).Where("id IN ?", lineIDs).
		Update("move_id", moveID).Error
}
