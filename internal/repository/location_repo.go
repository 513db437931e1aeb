package repository

import (
	"context"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LocationRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Location, error)
	GetTx(tx *gorm.DB, id uuid.UUID) (*model.Location, error)
	// AncestorChainTx returns loc plus its ancestors, deepest first —
	// the removal strategy resolution walks it in that order.
	AncestorChainTx(tx *gorm.DB, loc *model.Location) ([]*model.Location, error)
	Create(ctx context.Context, loc *model.Location) error
}

type locationRepo struct{ db *gorm.DB }

func NewLocationRepository(db *gorm.DB) LocationRepository { return &locationRepo{db: db} }

func (r *locationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Location, error) {
	return r.GetTx(r.db.WithContext(ctx), id)
}

func (r *locationRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Location, error) {
	var loc model.Location
	err := tx.First(&loc, id).Error
	return &loc, err
}

func (r *locationRepo) AncestorChainTx(tx *gorm.DB, loc *model.Location) ([]*model.Location, error) {
	chain := []*model.Location{loc}
	ancestorIDs := loc.AncestorIDs()
	if len(ancestorIDs) == 0 {
		return chain, nil
	}
	var ancestors []*model.Location
	if err := tx.Where("id IN ?", ancestorIDs).Find(&ancestors).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.Location, len(ancestors))
	for _, a := range ancestors {
		byID[a.ID] = a
	}
	// ancestorIDs is root-first; walk it backwards for deepest-first.
	for i := len(ancestorIDs) - 1; i >= 0; i-- {
		if a, ok := byID[ancestorIDs[i]]; ok {
			chain = append(chain, a)
		}
	}
	return chain, nil
}

// Create maintains ParentPath from the parent's path before inserting.
func (r *locationRepo) Create(ctx context.Context, loc *model.Location) error {
	if loc.ID == uuid.Nil {
		loc.ID = uuid.New()
	}
	if loc.ParentID != nil {
		parent, err := r.Get(ctx, *loc.ParentID)
		if err != nil {
			return err
		}
		loc.ParentPath = parent.ParentPath + loc.ID.String() + "/"
	} else {
		loc.ParentPath = loc.ID.String() + "/"
	}
	return r.db.WithContext(ctx).Create(loc).Error
}
