package repository

import (
	"context"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetTx(tx *gorm.DB, id uuid.UUID) (*model.Product, error)
	Create(ctx context.Context, p *model.Product) error
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) Get(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.GetTx(r.db.WithContext(ctx), id)
}

func (r *productRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	err := tx.Preload("Uom").Preload("Category").First(&p, id).Error
	return &p, err
}

func (r *productRepo) Create(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

type UomRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.UoM, error)
	GetTx(tx *gorm.DB, id uuid.UUID) (*model.UoM, error)
	Create(ctx context.Context, u *model.UoM) error
}

type uomRepo struct{ db *gorm.DB }

func NewUomRepository(db *gorm.DB) UomRepository { return &uomRepo{db: db} }

func (r *uomRepo) Get(ctx context.Context, id uuid.UUID) (*model.UoM, error) {
	return r.GetTx(r.db.WithContext(ctx), id)
}

func (r *uomRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.UoM, error) {
	var u model.UoM
	err := tx.First(&u, id).Error
	return &u, err
}

func (r *uomRepo) Create(ctx context.Context, u *model.UoM) error {
	return r.db.WithContext(ctx).Create(u).Error
}

type LotRepository interface {
	GetTx(tx *gorm.DB, id uuid.UUID) (*model.Lot, error)
	// FindOrCreateTx resolves a lot by (product, name), creating it when the
	// adjustment endpoint introduces a new lot.
	FindOrCreateTx(tx *gorm.DB, productID uuid.UUID, name string) (*model.Lot, error)
}

type lotRepo struct{ db *gorm.DB }

func NewLotRepository(db *gorm.DB) LotRepository { return &lotRepo{db: db} }

func (r *lotRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Lot, error) {
	var l model.Lot
	err := tx.First(&l, id).Error
	return &l, err
}

func (r *lotRepo) FindOrCreateTx(tx *gorm.DB, productID uuid.UUID, name string) (*model.Lot, error) {
	var l model.Lot
	err := tx.Where("product_id = ? AND name = ?", productID, name).First(&l).Error
	if err == nil {
		return &l, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	l = model.Lot{ID: uuid.New(), ProductID: productID, Name: name}
	if err := tx.Create(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

type PickingRepository interface {
	GetTx(tx *gorm.DB, id uuid.UUID) (*model.Picking, error)
	CreateTx(tx *gorm.DB, p *model.Picking) error
	SaveTx(tx *gorm.DB, p *model.Picking) error
}

type pickingRepo struct{ db *gorm.DB }

func NewPickingRepository(db *gorm.DB) PickingRepository { return &pickingRepo{db: db} }

func (r *pickingRepo) GetTx(tx *gorm.DB, id uuid.UUID) (*model.Picking, error) {
	var p model.Picking
	err := tx.First(&p, id).Error
	return &p, err
}

func (r *pickingRepo) CreateTx(tx *gorm.DB, p *model.Picking) error {
	return tx.Create(p).Error
}

func (r *pickingRepo) SaveTx(tx *gorm.DB, p *model.Picking) error {
	return tx.Omit("Backorder").Save(p).Error
}
