package infra

import (
	"fmt"

	"stockledger/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies any idempotent SQL patches that GORM
// cannot express (partial indexes, the move DAG join table constraints, etc.).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates / updates the schema. Also used by integration tests
// against a throwaway database.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.UoM{},
		&model.ProductCategory{},
		&model.Product{},
		&model.Location{},
		&model.Lot{},
		&model.QuantPackage{},
		&model.ProcurementGroup{},
		&model.Picking{},
		&model.Move{},
		&model.MoveLine{},
		&model.Quant{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot fully handle
// on its own. Each statement uses IF NOT EXISTS / DO NOTHING semantics so
// re-running on an already-patched DB is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// The DAG join table must reject duplicate edges; ON CONFLICT DO
		// NOTHING in the edge inserts relies on this primary key.
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'stock_move_move_rel_pkey') THEN
		    ALTER TABLE stock_move_move_rel ADD PRIMARY KEY (move_dest_id, move_orig_id);
		  END IF;
		END $$`,
		// Partial index for the reservation scheduler query.
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_stock_moves_awaiting') THEN
		    CREATE INDEX idx_stock_moves_awaiting
		        ON stock_moves (created_at)
		        WHERE state IN ('confirmed', 'waiting', 'partially_available');
		  END IF;
		END $$`,
		// Quant lookups always filter by product and location first.
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_stock_quants_product_location') THEN
		    CREATE INDEX idx_stock_quants_product_location
		        ON stock_quants (product_id, location_id);
		  END IF;
		END $$`,
		// Subtree scans walk the materialized path with a prefix match.
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_locations_parent_path') THEN
		    CREATE INDEX idx_locations_parent_path
		        ON locations (parent_path text_pattern_ops);
		  END IF;
		END $$`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
