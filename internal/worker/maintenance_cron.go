package worker

// maintenance_cron.go
// Background goroutine that keeps the quant table compact: duplicate rows
// left behind by the skip-locked insert fallback are folded together, and
// rows where every quantity has reached zero are removed.

import (
	"context"
	"time"

	"stockledger/internal/service"

	"github.com/rs/zerolog/log"
)

// MaintenanceConfig holds the dependencies for the maintenance goroutine.
type MaintenanceConfig struct {
	Ledger   service.QuantLedger
	Interval time.Duration
}

// StartMaintenanceCron launches a background goroutine that ticks on the
// configured interval and runs the quant maintenance pass.
func StartMaintenanceCron(ctx context.Context, cfg MaintenanceConfig) {
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		log.Info().Dur("interval", cfg.Interval).Msg("maintenance_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("maintenance_cron: shutting down")
				return
			case <-ticker.C:
				RunMaintenancePass(ctx, cfg.Ledger)
			}
		}
	}()
}

// RunMaintenancePass merges duplicate quants then drops zero rows. Also
// callable on demand through the admin endpoint.
func RunMaintenancePass(ctx context.Context, ledger service.QuantLedger) (merged, removed int) {
	var err error
	merged, err = ledger.MergeQuants(ctx)
	if err != nil {
		log.Error().Err(err).Msg("maintenance_cron: merge pass failed")
	}
	removed, err = ledger.UnlinkZeroQuants(ctx)
	if err != nil {
		log.Error().Err(err).Msg("maintenance_cron: zero-quant sweep failed")
	}
	if merged > 0 || removed > 0 {
		log.Info().Int("merged", merged).Int("removed", removed).Msg("maintenance_cron: pass completed")
	}
	return merged, removed
}
