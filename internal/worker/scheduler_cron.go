package worker

// scheduler_cron.go
// Background goroutine that periodically sweeps moves still waiting on stock
// (confirmed / waiting / partially_available) and re-runs reservation over
// them, oldest demand first. This is what eventually serves a move that was
// short when it was confirmed, once stock arrives.

import (
	"context"
	"time"

	"stockledger/internal/repository"
	"stockledger/internal/service"

	"github.com/rs/zerolog/log"
)

// SchedulerConfig holds all dependencies for the scheduler goroutine.
type SchedulerConfig struct {
	Moves     repository.MoveRepository
	Reserve   service.ReservationEngine
	Interval  time.Duration
	BatchSize int
}

// StartSchedulerCron launches a background goroutine that ticks on the
// configured interval and assigns awaiting moves in batches.
// It respects the context for graceful shutdown.
func StartSchedulerCron(ctx context.Context, cfg SchedulerConfig) {
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		log.Info().Dur("interval", cfg.Interval).Msg("scheduler_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("scheduler_cron: shutting down")
				return
			case <-ticker.C:
				runSchedulerPass(ctx, cfg)
			}
		}
	}()
}

func runSchedulerPass(ctx context.Context, cfg SchedulerConfig) {
	ids, err := cfg.Moves.ListAwaitingIDs(ctx, cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("scheduler_cron: failed to query awaiting moves")
		return
	}
	if len(ids) == 0 {
		return
	}

	if err := cfg.Reserve.ActionAssign(ctx, ids); err != nil {
		log.Error().Err(err).Int("count", len(ids)).Msg("scheduler_cron: assign pass failed")
		return
	}
	log.Info().Int("count", len(ids)).Msg("scheduler_cron: assign pass completed")
}
