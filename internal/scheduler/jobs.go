package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/notify"
	"github.com/codr1/courtbook/internal/payments"
)

const (
	orphanSweepJobName    = "payment_orphan_sweep"
	outboxDispatchJobName = "booking_outbox_dispatch"
)

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (payments.SweepResult, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, now time.Time) (notify.DispatchResult, error)
}

// RegisterJobs adds the background jobs the booking core relies on. A nil
// dispatcher skips outbox dispatch.
func RegisterJobs(cfg config.SchedulerConfig, sweeper Sweeper, dispatcher Dispatcher, clock localtime.Clock) error {
	if sweeper == nil {
		return fmt.Errorf("orphan sweep job requires a sweeper")
	}
	if clock == nil {
		clock = localtime.SystemClock{}
	}

	if _, err := AddJob(orphanSweepJobName, cfg.OrphanSweepCron, 5*time.Minute, SweepTask(sweeper, clock),
		gocron.WithSingletonMode(gocron.LimitModeReschedule)); err != nil {
		return fmt.Errorf("add orphan sweep job: %w", err)
	}

	if dispatcher == nil {
		log.Info().Str("component", "scheduler").Msg("Outbox dispatch job skipped: no sinks configured")
		return nil
	}
	if _, err := AddJob(outboxDispatchJobName, cfg.OutboxDispatchCron, time.Minute, DispatchTask(dispatcher, clock),
		gocron.WithSingletonMode(gocron.LimitModeReschedule)); err != nil {
		return fmt.Errorf("add outbox dispatch job: %w", err)
	}
	return nil
}

// SweepTask reverses authorizations that never reached a booking.
func SweepTask(sweeper Sweeper, clock localtime.Clock) Task {
	return func(ctx context.Context) {
		logger := log.Ctx(ctx)
		result, err := sweeper.Sweep(ctx, clock.Now().UTC())
		if err != nil {
			logger.Error().Err(err).Msg("Orphaned authorization sweep failed")
			return
		}
		if result.Examined == 0 {
			return
		}
		logger.Info().
			Int("examined", result.Examined).
			Int("recovered", result.Recovered).
			Int("reversed", result.Reversed).
			Int("abandoned", result.Abandoned).
			Int("failed", result.Failed).
			Msg("Orphaned authorization sweep completed")
	}
}

// DispatchTask drains one batch of the booking outbox.
func DispatchTask(dispatcher Dispatcher, clock localtime.Clock) Task {
	return func(ctx context.Context) {
		if _, err := dispatcher.Dispatch(ctx, clock.Now().UTC()); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Outbox dispatch failed")
		}
	}
}
