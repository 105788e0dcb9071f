// Package notify delivers booking outbox events to the message broker and to
// the booking contact by email.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
)

const (
	defaultBatchSize   = 100
	defaultMaxAttempts = 10
)

// Sink receives every dispatched event. Deliveries are at least once per sink:
// a failed event is retried only on the sinks that have not accepted it.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event models.BookingEventPayload) error
}

type Store interface {
	ListPendingBookingEvents(ctx context.Context, maxAttempts int64, limit int) ([]db.BookingEvent, error)
	MarkBookingEventDispatched(ctx context.Context, id string, at time.Time) error
	MarkBookingEventFailed(ctx context.Context, id, lastError string) error
	ListDeliveredSinks(ctx context.Context, eventID string) ([]string, error)
	MarkSinkDelivered(ctx context.Context, eventID, sink string, at time.Time) error
}

type Dispatcher struct {
	store       Store
	sinks       []Sink
	batchSize   int
	maxAttempts int64
}

type DispatchResult struct {
	Examined  int
	Delivered int
	Failed    int
}

func NewDispatcher(store Store, sinks []Sink, batchSize int, maxAttempts int64) *Dispatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Dispatcher{
		store:       store,
		sinks:       sinks,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Dispatch sends one batch of pending events to every sink and records the
// outcome on each outbox row.
func (d *Dispatcher) Dispatch(ctx context.Context, now time.Time) (DispatchResult, error) {
	logger := log.Ctx(ctx)

	events, err := d.store.ListPendingBookingEvents(ctx, d.maxAttempts, d.batchSize)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("list pending booking events: %w", err)
	}

	result := DispatchResult{Examined: len(events)}
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		deliverErr := d.deliver(ctx, event, now)
		if deliverErr != nil {
			result.Failed++
			logger.Warn().
				Err(deliverErr).
				Str("event_id", event.ID).
				Str("event_type", event.EventType).
				Int64("booking_id", event.BookingID).
				Int64("attempts", event.Attempts+1).
				Msg("Booking event delivery failed")
			if err := d.store.MarkBookingEventFailed(ctx, event.ID, deliverErr.Error()); err != nil {
				return result, fmt.Errorf("mark event %s failed: %w", event.ID, err)
			}
			continue
		}

		if err := d.store.MarkBookingEventDispatched(ctx, event.ID, now); err != nil {
			return result, fmt.Errorf("mark event %s dispatched: %w", event.ID, err)
		}
		result.Delivered++
	}

	if result.Examined > 0 {
		logger.Info().
			Int("examined", result.Examined).
			Int("delivered", result.Delivered).
			Int("failed", result.Failed).
			Msg("Booking events dispatched")
	}
	return result, nil
}

// deliver sends event to each sink that has not accepted it yet and records
// every sink that does.
func (d *Dispatcher) deliver(ctx context.Context, event db.BookingEvent, now time.Time) error {
	var payload models.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	done, err := d.store.ListDeliveredSinks(ctx, event.ID)
	if err != nil {
		return err
	}
	delivered := make(map[string]bool, len(done))
	for _, name := range done {
		delivered[name] = true
	}

	var (
		mu       sync.Mutex
		errs     []error
		accepted []string
		g        errgroup.Group
	)
	for _, sink := range d.sinks {
		if delivered[sink.Name()] {
			continue
		}
		g.Go(func() error {
			err := sink.Deliver(ctx, payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
				return nil
			}
			accepted = append(accepted, sink.Name())
			return nil
		})
	}
	_ = g.Wait()

	for _, name := range accepted {
		if err := d.store.MarkSinkDelivered(ctx, event.ID, name, now); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
