package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/db"
)

const defaultSweepBatch = 50

// LedgerStore is the part of the authorization ledger the sweeper touches.
type LedgerStore interface {
	ListOrphanedAuthorizations(ctx context.Context, createdBefore time.Time, limit int) ([]db.PaymentAuthorization, error)
	MarkAuthorizationAuthorized(ctx context.Context, id, paymentIntentID string, at time.Time) error
	MarkAuthorizationReversed(ctx context.Context, id string, at time.Time) error
	MarkAuthorizationFailed(ctx context.Context, id, lastError string, at time.Time) error
	RecordAuthorizationError(ctx context.Context, id, lastError string, at time.Time) error
}

// Sweeper releases provider holds that never got attached to a booking, for
// example when the booking insert failed and its compensating reversal did too,
// or when the process stopped between the provider call and the ledger update.
type Sweeper struct {
	ledger   LedgerStore
	provider Provider
	minAge   time.Duration
	batch    int
}

func NewSweeper(ledger LedgerStore, provider Provider, minAge time.Duration) *Sweeper {
	return &Sweeper{ledger: ledger, provider: provider, minAge: minAge, batch: defaultSweepBatch}
}

type SweepResult struct {
	Examined  int
	Recovered int
	Reversed  int
	Abandoned int
	Failed    int
}

// Sweep reverses orphaned authorizations older than the sweeper's minimum age.
// A failed reversal stays in the ledger for the next run.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	logger := log.With().Str("component", "payment_sweep").Logger()

	orphans, err := s.ledger.ListOrphanedAuthorizations(ctx, now.Add(-s.minAge), s.batch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list orphaned authorizations: %w", err)
	}

	result := SweepResult{Examined: len(orphans)}
	for _, auth := range orphans {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if auth.State == db.AuthorizationReserved {
			found, err := s.recoverHold(ctx, &auth, now)
			if err != nil {
				result.Failed++
				logger.Error().Err(err).Str("authorization_id", auth.ID).Msg("Failed to look up reserved authorization")
				if recErr := s.ledger.RecordAuthorizationError(ctx, auth.ID, err.Error(), now); recErr != nil {
					logger.Error().Err(recErr).Str("authorization_id", auth.ID).Msg("Failed to record sweep error")
				}
				continue
			}
			if !found {
				result.Abandoned++
				continue
			}
			result.Recovered++
		}
		if auth.PaymentIntentID == "" {
			if err := s.ledger.MarkAuthorizationReversed(ctx, auth.ID, now); err != nil {
				return result, fmt.Errorf("mark authorization %s reversed: %w", auth.ID, err)
			}
			result.Reversed++
			continue
		}

		if _, err := s.provider.ReverseAuthorization(ctx, auth.PaymentIntentID, auth.AmountCents, "sweep-"+auth.ID); err != nil {
			result.Failed++
			logger.Error().
				Err(err).
				Str("authorization_id", auth.ID).
				Str("payment_intent_id", auth.PaymentIntentID).
				Msg("Failed to reverse orphaned authorization")
			if recErr := s.ledger.RecordAuthorizationError(ctx, auth.ID, err.Error(), now); recErr != nil {
				logger.Error().Err(recErr).Str("authorization_id", auth.ID).Msg("Failed to record sweep error")
			}
			continue
		}

		if err := s.ledger.MarkAuthorizationReversed(ctx, auth.ID, now); err != nil {
			return result, fmt.Errorf("mark authorization %s reversed: %w", auth.ID, err)
		}
		result.Reversed++
		logger.Info().
			Str("authorization_id", auth.ID).
			Str("payment_intent_id", auth.PaymentIntentID).
			Int64("amount_cents", auth.AmountCents).
			Msg("Reversed orphaned authorization")
	}
	return result, nil
}

// recoverHold asks the provider for the hold behind a reservation that never
// recorded its outcome. A hold that exists is written back to the ledger so it
// can be reversed; a reservation with no hold is closed as failed.
func (s *Sweeper) recoverHold(ctx context.Context, auth *db.PaymentAuthorization, now time.Time) (bool, error) {
	found, ok, err := s.provider.FindAuthorization(ctx, auth.ID)
	if err != nil {
		return false, err
	}
	if !ok {
		if err := s.ledger.MarkAuthorizationFailed(ctx, auth.ID, "no provider hold found", now); err != nil {
			return false, fmt.Errorf("mark authorization %s failed: %w", auth.ID, err)
		}
		return false, nil
	}
	if err := s.ledger.MarkAuthorizationAuthorized(ctx, auth.ID, found.PaymentIntentID, now); err != nil {
		return false, fmt.Errorf("mark authorization %s authorized: %w", auth.ID, err)
	}
	auth.PaymentIntentID = found.PaymentIntentID
	auth.State = db.AuthorizationAuthorized
	return true, nil
}
