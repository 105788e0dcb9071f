package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
)

type CancelInput struct {
	BookingID   int64
	Actor       models.Actor
	Reason      string
	ForceCancel bool
}

type CancelResult struct {
	Success           bool                `json:"success"`
	RefundAmountCents int64               `json:"refundAmountCents"`
	RefundStatus      models.RefundStatus `json:"refundStatus"`
	Message           string              `json:"message"`
}

// CancelBooking cancels a live booking and refunds it according to the
// organization's cancellation tiers. The provider refund happens before the
// booking row changes and uses a key derived from the booking id, so a failed
// refund leaves the booking untouched and a retried cancel cannot refund twice.
func (m *Manager) CancelBooking(ctx context.Context, in CancelInput) (CancelResult, error) {
	logger := log.Ctx(ctx)

	if in.Actor.ID <= 0 || in.Actor.Role == "" {
		return CancelResult{}, authorizationError("an authenticated actor is required")
	}
	if in.ForceCancel && !in.Actor.IsAdmin() {
		return CancelResult{}, authorizationError("only an organization admin or owner may force a cancellation")
	}

	booking, err := m.db.Queries.GetBooking(ctx, in.BookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CancelResult{}, notFoundError("booking not found", err)
		}
		return CancelResult{}, fmt.Errorf("load booking: %w", err)
	}
	if !booking.BelongsTo(in.Actor.ID) && !in.Actor.IsAdmin() {
		return CancelResult{}, authorizationError("only the booking's player or an organization admin or owner may cancel it")
	}
	if booking.Status.IsTerminal() {
		return CancelResult{}, stateError(fmt.Sprintf("booking is already %s", booking.Status))
	}

	court, err := m.db.Queries.GetCourt(ctx, booking.CourtID)
	if err != nil {
		return CancelResult{}, fmt.Errorf("load court: %w", err)
	}
	start, err := localtime.CreateInstant(booking.Date, booking.StartTime, court.Timezone)
	if err != nil {
		return CancelResult{}, fmt.Errorf("booking start: %w", err)
	}

	tiers, err := m.db.Queries.ListCancellationTiers(ctx, booking.OrganizationID)
	if err != nil {
		return CancelResult{}, fmt.Errorf("load cancellation policy: %w", err)
	}

	now := m.clock.Now()
	hoursUntilStart := localtime.SignedDifferenceFromNow(start, now).Hours()
	pct := RefundPercentage(tiers, hoursUntilStart, in.ForceCancel)

	// Nothing was charged without a payment intent, so nothing goes back.
	refund := int64(0)
	if booking.PaymentIntentID != "" {
		refund = RefundAmount(booking.PriceCents, pct)
	}
	refundStatus := RefundStatusFor(booking.PriceCents, refund)

	if refund > 0 {
		key := "cancel-" + strconv.FormatInt(booking.ID, 10)
		if _, err := m.provider.ReverseAuthorization(ctx, booking.PaymentIntentID, refund, key); err != nil {
			logger.Error().
				Err(err).
				Int64("booking_id", booking.ID).
				Str("payment_intent_id", booking.PaymentIntentID).
				Int64("refund_cents", refund).
				Msg("Refund failed; booking left unchanged")
			return CancelResult{}, downstreamError("refund could not be issued; the booking was not cancelled", err)
		}
	}

	reason := strings.TrimSpace(in.Reason)
	err = m.db.RunInTx(ctx, func(tx *db.DB) error {
		ok, err := tx.Queries.CancelBooking(ctx, db.CancelBookingParams{
			ID:                booking.ID,
			CancelledAt:       now,
			CancelledBy:       in.Actor.ID,
			Reason:            reason,
			RefundAmountCents: refund,
			RefundStatus:      refundStatus,
		})
		if err != nil {
			return err
		}
		if !ok {
			return stateError("booking was changed by another request")
		}

		previous := booking.Status
		booking.Status = models.BookingCancelled
		payload := m.eventPayload(models.EventBookingCancelled, booking, court, in.Actor.ID)
		payload.PreviousStatus = previous
		payload.RefundAmountCents = refund
		payload.RefundStatus = refundStatus
		return m.insertEvent(ctx, tx.Queries, payload)
	})
	if err != nil {
		if refund > 0 {
			logger.Error().
				Err(err).
				Int64("booking_id", booking.ID).
				Int64("refund_cents", refund).
				Msg("Refund issued but cancellation was not recorded")
		}
		return CancelResult{}, err
	}

	m.invalidate(ctx, booking.CourtID, booking.Date, booking.StartTime, booking.EndTime)
	logger.Info().
		Int64("booking_id", booking.ID).
		Int64("cancelled_by", in.Actor.ID).
		Bool("force", in.ForceCancel).
		Int64("refund_percentage", pct).
		Int64("refund_cents", refund).
		Msg("Booking cancelled")

	return CancelResult{
		Success:           true,
		RefundAmountCents: refund,
		RefundStatus:      refundStatus,
		Message:           cancelMessage(refund, booking.Currency),
	}, nil
}

func cancelMessage(refund int64, currency string) string {
	if refund <= 0 {
		return "Booking cancelled. No refund was issued."
	}
	return fmt.Sprintf("Booking cancelled. A refund of %s was issued.", models.FormatPriceCents(refund, currency))
}
