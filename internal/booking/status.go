package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
)

// UpdateBookingStatus moves a booking forward in its lifecycle. Players may
// only mark their own booking completed. Staff approve, confirm, complete and
// mark no-shows. Admins and owners may also cancel here; that goes through
// CancelBooking so the refund policy applies.
func (m *Manager) UpdateBookingStatus(ctx context.Context, bookingID int64, rawStatus string, actor models.Actor) (models.Booking, error) {
	logger := log.Ctx(ctx)

	target, ok := models.ParseBookingStatus(rawStatus)
	if !ok {
		return models.Booking{}, validationError("unknown booking status %q", rawStatus)
	}
	if actor.ID <= 0 || actor.Role == "" {
		return models.Booking{}, authorizationError("an authenticated actor is required")
	}

	booking, err := m.db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Booking{}, notFoundError("booking not found", err)
		}
		return models.Booking{}, fmt.Errorf("load booking: %w", err)
	}

	if err := authorizeTransition(booking, target, actor); err != nil {
		return models.Booking{}, err
	}
	if booking.Status.IsTerminal() {
		return models.Booking{}, stateError(fmt.Sprintf("booking is already %s", booking.Status))
	}
	if !booking.Status.CanTransitionTo(target) {
		return models.Booking{}, stateError(fmt.Sprintf("booking cannot move from %s to %s", booking.Status, target))
	}

	if target == models.BookingCancelled {
		if _, err := m.CancelBooking(ctx, CancelInput{BookingID: bookingID, Actor: actor}); err != nil {
			return models.Booking{}, err
		}
		return m.reload(ctx, bookingID)
	}

	court, err := m.db.Queries.GetCourt(ctx, booking.CourtID)
	if err != nil {
		return models.Booking{}, fmt.Errorf("load court: %w", err)
	}

	now := m.clock.Now()
	params := db.UpdateBookingStatusParams{
		ID:        booking.ID,
		From:      booking.Status,
		To:        target,
		UpdatedAt: now,
	}
	if booking.Status == models.BookingAwaitingApproval && target == models.BookingConfirmed {
		approver := actor.ID
		params.ApprovedBy = &approver
		params.ApprovedAt = &now
	}

	err = m.db.RunInTx(ctx, func(tx *db.DB) error {
		ok, err := tx.Queries.UpdateBookingStatus(ctx, params)
		if err != nil {
			return err
		}
		if !ok {
			return stateError("booking was changed by another request")
		}

		previous := booking.Status
		booking.Status = target
		payload := m.eventPayload(models.EventBookingStatusChanged, booking, court, actor.ID)
		payload.PreviousStatus = previous
		return m.insertEvent(ctx, tx.Queries, payload)
	})
	if err != nil {
		return models.Booking{}, err
	}

	logger.Info().
		Int64("booking_id", booking.ID).
		Str("status", string(target)).
		Int64("updated_by", actor.ID).
		Msg("Booking status updated")
	return m.reload(ctx, bookingID)
}

func authorizeTransition(booking models.Booking, target models.BookingStatus, actor models.Actor) error {
	if target == models.BookingCancelled && actor.IsStaff() && !actor.IsAdmin() {
		return authorizationError("only an organization admin or owner may cancel a booking for a player")
	}
	if actor.IsStaff() {
		return nil
	}
	if !booking.BelongsTo(actor.ID) {
		return authorizationError("players may only update their own bookings")
	}
	switch target {
	case models.BookingCompleted:
		return nil
	case models.BookingCancelled:
		return authorizationError("use the cancel endpoint to cancel a booking")
	case models.BookingNoShow:
		return authorizationError("only staff may mark a no-show")
	default:
		return authorizationError(fmt.Sprintf("only staff may set a booking to %s", target))
	}
}

func (m *Manager) reload(ctx context.Context, bookingID int64) (models.Booking, error) {
	booking, err := m.db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, fmt.Errorf("reload booking: %w", err)
	}
	return booking, nil
}

// GetBooking loads a booking and the timezone of its court.
func (m *Manager) GetBooking(ctx context.Context, bookingID int64) (models.Booking, string, error) {
	booking, err := m.db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Booking{}, "", notFoundError("booking not found", err)
		}
		return models.Booking{}, "", fmt.Errorf("load booking: %w", err)
	}
	court, err := m.db.Queries.GetCourt(ctx, booking.CourtID)
	if err != nil {
		return models.Booking{}, "", fmt.Errorf("load court: %w", err)
	}
	return booking, court.Timezone, nil
}
