package booking_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/models"
)

func addTiers(t *testing.T, f *fixture, tiers ...models.CancellationTier) {
	t.Helper()
	for _, tier := range tiers {
		tier.OrganizationID = 1
		if _, err := f.db.Queries.CreateCancellationTier(context.Background(), tier); err != nil {
			t.Fatalf("create tier: %v", err)
		}
	}
}

func TestCancelBookingPartialRefundInsideWindow(t *testing.T) {
	f := newFixture(t, orgOptions{priceCents: 2001, paymentAccount: "acct_riverside"})
	addTiers(t, f,
		models.CancellationTier{MinHoursBefore: 24, RefundPercentage: 100},
		models.CancellationTier{MinHoursBefore: 0, RefundPercentage: 50},
	)
	created := f.create(t, player, "10:00", "11:00")

	// Two hours before the 10:00 start.
	f.clock.Set(time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC))
	result, err := f.manager.CancelBooking(context.Background(), booking.CancelInput{
		BookingID: created.BookingID,
		Actor:     player,
		Reason:    "  rain  ",
	})
	if err != nil {
		t.Fatalf("cancel booking: %v", err)
	}
	if !result.Success || result.RefundAmountCents != 1000 || result.RefundStatus != models.RefundPartial {
		t.Fatalf("result = %+v", result)
	}

	if len(f.provider.reversals) != 1 {
		t.Fatalf("reversals = %d, want 1", len(f.provider.reversals))
	}
	call := f.provider.reversals[0]
	if call.amount != 1000 || call.key != "cancel-"+strconv.FormatInt(created.BookingID, 10) {
		t.Fatalf("reversal = %+v", call)
	}

	stored, err := f.db.Queries.GetBooking(context.Background(), created.BookingID)
	if err != nil {
		t.Fatalf("load booking: %v", err)
	}
	if stored.Status != models.BookingCancelled {
		t.Fatalf("status = %q, want cancelled", stored.Status)
	}
	if stored.CancelledBy == nil || *stored.CancelledBy != player.ID || stored.CancellationReason != "rain" {
		t.Fatalf("cancellation not stamped: %+v", stored)
	}
	if stored.RefundAmountCents == nil || *stored.RefundAmountCents != 1000 || stored.RefundStatus != models.RefundPartial {
		t.Fatalf("refund not stored: %+v", stored)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM booking_events WHERE event_type = ?`, models.EventBookingCancelled); n != 1 {
		t.Fatalf("cancelled events = %d, want 1", n)
	}
}

func TestCancelBookingTwiceRefundsOnce(t *testing.T) {
	f := newFixture(t, orgOptions{priceCents: 2000, paymentAccount: "acct_riverside"})
	created := f.create(t, player, "10:00", "11:00")
	ctx := context.Background()

	first, err := f.manager.CancelBooking(ctx, booking.CancelInput{BookingID: created.BookingID, Actor: player})
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if first.RefundStatus != models.RefundFull || first.RefundAmountCents != 2000 {
		t.Fatalf("first cancel = %+v", first)
	}

	_, err = f.manager.CancelBooking(ctx, booking.CancelInput{BookingID: created.BookingID, Actor: player})
	requireKind(t, err, booking.KindState)
	if len(f.provider.reversals) != 1 {
		t.Fatalf("reversals = %d, want exactly 1", len(f.provider.reversals))
	}
}

func TestCancelBookingRefundFailureLeavesBookingUntouched(t *testing.T) {
	f := newFixture(t, orgOptions{priceCents: 2000, paymentAccount: "acct_riverside"})
	created := f.create(t, player, "10:00", "11:00")
	f.provider.reverseErr = errors.New("processor unavailable")

	_, err := f.manager.CancelBooking(context.Background(), booking.CancelInput{BookingID: created.BookingID, Actor: player})
	requireKind(t, err, booking.KindDownstream)

	stored, err := f.db.Queries.GetBooking(context.Background(), created.BookingID)
	if err != nil {
		t.Fatalf("load booking: %v", err)
	}
	if stored.Status != models.BookingPending || stored.CancelledAt != nil {
		t.Fatalf("booking changed after failed refund: %+v", stored)
	}
}

func TestCancelBookingAfterStartWithoutMatchingTier(t *testing.T) {
	f := newFixture(t, orgOptions{priceCents: 2000, paymentAccount: "acct_riverside"})
	addTiers(t, f, models.CancellationTier{MinHoursBefore: 24, RefundPercentage: 100})
	created := f.create(t, player, "10:00", "11:00")

	f.clock.Set(time.Date(2025, 6, 10, 10, 30, 0, 0, time.UTC))
	result, err := f.manager.CancelBooking(context.Background(), booking.CancelInput{BookingID: created.BookingID, Actor: player})
	if err != nil {
		t.Fatalf("cancel booking: %v", err)
	}
	if result.RefundAmountCents != 0 || result.RefundStatus != models.RefundNone {
		t.Fatalf("result = %+v", result)
	}
	if len(f.provider.reversals) != 0 {
		t.Fatalf("zero refund should not call the provider")
	}
}

func TestCancelBookingForce(t *testing.T) {
	f := newFixture(t, orgOptions{priceCents: 2000, paymentAccount: "acct_riverside"})
	addTiers(t, f, models.CancellationTier{MinHoursBefore: 24, RefundPercentage: 100})
	created := f.create(t, player, "10:00", "11:00")
	ctx := context.Background()
	f.clock.Set(time.Date(2025, 6, 10, 10, 30, 0, 0, time.UTC))

	for _, actor := range []models.Actor{player, staff} {
		_, err := f.manager.CancelBooking(ctx, booking.CancelInput{BookingID: created.BookingID, Actor: actor, ForceCancel: true})
		requireKind(t, err, booking.KindAuthorization)
	}

	result, err := f.manager.CancelBooking(ctx, booking.CancelInput{
		BookingID:   created.BookingID,
		Actor:       admin,
		Reason:      "Courts flooded",
		ForceCancel: true,
	})
	if err != nil {
		t.Fatalf("forced cancel: %v", err)
	}
	if result.RefundAmountCents != 2000 || result.RefundStatus != models.RefundFull {
		t.Fatalf("result = %+v", result)
	}
}

func TestCancelBookingAuthorization(t *testing.T) {
	f := newFixture(t, orgOptions{})
	created := f.create(t, player, "10:00", "11:00")
	ctx := context.Background()

	for _, actor := range []models.Actor{otherPlayer, {}} {
		_, err := f.manager.CancelBooking(ctx, booking.CancelInput{BookingID: created.BookingID, Actor: actor})
		requireKind(t, err, booking.KindAuthorization)
	}

	_, err := f.manager.CancelBooking(ctx, booking.CancelInput{BookingID: 999, Actor: admin})
	requireKind(t, err, booking.KindNotFound)

	result, err := f.manager.CancelBooking(ctx, booking.CancelInput{BookingID: created.BookingID, Actor: admin})
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if result.RefundStatus != models.RefundNone || result.RefundAmountCents != 0 {
		t.Fatalf("free booking refund = %+v", result)
	}
}

func TestCancelledSlotCanBeRebooked(t *testing.T) {
	f := newFixture(t, orgOptions{})
	created := f.create(t, player, "10:00", "11:00")
	if _, err := f.manager.CancelBooking(context.Background(), booking.CancelInput{BookingID: created.BookingID, Actor: player}); err != nil {
		t.Fatalf("cancel booking: %v", err)
	}

	again := f.create(t, otherPlayer, "10:00", "11:00")
	if again.BookingID == created.BookingID {
		t.Fatalf("expected a new booking row")
	}
}
