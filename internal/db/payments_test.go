package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/testutil"
)

func TestAuthorizationLedgerTransitions(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	seedCourt(t, database)

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"auth-orphan", "auth-fresh", "auth-attached"} {
		if err := database.Queries.CreatePaymentAuthorization(ctx, db.PaymentAuthorization{
			ID:             id,
			OrganizationID: 1,
			AmountCents:    2000,
			Currency:       "usd",
			CreatedAt:      created,
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		if err := database.Queries.MarkAuthorizationAuthorized(ctx, id, "pi_"+id, created); err != nil {
			t.Fatalf("authorize %s: %v", id, err)
		}
	}

	booking := newBooking(1, "confirmed")
	bookingID, err := database.Queries.CreateBooking(ctx, booking)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if err := database.Queries.MarkAuthorizationAttached(ctx, "auth-attached", bookingID, created); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := database.Queries.MarkAuthorizationAuthorized(ctx, "auth-attached", "pi_again", created); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("re-authorize attached row: %v", err)
	}

	orphans, err := database.Queries.ListOrphanedAuthorizations(ctx, created.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("list orphans: %v", err)
	}
	if len(orphans) != 2 {
		t.Fatalf("orphans = %d, want 2", len(orphans))
	}

	if err := database.Queries.MarkAuthorizationReversed(ctx, "auth-orphan", created); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	got, err := database.Queries.GetPaymentAuthorization(ctx, "auth-orphan")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != db.AuthorizationReversed || got.PaymentIntentID != "pi_auth-orphan" {
		t.Fatalf("authorization = %+v", got)
	}
}

func TestOutboxPendingAndDispatched(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	seedCourt(t, database)

	bookingID, err := database.Queries.CreateBooking(ctx, newBooking(1, "confirmed"))
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"evt-1", "evt-2"} {
		if err := database.Queries.InsertBookingEvent(ctx, db.BookingEvent{
			ID:        id,
			BookingID: bookingID,
			EventType: "booking.created",
			Payload:   []byte(`{}`),
			CreatedAt: created.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	if err := database.Queries.MarkBookingEventDispatched(ctx, "evt-1", created); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := database.Queries.MarkBookingEventFailed(ctx, "evt-2", "broker down"); err != nil {
			t.Fatalf("fail: %v", err)
		}
	}

	pending, err := database.Queries.ListPendingBookingEvents(ctx, 5, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "evt-2" || pending[0].Attempts != 3 {
		t.Fatalf("pending = %+v", pending)
	}

	pending, err = database.Queries.ListPendingBookingEvents(ctx, 3, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected exhausted event to be skipped, got %+v", pending)
	}
}
