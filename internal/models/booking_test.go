package models

import (
	"errors"
	"testing"
)

func TestBookingStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		want     bool
	}{
		{BookingPending, BookingConfirmed, true},
		{BookingPending, BookingAwaitingApproval, true},
		{BookingAwaitingApproval, BookingConfirmed, true},
		{BookingConfirmed, BookingCompleted, true},
		{BookingConfirmed, BookingNoShow, true},
		{BookingConfirmed, BookingCancelled, true},
		{BookingConfirmed, BookingPending, false},
		{BookingConfirmed, BookingConfirmed, false},
		{BookingAwaitingApproval, BookingPending, false},
		{BookingCancelled, BookingConfirmed, false},
		{BookingCompleted, BookingNoShow, false},
		{BookingNoShow, BookingCompleted, false},
		{BookingCancelled, BookingCancelled, false},
		{BookingConfirmed, BookingStatus("archived"), false},
	}

	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseBookingStatus(t *testing.T) {
	status, ok := ParseBookingStatus(" No_Show ")
	if !ok || status != BookingNoShow {
		t.Fatalf("got %q ok=%v", status, ok)
	}
	if _, ok := ParseBookingStatus("refunded"); ok {
		t.Fatalf("expected unknown status to be rejected")
	}
}

func TestGuestContactNormalize(t *testing.T) {
	guest, err := GuestContact{
		Name:  "  Dana Smith ",
		Email: "Dana@Example.com",
		Phone: "(201) 555-0123",
	}.Normalize("US")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if guest.Name != "Dana Smith" {
		t.Errorf("name = %q", guest.Name)
	}
	if guest.Email != "dana@example.com" {
		t.Errorf("email = %q", guest.Email)
	}
	if guest.Phone != "+12015550123" {
		t.Errorf("phone = %q", guest.Phone)
	}

	if _, err := (GuestContact{Name: "x", Phone: "12"}).Normalize("US"); !errors.Is(err, ErrInvalidGuestContact) {
		t.Fatalf("expected ErrInvalidGuestContact, got %v", err)
	}
	if _, err := (GuestContact{}).Normalize("US"); !errors.Is(err, ErrInvalidGuestContact) {
		t.Fatalf("expected ErrInvalidGuestContact for empty name, got %v", err)
	}
}

func TestParseLegacyGuestNotes(t *testing.T) {
	guest, rest := ParseLegacyGuestNotes("Guest: Pat Lee\nEmail: pat@example.com\nPhone: +14155550100\nBring extra balls")
	if guest == nil {
		t.Fatalf("expected guest contact")
	}
	if guest.Name != "Pat Lee" || guest.Email != "pat@example.com" || guest.Phone != "+14155550100" {
		t.Fatalf("guest = %+v", guest)
	}
	if rest != "Bring extra balls" {
		t.Fatalf("rest = %q", rest)
	}

	guest, rest = ParseLegacyGuestNotes("Guest: Sam Ortiz | sam@example.com | +14155550101")
	if guest == nil || guest.Name != "Sam Ortiz" || guest.Email != "sam@example.com" || guest.Phone != "+14155550101" {
		t.Fatalf("pipe form guest = %+v", guest)
	}
	if rest != "" {
		t.Fatalf("pipe form rest = %q", rest)
	}

	guest, rest = ParseLegacyGuestNotes("Note: court 3 lights flicker")
	if guest != nil {
		t.Fatalf("expected no guest, got %+v", guest)
	}
	if rest != "Note: court 3 lights flicker" {
		t.Fatalf("rest = %q", rest)
	}
}

func TestBookingRecipient(t *testing.T) {
	b := Booking{Guest: &GuestContact{Name: "G", Email: "g@example.com"}}
	if got := b.Recipient(); got != "g@example.com" {
		t.Fatalf("recipient = %q", got)
	}
	b.ContactEmail = "player@example.com"
	if got := b.Recipient(); got != "player@example.com" {
		t.Fatalf("recipient = %q", got)
	}
}
