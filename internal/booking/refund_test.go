package booking

import (
	"testing"

	"github.com/codr1/courtbook/internal/models"
)

func TestRefundPercentage(t *testing.T) {
	tiers := []models.CancellationTier{
		{MinHoursBefore: 0, RefundPercentage: 50},
		{MinHoursBefore: 24, RefundPercentage: 100},
		{MinHoursBefore: 6, RefundPercentage: 75},
	}

	tests := []struct {
		name  string
		tiers []models.CancellationTier
		hours float64
		force bool
		want  int64
	}{
		{name: "no tiers before start", hours: 0.5, want: 100},
		{name: "no tiers after start", hours: -1, want: 0},
		{name: "no tiers at start", hours: 0, want: 0},
		{name: "best tier wins", tiers: tiers, hours: 30, want: 100},
		{name: "middle tier", tiers: tiers, hours: 6, want: 75},
		{name: "inside last window", tiers: tiers, hours: 2, want: 50},
		{name: "after start", tiers: tiers, hours: -0.5, want: 0},
		{name: "no matching tier", tiers: []models.CancellationTier{{MinHoursBefore: 48, RefundPercentage: 100}}, hours: 12, want: 0},
		{name: "force after start", tiers: tiers, hours: -3, force: true, want: 100},
		{name: "out of range tier clamps", tiers: []models.CancellationTier{{MinHoursBefore: 0, RefundPercentage: 150}}, hours: 1, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RefundPercentage(tt.tiers, tt.hours, tt.force); got != tt.want {
				t.Fatalf("RefundPercentage = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRefundAmount(t *testing.T) {
	tests := []struct {
		price, pct, want int64
	}{
		{price: 2000, pct: 50, want: 1000},
		{price: 2001, pct: 50, want: 1000},
		{price: 999, pct: 33, want: 329},
		{price: 2000, pct: 100, want: 2000},
		{price: 2000, pct: 120, want: 2000},
		{price: 2000, pct: 0, want: 0},
		{price: 0, pct: 100, want: 0},
	}
	for _, tt := range tests {
		got := RefundAmount(tt.price, tt.pct)
		if got != tt.want {
			t.Fatalf("RefundAmount(%d, %d) = %d, want %d", tt.price, tt.pct, got, tt.want)
		}
		if got > tt.price && tt.price > 0 {
			t.Fatalf("refund %d exceeds price %d", got, tt.price)
		}
	}
}

func TestRefundStatusFor(t *testing.T) {
	if got := RefundStatusFor(2000, 0); got != models.RefundNone {
		t.Fatalf("zero refund = %q", got)
	}
	if got := RefundStatusFor(2000, 1000); got != models.RefundPartial {
		t.Fatalf("half refund = %q", got)
	}
	if got := RefundStatusFor(2000, 2000); got != models.RefundFull {
		t.Fatalf("full refund = %q", got)
	}
}

func TestKindOf(t *testing.T) {
	err := stateError("booking is already cancelled")
	if KindOf(err) != KindState {
		t.Fatalf("KindOf = %q", KindOf(err))
	}
	if KindOf(nil) != "" {
		t.Fatalf("KindOf(nil) should be empty")
	}
}
