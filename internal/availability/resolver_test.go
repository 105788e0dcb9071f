package availability_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/testutil"
)

// 2025-06-10 is a Tuesday.
const scenarioDate = "2025-06-10"

var beforeScenario = time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)

func seedScenario(t *testing.T, database *db.DB) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO organizations (id, name, currency) VALUES (1, 'Org', 'usd')`,
		`INSERT INTO facilities (id, organization_id, name, timezone) VALUES (1, 1, 'Club', 'UTC')`,
		`INSERT INTO courts (id, facility_id, name, slot_duration_minutes, default_price_cents) VALUES (1, 1, 'Court 1', 60, 2000)`,
		`INSERT INTO courts (id, facility_id, name, slot_duration_minutes, default_price_cents) VALUES (2, 1, 'Court 2', 60, 2000)`,
		`INSERT INTO court_weekly_availability (court_id, day_of_week, open_time, close_time) VALUES (1, 2, '09:00', '17:00')`,
	}
	for _, stmt := range stmts {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
}

func insertBooking(t *testing.T, database *db.DB, courtID int64, start, end string, status models.BookingStatus) {
	t.Helper()
	now := beforeScenario
	if _, err := database.Queries.CreateBooking(context.Background(), models.Booking{
		OrganizationID: 1,
		FacilityID:     1,
		CourtID:        courtID,
		Date:           scenarioDate,
		StartTime:      start,
		EndTime:        end,
		Status:         status,
		PriceCents:     2000,
		Currency:       "usd",
		CreatedBy:      1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		t.Fatalf("insert booking: %v", err)
	}
}

func TestResolveSlotsTemplate(t *testing.T) {
	database := testutil.NewTestDB(t)
	seedScenario(t, database)

	resolver := availability.NewResolver(database.Queries, nil)
	slots, err := resolver.ResolveSlots(context.Background(), 1, scenarioDate, beforeScenario)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(slots) != 8 {
		t.Fatalf("slots = %d, want 8", len(slots))
	}
	if slots[0].StartTime != "09:00" || slots[7].EndTime != "17:00" || slots[0].Currency != "usd" {
		t.Fatalf("slots = %+v", slots)
	}
}

func TestResolveSlotsBookings(t *testing.T) {
	database := testutil.NewTestDB(t)
	seedScenario(t, database)
	insertBooking(t, database, 1, "10:00", "11:00", models.BookingConfirmed)
	insertBooking(t, database, 1, "12:00", "13:00", models.BookingCancelled)

	slots, err := availability.NewResolver(database.Queries, nil).ResolveSlots(context.Background(), 1, scenarioDate, beforeScenario)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := availability.Contains(slots, "10:00", "11:00"); ok {
		t.Fatalf("confirmed booking window offered")
	}
	if _, ok := availability.Contains(slots, "12:00", "13:00"); !ok {
		t.Fatalf("cancelled booking window missing")
	}
}

func TestResolveSlotsOverrides(t *testing.T) {
	database := testutil.NewTestDB(t)
	seedScenario(t, database)
	ctx := context.Background()

	for _, o := range []models.AvailabilityOverride{
		{FacilityID: 1, Date: scenarioDate, StartTime: "08:00", EndTime: "09:00", SlotDurationMinutes: 60, PriceCents: ptr(int64(1500)), Reason: "Extended hours", IsAvailable: true},
		{FacilityID: 1, CourtID: ptr(int64(1)), Date: scenarioDate, StartTime: "08:00", EndTime: "09:00", SlotDurationMinutes: 60, PriceCents: ptr(int64(1800)), IsAvailable: true},
	} {
		o.CreatedAt = beforeScenario
		if _, err := database.Queries.CreateOverride(ctx, o); err != nil {
			t.Fatalf("create override: %v", err)
		}
	}

	resolver := availability.NewResolver(database.Queries, nil)
	slots, err := resolver.ResolveSlots(ctx, 1, scenarioDate, beforeScenario)
	if err != nil {
		t.Fatalf("resolve court 1: %v", err)
	}
	slot, ok := availability.Contains(slots, "08:00", "09:00")
	if !ok || slot.PriceCents != 1800 {
		t.Fatalf("court 1 override slot = %+v ok=%v", slot, ok)
	}

	// Court 2 has no template; it only sees the facility-wide override.
	slots, err = resolver.ResolveSlots(ctx, 2, scenarioDate, beforeScenario)
	if err != nil {
		t.Fatalf("resolve court 2: %v", err)
	}
	if len(slots) != 1 || slots[0].PriceCents != 1500 || slots[0].Reason != "Extended hours" {
		t.Fatalf("court 2 slots = %+v", slots)
	}

	// Once the date is in the past, overrides no longer load.
	after := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	slots, err = resolver.ResolveSlots(ctx, 2, scenarioDate, after)
	if err != nil {
		t.Fatalf("resolve past date: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("past date slots = %+v", slots)
	}
}

func TestResolveSlotsUnknownCourt(t *testing.T) {
	database := testutil.NewTestDB(t)
	seedScenario(t, database)

	_, err := availability.NewResolver(database.Queries, nil).ResolveSlots(context.Background(), 404, scenarioDate, beforeScenario)
	if !errors.Is(err, availability.ErrCourtNotFound) {
		t.Fatalf("expected ErrCourtNotFound, got %v", err)
	}
}

type memoryCache struct {
	entries map[string][]models.Slot
	gets    int
	sets    int
}

func (m *memoryCache) key(courtID int64, date string) string {
	return fmt.Sprintf("%d/%s", courtID, date)
}

func (m *memoryCache) Get(_ context.Context, courtID int64, date string) ([]models.Slot, bool, error) {
	m.gets++
	slots, ok := m.entries[m.key(courtID, date)]
	return slots, ok, nil
}

func (m *memoryCache) Set(_ context.Context, courtID int64, date string, slots []models.Slot) error {
	m.sets++
	m.entries[m.key(courtID, date)] = slots
	return nil
}

func TestResolveSlotsReadThroughCache(t *testing.T) {
	database := testutil.NewTestDB(t)
	seedScenario(t, database)
	cache := &memoryCache{entries: map[string][]models.Slot{}}
	resolver := availability.NewResolver(database.Queries, cache)
	ctx := context.Background()

	if _, err := resolver.ResolveSlots(ctx, 1, scenarioDate, beforeScenario); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	// A booking written behind the cache's back stays invisible until invalidated.
	insertBooking(t, database, 1, "09:00", "10:00", models.BookingConfirmed)
	slots, err := resolver.ResolveSlots(ctx, 1, scenarioDate, beforeScenario)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if cache.sets != 1 || len(slots) != 8 {
		t.Fatalf("sets = %d, slots = %d", cache.sets, len(slots))
	}

	slots, err = availability.Uncached(database.Queries).ResolveSlots(ctx, 1, scenarioDate, beforeScenario)
	if err != nil {
		t.Fatalf("uncached resolve: %v", err)
	}
	if len(slots) != 7 {
		t.Fatalf("uncached slots = %d, want 7", len(slots))
	}
}

func ptr[T any](v T) *T { return &v }
