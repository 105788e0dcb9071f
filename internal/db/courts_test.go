package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/testutil"
)

func TestCourtTemplateUpsert(t *testing.T) {
	database := testutil.NewTestDB(t)
	courtID := seedCourt(t, database)
	ctx := context.Background()

	price := int64(1500)
	if err := database.Queries.UpsertCourtTemplate(ctx, models.WeeklyTemplate{
		CourtID: courtID, DayOfWeek: 2, OpenTime: "08:00", CloseTime: "12:00", PriceCents: &price,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := database.Queries.UpsertCourtTemplate(ctx, models.WeeklyTemplate{
		CourtID: courtID, DayOfWeek: 2, OpenTime: "09:00", CloseTime: "13:00",
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	tmpl, err := database.Queries.GetCourtTemplate(ctx, courtID, 2)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if tmpl.OpenTime != "09:00" || tmpl.CloseTime != "13:00" || tmpl.PriceCents != nil {
		t.Fatalf("template = %+v", tmpl)
	}

	if _, err := database.Queries.GetCourtTemplate(ctx, courtID, 3); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListCourtIDsForFacility(t *testing.T) {
	database := testutil.NewTestDB(t)
	seedCourt(t, database)
	ctx := context.Background()
	if _, err := database.ExecContext(ctx, `INSERT INTO courts (id, facility_id, name, is_active) VALUES (2, 1, 'Court 2', 0)`); err != nil {
		t.Fatalf("insert court: %v", err)
	}

	ids, err := database.Queries.ListCourtIDsForFacility(ctx, 1)
	if err != nil {
		t.Fatalf("list courts: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("ids = %v", ids)
	}
}

func TestOverridesForDate(t *testing.T) {
	database := testutil.NewTestDB(t)
	courtID := seedCourt(t, database)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	facilityWide := models.AvailabilityOverride{
		FacilityID: 1, Date: "2025-06-10", StartTime: "18:00", EndTime: "20:00",
		SlotDurationMinutes: 60, IsAvailable: true, CreatedBy: 7, CreatedAt: now,
	}
	courtOnly := facilityWide
	courtOnly.CourtID = &courtID
	courtOnly.Reason = "tournament"
	otherDay := facilityWide
	otherDay.Date = "2025-06-11"

	var courtOverrideID int64
	for i, o := range []models.AvailabilityOverride{facilityWide, courtOnly, otherDay} {
		id, err := database.Queries.CreateOverride(ctx, o)
		if err != nil {
			t.Fatalf("create override %d: %v", i, err)
		}
		if i == 1 {
			courtOverrideID = id
		}
	}

	overrides, err := database.Queries.ListOverridesForDate(ctx, 1, courtID, "2025-06-10")
	if err != nil {
		t.Fatalf("list for date: %v", err)
	}
	if len(overrides) != 2 {
		t.Fatalf("overrides = %+v", overrides)
	}

	got, err := database.Queries.GetOverride(ctx, courtOverrideID)
	if err != nil {
		t.Fatalf("get override: %v", err)
	}
	if !got.IsCourtSpecific() || got.Reason != "tournament" {
		t.Fatalf("override = %+v", got)
	}

	if err := database.Queries.DeleteOverride(ctx, courtOverrideID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := database.Queries.DeleteOverride(ctx, courtOverrideID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("second delete = %v, want sql.ErrNoRows", err)
	}
}
