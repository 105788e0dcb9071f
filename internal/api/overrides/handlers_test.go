package overrides

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/testutil"
)

type recordingCache struct {
	mu   sync.Mutex
	keys []string
}

func (c *recordingCache) Invalidate(_ context.Context, courtID int64, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, strconv.FormatInt(courtID, 10)+":"+date)
	return nil
}

func (c *recordingCache) take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.keys
	c.keys = nil
	sort.Strings(keys)
	return keys
}

var (
	staffActor  = models.Actor{ID: 7, Role: models.RoleStaff}
	playerActor = models.Actor{ID: 42, Role: models.RolePlayer}
)

func setup(t *testing.T) *recordingCache {
	t.Helper()
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	for _, stmt := range []string{
		`INSERT INTO organizations (id, name) VALUES (1, 'Org')`,
		`INSERT INTO facilities (id, organization_id, name, timezone) VALUES (1, 1, 'Club', 'America/New_York')`,
		`INSERT INTO facilities (id, organization_id, name, timezone) VALUES (2, 1, 'Annex', 'UTC')`,
		`INSERT INTO courts (id, facility_id, name, slot_duration_minutes) VALUES (1, 1, 'Court 1', 90)`,
		`INSERT INTO courts (id, facility_id, name) VALUES (2, 1, 'Court 2')`,
		`INSERT INTO courts (id, facility_id, name) VALUES (3, 2, 'Annex 1')`,
	} {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	cache := &recordingCache{}
	InitHandlers(database.Queries, cache, localtime.FixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	return cache
}

func request(method, target string, actor *models.Actor, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	if actor != nil {
		req = req.WithContext(authz.ContextWithActor(req.Context(), *actor))
	}
	return req
}

func create(t *testing.T, body string) models.AvailabilityOverride {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleCreateOverride(rec, request(http.MethodPost, "/api/v1/overrides", &staffActor, body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	var override models.AvailabilityOverride
	if err := json.NewDecoder(rec.Body).Decode(&override); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return override
}

func TestCreateCourtOverrideUsesCourtSlotLength(t *testing.T) {
	cache := setup(t)

	override := create(t, `{"facility_id":1,"court_id":1,"date":"2025-06-10","start_time":"7:00","end_time":"10:00","reason":" league night "}`)
	if override.ID == 0 || override.StartTime != "07:00" || override.SlotDurationMinutes != 90 {
		t.Fatalf("override = %+v", override)
	}
	if !override.IsAvailable || override.Reason != "league night" || override.CreatedBy != staffActor.ID {
		t.Fatalf("override = %+v", override)
	}
	if keys := cache.take(); len(keys) != 1 || keys[0] != "1:2025-06-10" {
		t.Fatalf("invalidated = %v", keys)
	}
}

func TestFacilityOverrideInvalidatesEveryCourt(t *testing.T) {
	cache := setup(t)

	override := create(t, `{"facility_id":1,"date":"2025-06-10","start_time":"18:00","end_time":"20:00","is_available":false}`)
	if override.IsCourtSpecific() || override.IsAvailable || override.SlotDurationMinutes != defaultSlotMinutes {
		t.Fatalf("override = %+v", override)
	}
	keys := cache.take()
	if len(keys) != 2 || keys[0] != "1:2025-06-10" || keys[1] != "2:2025-06-10" {
		t.Fatalf("invalidated = %v", keys)
	}

	rec := httptest.NewRecorder()
	req := request(http.MethodDelete, "/api/v1/overrides/"+strconv.FormatInt(override.ID, 10), &staffActor, "")
	req.SetPathValue("id", strconv.FormatInt(override.ID, 10))
	HandleDeleteOverride(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d body=%s", rec.Code, rec.Body.String())
	}
	if keys := cache.take(); len(keys) != 2 {
		t.Fatalf("invalidated on delete = %v", keys)
	}

	rec = httptest.NewRecorder()
	HandleDeleteOverride(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

func TestListOverrides(t *testing.T) {
	setup(t)
	create(t, `{"facility_id":1,"date":"2025-06-10","start_time":"18:00","end_time":"20:00"}`)
	create(t, `{"facility_id":1,"court_id":2,"date":"2025-06-11","start_time":"18:00","end_time":"20:00"}`)
	create(t, `{"facility_id":2,"date":"2025-06-10","start_time":"18:00","end_time":"20:00"}`)

	tests := []struct {
		query string
		want  int
	}{
		{query: "?facility_id=1", want: 2},
		{query: "?facility_id=1&date=2025-06-11", want: 1},
		{query: "?facility_id=2&date=2025-06-11", want: 0},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		HandleListOverrides(rec, request(http.MethodGet, "/api/v1/overrides"+tt.query, &staffActor, ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.query, rec.Code)
		}
		var resp listOverridesResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Overrides == nil || len(resp.Overrides) != tt.want {
			t.Fatalf("%s: overrides = %+v", tt.query, resp.Overrides)
		}
	}
}

func TestCreateOverrideRejects(t *testing.T) {
	setup(t)

	tests := []struct {
		name   string
		actor  *models.Actor
		body   string
		status int
	}{
		{name: "anonymous", body: `{}`, status: http.StatusUnauthorized},
		{name: "player", actor: &playerActor, body: `{}`, status: http.StatusForbidden},
		{name: "missing facility", actor: &staffActor, body: `{"date":"2025-06-10","start_time":"18:00","end_time":"20:00"}`, status: http.StatusBadRequest},
		{name: "unknown facility", actor: &staffActor, body: `{"facility_id":9,"date":"2025-06-10","start_time":"18:00","end_time":"20:00"}`, status: http.StatusNotFound},
		{name: "court of another facility", actor: &staffActor, body: `{"facility_id":1,"court_id":3,"date":"2025-06-10","start_time":"18:00","end_time":"20:00"}`, status: http.StatusBadRequest},
		{name: "past date", actor: &staffActor, body: `{"facility_id":1,"date":"2025-05-31","start_time":"18:00","end_time":"20:00"}`, status: http.StatusBadRequest},
		{name: "equal times", actor: &staffActor, body: `{"facility_id":1,"date":"2025-06-10","start_time":"18:00","end_time":"18:00"}`, status: http.StatusBadRequest},
		{name: "zero slot length", actor: &staffActor, body: `{"facility_id":1,"date":"2025-06-10","start_time":"18:00","end_time":"20:00","slot_duration_minutes":0}`, status: http.StatusBadRequest},
		{name: "negative price", actor: &staffActor, body: `{"facility_id":1,"date":"2025-06-10","start_time":"18:00","end_time":"20:00","price_cents":-1}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleCreateOverride(rec, request(http.MethodPost, "/api/v1/overrides", tt.actor, tt.body))
			if rec.Code != tt.status {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
}
