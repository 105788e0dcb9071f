package bookings

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/api"
	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/payments"
	"github.com/codr1/courtbook/internal/status"
	"github.com/codr1/courtbook/internal/testutil"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	for _, stmt := range []string{
		`INSERT INTO organizations (id, name) VALUES (1, 'Org')`,
		`INSERT INTO facilities (id, organization_id, name, timezone) VALUES (1, 1, 'Club', 'UTC')`,
		`INSERT INTO courts (id, facility_id, name, slot_duration_minutes) VALUES (1, 1, 'Court 1', 60)`,
		`INSERT INTO court_weekly_availability (court_id, day_of_week, open_time, close_time) VALUES (1, 2, '08:00', '12:00')`,
	} {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	clk := localtime.FixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	InitHandlers(booking.NewManager(database, payments.Disabled{}, booking.Config{Clock: clk}), clk)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bookings", HandleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}", HandleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", HandleCancelBooking)
	mux.HandleFunc("PATCH /api/v1/bookings/{id}/status", HandleUpdateBookingStatus)
	return api.ChainMiddleware(mux, api.WithActor)
}

func do(t *testing.T, h http.Handler, method, path string, actor *models.Actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if actor != nil {
		req.Header.Set("X-Actor-ID", strconv.FormatInt(actor.ID, 10))
		req.Header.Set("X-Actor-Role", string(actor.Role))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body apiutil.ErrorBody
	decode(t, rec, &body)
	return body.Error
}

var (
	player = &models.Actor{ID: 42, Role: models.RolePlayer}
	other  = &models.Actor{ID: 43, Role: models.RolePlayer}
	staff  = &models.Actor{ID: 7, Role: models.RoleStaff}
)

const createBody = `{"court_id":1,"date":"2025-06-10","start_time":"10:00","end_time":"11:00"}`

func createBooking(t *testing.T, h http.Handler) int64 {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/bookings", player, createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	var result booking.CreateResult
	decode(t, rec, &result)
	if result.Status != models.BookingConfirmed || result.BookingID == 0 {
		t.Fatalf("result = %+v", result)
	}
	return result.BookingID
}

func TestCreateAndGetBooking(t *testing.T) {
	h := newTestServer(t)
	id := createBooking(t, h)
	path := "/api/v1/bookings/" + strconv.FormatInt(id, 10)

	rec := do(t, h, http.MethodGet, path, player, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp bookingResponse
	decode(t, rec, &resp)
	if resp.ID != id || resp.LiveStatus != status.Scheduled || !resp.BelongsTo(player.ID) {
		t.Fatalf("response = %+v", resp)
	}

	if rec := do(t, h, http.MethodGet, path, other, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("other player status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, path, staff, ""); rec.Code != http.StatusOK {
		t.Fatalf("staff status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, path, nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
}

func TestCreateBookingErrors(t *testing.T) {
	h := newTestServer(t)
	createBooking(t, h)

	tests := []struct {
		name   string
		actor  *models.Actor
		body   string
		status int
		code   string
	}{
		{name: "conflict", actor: player, body: createBody, status: http.StatusConflict, code: "conflict"},
		{name: "unknown field", actor: player, body: `{"court":1}`, status: http.StatusBadRequest, code: "validation"},
		{name: "bad time", actor: player, body: `{"court_id":1,"date":"2025-06-10","start_time":"25:00","end_time":"11:00"}`, status: http.StatusBadRequest, code: "validation"},
		{name: "guest by player", actor: player, body: `{"court_id":1,"date":"2025-06-10","start_time":"11:00","end_time":"12:00","guest":{"name":"Ann","email":"ann@example.com"}}`, status: http.StatusForbidden, code: "authorization"},
		{name: "unknown court", actor: player, body: `{"court_id":9,"date":"2025-06-10","start_time":"11:00","end_time":"12:00"}`, status: http.StatusNotFound, code: "not_found"},
		{name: "anonymous", body: createBody, status: http.StatusUnauthorized, code: "unauthenticated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/bookings", tt.actor, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Fatalf("error = %q", code)
			}
		})
	}
}

func TestMalformedIdentityHeaders(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewBufferString(createBody))
	req.Header.Set("X-Actor-ID", "abc")
	req.Header.Set("X-Actor-Role", "player")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCancelBookingWithoutBody(t *testing.T) {
	h := newTestServer(t)
	id := createBooking(t, h)
	path := "/api/v1/bookings/" + strconv.FormatInt(id, 10)

	if rec := do(t, h, http.MethodPost, path+"/cancel", other, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("other player cancel status = %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, path+"/cancel", player, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d body=%s", rec.Code, rec.Body.String())
	}
	var result booking.CancelResult
	decode(t, rec, &result)
	if !result.Success || result.RefundAmountCents != 0 || result.RefundStatus != models.RefundNone {
		t.Fatalf("result = %+v", result)
	}

	rec = do(t, h, http.MethodPost, path+"/cancel", player, `{"reason":"again"}`)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "state" {
		t.Fatalf("second cancel status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, path, player, "")
	var resp bookingResponse
	decode(t, rec, &resp)
	if resp.Status != models.BookingCancelled || resp.LiveStatus != status.Cancelled {
		t.Fatalf("response = %+v", resp)
	}
}

func TestUpdateBookingStatus(t *testing.T) {
	h := newTestServer(t)
	id := createBooking(t, h)
	path := "/api/v1/bookings/" + strconv.FormatInt(id, 10) + "/status"

	rec := do(t, h, http.MethodPatch, path, player, `{"status":"no_show"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("player no_show status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPatch, path, staff, `{"status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff complete status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp bookingResponse
	decode(t, rec, &resp)
	if resp.Status != models.BookingCompleted || resp.LiveStatus != status.Completed {
		t.Fatalf("response = %+v", resp)
	}

	rec = do(t, h, http.MethodPatch, path, staff, `{"status":"confirmed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("backward move status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPatch, path, staff, `{"status":"archived"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status = %d", rec.Code)
	}
}
