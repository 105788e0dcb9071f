package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/ratelimit"
)

func TestWithRequestIDKeepsIncoming(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-123" || rec.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("request id = %q, header %q", seen, rec.Header().Get("X-Request-ID"))
	}
}

func TestWithRequestIDReplacesOversized(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen == "" || len(seen) > 128 {
		t.Fatalf("request id = %q", seen)
	}
}

func TestWithRecovery(t *testing.T) {
	h := WithRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"internal"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestWithActor(t *testing.T) {
	var gotID int64
	var present bool
	h := WithActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := authz.ActorFromContext(r.Context())
		gotID, present = actor.ID, ok
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(authz.ActorIDHeader, "42")
	req.Header.Set(authz.ActorRoleHeader, "player")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !present || gotID != 42 {
		t.Fatalf("actor id = %d present=%v", gotID, present)
	}

	present = false
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if present {
		t.Fatalf("anonymous request carried an actor")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(authz.ActorIDHeader, "42")
	req.Header.Set(authz.ActorRoleHeader, "coach")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("malformed identity status = %d", rec.Code)
	}
}

func TestWithRateLimitSkipsReads(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(&ratelimit.Config{
		Window:            time.Minute,
		ActorMaxPerWindow: 1,
		IPMaxPerWindow:    1,
		Clock:             localtime.FixedClock(now),
	})
	defer limiter.Close()

	h := ChainMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), WithRateLimit(limiter, false), WithActor)

	send := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		req.Header.Set(authz.ActorIDHeader, "7")
		req.Header.Set(authz.ActorRoleHeader, "player")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(http.MethodPost); rec.Code != http.StatusNoContent {
		t.Fatalf("first write status = %d", rec.Code)
	}
	rec := send(http.MethodPost)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second write status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	for i := 0; i < 3; i++ {
		if rec := send(http.MethodGet); rec.Code != http.StatusNoContent {
			t.Fatalf("read %d status = %d", i, rec.Code)
		}
	}
}
