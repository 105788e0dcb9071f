// cmd/server/server.go
package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api"
	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/bookings"
	"github.com/codr1/courtbook/internal/api/courts"
	"github.com/codr1/courtbook/internal/api/matches"
	"github.com/codr1/courtbook/internal/api/overrides"
	"github.com/codr1/courtbook/internal/api/slots"
	"github.com/codr1/courtbook/internal/ratelimit"
)

const healthTimeout = 2 * time.Second

func newServer(a *app) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain; the first entry runs innermost.
	var middleware []api.Middleware
	if rl := a.cfg.RateLimit; rl.Enabled {
		limiter := ratelimit.New(&ratelimit.Config{
			Window:            rl.Window,
			ActorMaxPerWindow: rl.ActorMaxPerWindow,
			IPMaxPerWindow:    rl.IPMaxPerWindow,
			Clock:             a.clock,
		})
		a.closers = append(a.closers, func() error {
			limiter.Close()
			return nil
		})
		middleware = append(middleware, api.WithRateLimit(limiter, rl.TrustProxy))
	}
	middleware = append(middleware,
		api.WithActor,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)
	handler := api.ChainMiddleware(router, middleware...)

	initHandlers(a)
	registerRoutes(router, a)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(a.cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func initHandlers(a *app) {
	// Typed nil caches must not reach the handler interfaces.
	var overrideCache overrides.Invalidator
	var courtCache courts.CourtInvalidator
	if a.cache != nil {
		overrideCache, courtCache = a.cache, a.cache
	}

	slots.InitHandlers(a.resolver, a.clock)
	bookings.InitHandlers(a.manager, a.clock)
	overrides.InitHandlers(a.db.Queries, overrideCache, a.clock)
	courts.InitHandlers(a.db.Queries, courtCache)
	matches.InitHandlers(a.db.Queries, a.clock)
}

func registerRoutes(mux *http.ServeMux, a *app) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
			_ = apiutil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		_ = apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Court routes
	mux.HandleFunc("GET /api/v1/courts/{id}/slots", slots.HandleListSlots)
	mux.HandleFunc("GET /api/v1/courts/{id}/template", courts.HandleListTemplates)
	mux.HandleFunc("PUT /api/v1/courts/{id}/template", courts.HandleUpsertTemplate)
	mux.HandleFunc("DELETE /api/v1/courts/{id}/template/{day}", courts.HandleDeleteTemplate)

	// Booking routes
	mux.HandleFunc("POST /api/v1/bookings", bookings.HandleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}", bookings.HandleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", bookings.HandleCancelBooking)
	mux.HandleFunc("PATCH /api/v1/bookings/{id}/status", bookings.HandleUpdateBookingStatus)

	// Availability override routes
	mux.HandleFunc("POST /api/v1/overrides", overrides.HandleCreateOverride)
	mux.HandleFunc("GET /api/v1/overrides", overrides.HandleListOverrides)
	mux.HandleFunc("DELETE /api/v1/overrides/{id}", overrides.HandleDeleteOverride)

	// Match routes
	mux.HandleFunc("POST /api/v1/matches", matches.HandleCreateMatch)
	mux.HandleFunc("GET /api/v1/matches", matches.HandleListMatches)
	mux.HandleFunc("GET /api/v1/matches/{id}", matches.HandleGetMatch)
	mux.HandleFunc("POST /api/v1/matches/{id}/result", matches.HandleRecordResult)
}
