// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/notify"
	"github.com/codr1/courtbook/internal/payments"
	"github.com/codr1/courtbook/internal/scheduler"
	"github.com/codr1/courtbook/internal/slotcache"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = log.With().Str("app", cfg.App.Name).Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// app holds the long-lived dependencies shared by the HTTP handlers and the
// scheduled jobs.
type app struct {
	cfg        *config.Config
	db         *db.DB
	clock      localtime.Clock
	resolver   *availability.Resolver
	manager    *booking.Manager
	cache      *slotcache.Cache
	sweeper    *payments.Sweeper
	dispatcher *notify.Dispatcher
	closers    []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, db: database, clock: localtime.SystemClock{}}
	a.closers = append(a.closers, database.Close)

	var bookingCache booking.Invalidator
	var resolverCache availability.Cache
	if cfg.Redis.Enabled {
		rdb, err := slotcache.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.cache = slotcache.New(rdb, cfg.Redis.SlotTTL)
		bookingCache, resolverCache = a.cache, a.cache
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Slot cache enabled")
	}

	var provider payments.Provider = payments.Disabled{}
	if cfg.Payments.Provider == "stripe" {
		provider = payments.NewStripe(cfg.Payments.SecretKey, nil)
		log.Info().Msg("Stripe payments enabled")
	}

	a.resolver = availability.NewResolver(database.Queries, resolverCache)
	a.manager = booking.NewManager(database, provider, booking.Config{
		PlatformFeePercent: cfg.Payments.PlatformFeePercent,
		PhoneRegion:        cfg.App.PhoneRegion,
		Clock:              a.clock,
		Cache:              bookingCache,
	})
	a.sweeper = payments.NewSweeper(database.Queries, provider, cfg.Scheduler.OrphanMinAge)

	var sinks []notify.Sink
	if cfg.AMQP.Enabled {
		publisher, err := notify.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		a.closers = append(a.closers, publisher.Close)
		sinks = append(sinks, publisher)
		log.Info().Str("exchange", cfg.AMQP.Exchange).Msg("Booking events publishing to AMQP")
	}
	if cfg.Email.Enabled {
		ses, err := notify.NewSESClient(ctx, cfg.Email)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create ses client: %w", err)
		}
		sinks = append(sinks, notify.NewEmailSink(ses, cfg.App.Locale))
		log.Info().Str("region", cfg.Email.Region).Msg("Booking emails enabled")
	}
	if len(sinks) > 0 {
		a.dispatcher = notify.NewDispatcher(database.Queries, sinks, cfg.Scheduler.OutboxBatchSize, cfg.Scheduler.OutboxMaxAttempts)
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Error closing resource")
		}
	}
	a.closers = nil
}

func main() {
	configPath := getEnv("CONFIG_PATH", "config/app.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	setupLogger(cfg)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.close()

	if err := scheduler.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scheduler")
	}
	// A nil *notify.Dispatcher must not reach the interface.
	var dispatcher scheduler.Dispatcher
	if a.dispatcher != nil {
		dispatcher = a.dispatcher
	}
	if err := scheduler.RegisterJobs(cfg.Scheduler, a.sweeper, dispatcher, a.clock); err != nil {
		log.Fatal().Err(err).Msg("Failed to register scheduled jobs")
	}
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	// Create server instance
	server := newServer(a)

	g, ctx := errgroup.WithContext(ctx)

	// Run server
	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("environment", cfg.App.Environment).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := scheduler.Stop(); err != nil {
			log.Warn().Err(err).Msg("Scheduler shutdown error")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		a.close()
		os.Exit(1)
	}
}
