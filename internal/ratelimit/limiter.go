// Package ratelimit throttles booking writes per actor and per client IP.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/localtime"
)

type Config struct {
	// Window is the fixed window both limits count over (default: 1m).
	Window time.Duration
	// ActorMaxPerWindow caps writes by one actor (default: 20).
	ActorMaxPerWindow int
	// IPMaxPerWindow caps writes from one client IP (default: 60).
	IPMaxPerWindow int

	// Clock for testing (nil uses real time)
	Clock localtime.Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Window:            time.Minute,
		ActorMaxPerWindow: 20,
		IPMaxPerWindow:    60,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// entry counts requests in the window that opened at firstAt.
type entry struct {
	count   int
	firstAt time.Time
	lastAt  time.Time
}

type Limiter struct {
	config  Config
	clock   localtime.Clock
	mu      sync.Mutex
	byActor map[int64]*entry
	byIP    map[string]*entry

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a limiter. Zero fields of cfg take their defaults.
func New(cfg *Config) *Limiter {
	defaults := DefaultConfig()
	c := *defaults
	if cfg != nil {
		c = *cfg
		if c.Window <= 0 {
			c.Window = defaults.Window
		}
		if c.ActorMaxPerWindow <= 0 {
			c.ActorMaxPerWindow = defaults.ActorMaxPerWindow
		}
		if c.IPMaxPerWindow <= 0 {
			c.IPMaxPerWindow = defaults.IPMaxPerWindow
		}
	}
	clock := c.Clock
	if clock == nil {
		clock = localtime.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        c,
		clock:         clock,
		byActor:       make(map[int64]*entry),
		byIP:          make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Allow checks and records one write. actorID 0 means an anonymous caller and
// is only limited by IP. A rejected write is not counted.
func (l *Limiter) Allow(actorID int64, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if actorID > 0 {
		if res := l.check(l.byActor[actorID], now, l.config.ActorMaxPerWindow, "actor_limit"); !res.Allowed {
			return res
		}
	}
	if res := l.check(l.byIP[ip], now, l.config.IPMaxPerWindow, "ip_limit"); !res.Allowed {
		return res
	}

	if actorID > 0 {
		l.byActor[actorID] = l.record(l.byActor[actorID], now)
	}
	l.byIP[ip] = l.record(l.byIP[ip], now)
	return LimitResult{Allowed: true}
}

func (l *Limiter) check(e *entry, now time.Time, max int, reason string) LimitResult {
	if e == nil {
		return LimitResult{Allowed: true}
	}
	elapsed := now.Sub(e.firstAt)
	if elapsed < l.config.Window && e.count >= max {
		return LimitResult{Allowed: false, RetryAfter: l.config.Window - elapsed, Reason: reason}
	}
	return LimitResult{Allowed: true}
}

func (l *Limiter) record(e *entry, now time.Time) *entry {
	if e == nil || now.Sub(e.firstAt) >= l.config.Window {
		return &entry{count: 1, firstAt: now, lastAt: now}
	}
	e.count++
	e.lastAt = now
	return e
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.byActor {
		if now.Sub(e.lastAt) > l.config.Window {
			delete(l.byActor, k)
		}
	}
	for k, e := range l.byIP {
		if now.Sub(e.lastAt) > l.config.Window {
			delete(l.byIP, k)
		}
	}
}

// LogRateLimitExceeded logs a rejected write.
func LogRateLimitExceeded(ctx context.Context, actorID int64, ip string, res LimitResult) {
	actor := "anonymous"
	if actorID > 0 {
		actor = strconv.FormatInt(actorID, 10)
	}
	log.Ctx(ctx).Warn().
		Str("event", "rate_limit_exceeded").
		Str("actor", actor).
		Str("ip", ip).
		Str("reason", res.Reason).
		Dur("retry_after", res.RetryAfter).
		Msg("Booking write rate limit exceeded")
}
