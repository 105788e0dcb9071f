package availability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
)

var ErrCourtNotFound = errors.New("court not found")

// Store is the read side the resolver needs. *db.Queries satisfies it, bound
// either to the pool or to a transaction.
type Store interface {
	GetCourt(ctx context.Context, id int64) (models.Court, error)
	GetOrganization(ctx context.Context, id int64) (models.Organization, error)
	GetCourtTemplate(ctx context.Context, courtID int64, dayOfWeek int64) (models.WeeklyTemplate, error)
	ListOverridesForDate(ctx context.Context, facilityID, courtID int64, date string) ([]models.AvailabilityOverride, error)
	ListActiveBookingsForCourtDate(ctx context.Context, courtID int64, date string) ([]models.Booking, error)
}

// Cache holds merged slots per court and date, before the clock is applied.
type Cache interface {
	Get(ctx context.Context, courtID int64, date string) ([]models.Slot, bool, error)
	Set(ctx context.Context, courtID int64, date string, slots []models.Slot) error
}

type Resolver struct {
	store Store
	cache Cache
}

// NewResolver returns a resolver over store. cache may be nil.
func NewResolver(store Store, cache Cache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// Uncached returns a resolver reading straight from store, for re-validation
// inside a write transaction.
func Uncached(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveSlots returns the slots of courtID on date that start after now,
// ordered by start time.
func (r *Resolver) ResolveSlots(ctx context.Context, courtID int64, date string, now time.Time) ([]models.Slot, error) {
	if _, err := localtime.ParseDate(date); err != nil {
		return nil, err
	}

	court, err := r.store.GetCourt(ctx, courtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourtNotFound
		}
		return nil, fmt.Errorf("load court: %w", err)
	}

	slots, err := r.mergedSlots(ctx, court, date, now)
	if err != nil {
		return nil, err
	}
	return Upcoming(slots, date, court.Timezone, now)
}

func (r *Resolver) mergedSlots(ctx context.Context, court models.Court, date string, now time.Time) ([]models.Slot, error) {
	logger := log.Ctx(ctx)

	if r.cache != nil {
		slots, ok, err := r.cache.Get(ctx, court.ID, date)
		if err != nil {
			logger.Warn().Err(err).Int64("court_id", court.ID).Str("date", date).Msg("Slot cache read failed")
		} else if ok {
			return slots, nil
		}
	}

	in, err := r.load(ctx, court, date, now)
	if err != nil {
		return nil, err
	}
	slots, err := Merge(in)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, court.ID, date, slots); err != nil {
			logger.Warn().Err(err).Int64("court_id", court.ID).Str("date", date).Msg("Slot cache write failed")
		}
	}
	return slots, nil
}

func (r *Resolver) load(ctx context.Context, court models.Court, date string, now time.Time) (Input, error) {
	in := Input{Date: date, Court: court}

	org, err := r.store.GetOrganization(ctx, court.OrganizationID)
	if err != nil {
		return Input{}, fmt.Errorf("load organization: %w", err)
	}
	in.Currency = org.Currency

	weekday, err := localtime.Weekday(date)
	if err != nil {
		return Input{}, err
	}
	tmpl, err := r.store.GetCourtTemplate(ctx, court.ID, int64(weekday))
	switch {
	case err == nil:
		in.Template = &tmpl
	case errors.Is(err, sql.ErrNoRows):
	default:
		return Input{}, fmt.Errorf("load court template: %w", err)
	}

	// Overrides only apply from today onward in the facility's timezone.
	today, err := localtime.Today(now, court.Timezone)
	if err != nil {
		return Input{}, err
	}
	if date >= today {
		in.Overrides, err = r.store.ListOverridesForDate(ctx, court.FacilityID, court.ID, date)
		if err != nil {
			return Input{}, fmt.Errorf("load overrides: %w", err)
		}
	}

	day, err := localtime.ParseDate(date)
	if err != nil {
		return Input{}, err
	}
	for _, d := range []string{
		day.AddDate(0, 0, -1).Format(localtime.DateLayout),
		date,
		day.AddDate(0, 0, 1).Format(localtime.DateLayout),
	} {
		bookings, err := r.store.ListActiveBookingsForCourtDate(ctx, court.ID, d)
		if err != nil {
			return Input{}, fmt.Errorf("load bookings: %w", err)
		}
		in.Bookings = append(in.Bookings, bookings...)
	}
	return in, nil
}

// Contains reports whether slots holds the window start-end, comparing
// normalised clock strings.
func Contains(slots []models.Slot, start, end string) (models.Slot, bool) {
	start, err := localtime.NormalizeClock(start)
	if err != nil {
		return models.Slot{}, false
	}
	end, err = localtime.NormalizeClock(end)
	if err != nil {
		return models.Slot{}, false
	}
	for _, slot := range slots {
		if slot.StartTime == start && slot.EndTime == end {
			return slot, true
		}
	}
	return models.Slot{}, false
}
