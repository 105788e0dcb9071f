// Package localtime converts facility-local dates and wall-clock times into
// absolute instants. All slot and status logic is relative to the facility's
// IANA timezone, never to the server clock.
package localtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DateLayout   = "2006-01-02"
	MinutesInDay = 24 * 60
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidClock    = errors.New("invalid time of day")
	ErrInvalidTimezone = errors.New("invalid timezone")
)

var (
	locationsMu sync.RWMutex
	locations   = map[string]*time.Location{}
)

// LoadLocation resolves an IANA timezone name, caching the result. An empty
// name resolves to UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}

	locationsMu.RLock()
	loc, ok := locations[name]
	locationsMu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidTimezone, name, err)
	}

	locationsMu.Lock()
	locations[name] = loc
	locationsMu.Unlock()
	return loc, nil
}

// ParseDate parses a "YYYY-MM-DD" calendar date. The result is midnight UTC and
// only its year, month and day are meaningful.
func ParseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidDate, raw)
	}
	return parsed, nil
}

// ParseClock parses "H:MM", "HH:MM" or "HH:MM:SS" and returns the hour and minute.
// Seconds are accepted but must be zero-padded and are discarded.
func ParseClock(raw string) (int, int, error) {
	value := strings.TrimSpace(raw)
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("%w %q", ErrInvalidClock, raw)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) > 2 || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w %q", ErrInvalidClock, raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w %q", ErrInvalidClock, raw)
	}
	if len(parts) == 3 {
		second, err := strconv.Atoi(parts[2])
		if err != nil || len(parts[2]) != 2 || second < 0 || second > 59 {
			return 0, 0, fmt.Errorf("%w %q", ErrInvalidClock, raw)
		}
	}
	return hour, minute, nil
}

// NormalizeClock returns the canonical "HH:MM" form of a time of day, so
// "9:00" and "09:00:00" compare equal.
func NormalizeClock(raw string) (string, error) {
	hour, minute, err := ParseClock(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// MinuteOfDay returns minutes since midnight for a time-of-day string.
func MinuteOfDay(raw string) (int, error) {
	hour, minute, err := ParseClock(raw)
	if err != nil {
		return 0, err
	}
	return hour*60 + minute, nil
}

// ClockFromMinutes formats minutes since midnight as "HH:MM". Values at or past
// midnight wrap onto the next day.
func ClockFromMinutes(minutes int) string {
	minutes %= MinutesInDay
	if minutes < 0 {
		minutes += MinutesInDay
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// CreateInstant returns the absolute instant denoted by a calendar date, a
// wall-clock time and an IANA timezone. Wall-clock times that fall into a DST
// gap are normalised forward by the gap length, as time.Date does.
func CreateInstant(date, clock, timezone string) (time.Time, error) {
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}

// EndInstant returns the instant a window ends. When the end time of day is
// earlier than the start, the window spans midnight and ends on the following
// calendar date. Equal start and end is a zero-length window, not a rollover.
func EndInstant(date, startClock, endClock, timezone string) (time.Time, error) {
	startMinute, err := MinuteOfDay(startClock)
	if err != nil {
		return time.Time{}, err
	}
	endMinute, err := MinuteOfDay(endClock)
	if err != nil {
		return time.Time{}, err
	}

	if endMinute >= startMinute {
		return CreateInstant(date, endClock, timezone)
	}

	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return CreateInstant(day.AddDate(0, 0, 1).Format(DateLayout), endClock, timezone)
}

// SignedDifferenceFromNow is positive when instant lies in the future relative
// to now and negative when it has passed.
func SignedDifferenceFromNow(instant, now time.Time) time.Duration {
	return instant.Sub(now)
}

// Today returns the calendar date of now in the given timezone.
func Today(now time.Time, timezone string) (string, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return "", err
	}
	return now.In(loc).Format(DateLayout), nil
}

// Weekday returns the day of week for a "YYYY-MM-DD" date.
func Weekday(date string) (time.Weekday, error) {
	day, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return day.Weekday(), nil
}
