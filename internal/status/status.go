// Package status derives the live lifecycle state of a booking or match from
// its timestamps. Stored status columns are never trusted for this; a match
// that ended an hour ago is completed whether or not anyone refreshed a row.
package status

import (
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
)

type Status string

const (
	Scheduled  Status = "scheduled"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Cancelled  Status = "cancelled"
)

// Input carries the attributes status derivation depends on.
type Input struct {
	CancelledAt *time.Time
	Date        string
	StartTime   string
	EndTime     string
	Timezone    string
	Result      *string
}

// Derive evaluates, in order: a cancellation wins over everything; a recorded
// result or a passed end instant means completed; a passed start instant means
// in progress; otherwise scheduled. An end time earlier than the start time
// ends on the following day.
func Derive(in Input, now time.Time) (Status, error) {
	if in.CancelledAt != nil {
		return Cancelled, nil
	}
	if in.Result != nil && strings.TrimSpace(*in.Result) != "" {
		return Completed, nil
	}

	end, err := localtime.EndInstant(in.Date, in.StartTime, in.EndTime, in.Timezone)
	if err != nil {
		return "", err
	}
	if localtime.SignedDifferenceFromNow(end, now) < 0 {
		return Completed, nil
	}

	start, err := localtime.CreateInstant(in.Date, in.StartTime, in.Timezone)
	if err != nil {
		return "", err
	}
	if localtime.SignedDifferenceFromNow(start, now) < 0 {
		return InProgress, nil
	}
	return Scheduled, nil
}

// ForMatch derives a match's status.
func ForMatch(m models.Match, now time.Time) (Status, error) {
	return Derive(Input{
		CancelledAt: m.CancelledAt,
		Date:        m.MatchDate,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		Timezone:    m.Timezone,
		Result:      m.Result,
	}, now)
}

// ForBooking derives a booking's status in the court's timezone. A booking
// marked completed or no_show counts as having a result.
func ForBooking(b models.Booking, timezone string, now time.Time) (Status, error) {
	in := Input{
		CancelledAt: b.CancelledAt,
		Date:        b.Date,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Timezone:    timezone,
	}
	if in.CancelledAt == nil && b.Status == models.BookingCancelled {
		cancelledAt := b.UpdatedAt
		in.CancelledAt = &cancelledAt
	}
	if b.Status == models.BookingCompleted || b.Status == models.BookingNoShow {
		result := string(b.Status)
		in.Result = &result
	}
	return Derive(in, now)
}
