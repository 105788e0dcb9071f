package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BookingEvent is an outbox row written in the same transaction as the
// booking change it describes.
type BookingEvent struct {
	ID           string
	BookingID    int64
	EventType    string
	Payload      []byte
	CreatedAt    time.Time
	DispatchedAt *time.Time
	Attempts     int64
	LastError    string
}

func (q *Queries) InsertBookingEvent(ctx context.Context, event BookingEvent) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO booking_events (id, booking_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.BookingID,
		event.EventType,
		string(event.Payload),
		event.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}
	return nil
}

// ListPendingBookingEvents returns undispatched events oldest first, skipping
// rows that have failed maxAttempts times.
func (q *Queries) ListPendingBookingEvents(ctx context.Context, maxAttempts int64, limit int) ([]BookingEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, booking_id, event_type, payload, created_at, dispatched_at, attempts, last_error
		FROM booking_events
		WHERE dispatched_at IS NULL AND attempts < ?
		ORDER BY created_at, id
		LIMIT ?`,
		maxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending booking events: %w", err)
	}
	defer rows.Close()

	var events []BookingEvent
	for rows.Next() {
		var event BookingEvent
		var payload string
		var dispatchedAt sql.NullTime
		if err := rows.Scan(
			&event.ID,
			&event.BookingID,
			&event.EventType,
			&payload,
			&event.CreatedAt,
			&dispatchedAt,
			&event.Attempts,
			&event.LastError,
		); err != nil {
			return nil, err
		}
		event.Payload = []byte(payload)
		event.DispatchedAt = timePtr(dispatchedAt)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (q *Queries) MarkBookingEventDispatched(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE booking_events
		SET dispatched_at = ?, attempts = attempts + 1, last_error = ''
		WHERE id = ?`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark booking event dispatched: %w", err)
	}
	return nil
}

func (q *Queries) MarkBookingEventFailed(ctx context.Context, id, lastError string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE booking_events
		SET attempts = attempts + 1, last_error = ?
		WHERE id = ?`,
		lastError, id,
	)
	if err != nil {
		return fmt.Errorf("mark booking event failed: %w", err)
	}
	return nil
}

// ListDeliveredSinks returns the sinks that already accepted an event.
func (q *Queries) ListDeliveredSinks(ctx context.Context, eventID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT sink FROM booking_event_deliveries WHERE event_id = ? ORDER BY sink`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list delivered sinks: %w", err)
	}
	defer rows.Close()

	var sinks []string
	for rows.Next() {
		var sink string
		if err := rows.Scan(&sink); err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, rows.Err()
}

func (q *Queries) MarkSinkDelivered(ctx context.Context, eventID, sink string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO booking_event_deliveries (event_id, sink, delivered_at)
		VALUES (?, ?, ?)
		ON CONFLICT (event_id, sink) DO NOTHING`,
		eventID, sink, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark sink delivered: %w", err)
	}
	return nil
}
