package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

const bookingColumns = `id, organization_id, facility_id, court_id, player_id,
	guest_name, guest_email, guest_phone, contact_email,
	booking_date, start_time, end_time, status, price_cents, currency,
	requires_approval, approved_by, approved_at, payment_intent_id,
	cancelled_at, cancelled_by, cancellation_reason, refund_amount_cents, refund_status,
	notes, created_by, created_at, updated_at`

func scanBooking(row rowScanner) (models.Booking, error) {
	var b models.Booking
	var (
		playerID, approvedBy, cancelledBy, refundAmount sql.NullInt64
		guestName, guestEmail, guestPhone, intentID     sql.NullString
		approvedAt, cancelledAt                         sql.NullTime
		status, refundStatus                            string
	)
	err := row.Scan(
		&b.ID,
		&b.OrganizationID,
		&b.FacilityID,
		&b.CourtID,
		&playerID,
		&guestName,
		&guestEmail,
		&guestPhone,
		&b.ContactEmail,
		&b.Date,
		&b.StartTime,
		&b.EndTime,
		&status,
		&b.PriceCents,
		&b.Currency,
		&b.RequiresApproval,
		&approvedBy,
		&approvedAt,
		&intentID,
		&cancelledAt,
		&cancelledBy,
		&b.CancellationReason,
		&refundAmount,
		&refundStatus,
		&b.Notes,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return models.Booking{}, err
	}

	b.Status = models.BookingStatus(status)
	b.RefundStatus = models.RefundStatus(refundStatus)
	b.PlayerID = int64Ptr(playerID)
	b.ApprovedBy = int64Ptr(approvedBy)
	b.ApprovedAt = timePtr(approvedAt)
	b.PaymentIntentID = intentID.String
	b.CancelledAt = timePtr(cancelledAt)
	b.CancelledBy = int64Ptr(cancelledBy)
	b.RefundAmountCents = int64Ptr(refundAmount)

	if guestName.Valid && strings.TrimSpace(guestName.String) != "" {
		b.Guest = &models.GuestContact{
			Name:  guestName.String,
			Email: guestEmail.String,
			Phone: guestPhone.String,
		}
	} else if b.PlayerID == nil {
		// Rows written before guest columns existed keep the contact in notes.
		if guest, rest := models.ParseLegacyGuestNotes(b.Notes); guest != nil {
			b.Guest = guest
			b.Notes = rest
		}
	}
	return b, nil
}

func (q *Queries) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return scanBooking(row)
}

// ListActiveBookingsForCourtDate returns the court's non-cancelled bookings on a date.
func (q *Queries) ListActiveBookingsForCourtDate(ctx context.Context, courtID int64, date string) ([]models.Booking, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE court_id = ? AND booking_date = ? AND status <> 'cancelled'
		ORDER BY start_time`,
		courtID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CreateBooking inserts a booking row. A concurrent live booking for the same
// court window surfaces as a unique violation, see IsUniqueViolation.
func (q *Queries) CreateBooking(ctx context.Context, b models.Booking) (int64, error) {
	var guestName, guestEmail, guestPhone sql.NullString
	if b.Guest != nil {
		guestName = nullString(b.Guest.Name)
		guestEmail = nullString(b.Guest.Email)
		guestPhone = nullString(b.Guest.Phone)
	}

	result, err := q.db.ExecContext(ctx, `
		INSERT INTO bookings (
			organization_id, facility_id, court_id, player_id,
			guest_name, guest_email, guest_phone, contact_email,
			booking_date, start_time, end_time, status, price_cents, currency,
			requires_approval, approved_by, approved_at, payment_intent_id,
			notes, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.OrganizationID,
		b.FacilityID,
		b.CourtID,
		nullInt64(b.PlayerID),
		guestName,
		guestEmail,
		guestPhone,
		b.ContactEmail,
		b.Date,
		b.StartTime,
		b.EndTime,
		string(b.Status),
		b.PriceCents,
		b.Currency,
		b.RequiresApproval,
		nullInt64(b.ApprovedBy),
		nullTime(b.ApprovedAt),
		nullString(b.PaymentIntentID),
		b.Notes,
		b.CreatedBy,
		b.CreatedAt.UTC(),
		b.UpdatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("create booking: %w", err)
	}
	return result.LastInsertId()
}

type CancelBookingParams struct {
	ID                int64
	CancelledAt       time.Time
	CancelledBy       int64
	Reason            string
	RefundAmountCents int64
	RefundStatus      models.RefundStatus
}

// CancelBooking moves a non-terminal booking to cancelled. It reports false
// when the booking was already terminal, so a second writer fails closed.
func (q *Queries) CancelBooking(ctx context.Context, arg CancelBookingParams) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = ?,
			cancelled_by = ?,
			cancellation_reason = ?,
			refund_amount_cents = ?,
			refund_status = ?,
			updated_at = ?
		WHERE id = ?
		  AND status NOT IN ('cancelled', 'completed', 'no_show')`,
		arg.CancelledAt.UTC(),
		arg.CancelledBy,
		arg.Reason,
		arg.RefundAmountCents,
		string(arg.RefundStatus),
		arg.CancelledAt.UTC(),
		arg.ID,
	)
	if err != nil {
		return false, fmt.Errorf("cancel booking: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

type UpdateBookingStatusParams struct {
	ID         int64
	From       models.BookingStatus
	To         models.BookingStatus
	ApprovedBy *int64
	ApprovedAt *time.Time
	UpdatedAt  time.Time
}

// UpdateBookingStatus compares and sets the status column. It reports false
// when the stored status no longer matches From.
func (q *Queries) UpdateBookingStatus(ctx context.Context, arg UpdateBookingStatusParams) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?,
			approved_by = COALESCE(?, approved_by),
			approved_at = COALESCE(?, approved_at),
			updated_at = ?
		WHERE id = ? AND status = ?`,
		string(arg.To),
		nullInt64(arg.ApprovedBy),
		nullTime(arg.ApprovedAt),
		arg.UpdatedAt.UTC(),
		arg.ID,
		string(arg.From),
	)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
