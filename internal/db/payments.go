package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type AuthorizationState string

const (
	AuthorizationReserved   AuthorizationState = "reserved"
	AuthorizationAuthorized AuthorizationState = "authorized"
	AuthorizationAttached   AuthorizationState = "attached"
	AuthorizationReversed   AuthorizationState = "reversed"
	AuthorizationFailed     AuthorizationState = "failed"
)

// PaymentAuthorization is one row of the authorization ledger that tracks a
// provider hold from reservation until it is attached to a booking or reversed.
type PaymentAuthorization struct {
	ID              string
	OrganizationID  int64
	AmountCents     int64
	Currency        string
	PaymentIntentID string
	State           AuthorizationState
	BookingID       *int64
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const authorizationColumns = `id, organization_id, amount_cents, currency, payment_intent_id,
	state, booking_id, last_error, created_at, updated_at`

func scanAuthorization(row rowScanner) (PaymentAuthorization, error) {
	var auth PaymentAuthorization
	var intentID sql.NullString
	var bookingID sql.NullInt64
	var state string
	err := row.Scan(
		&auth.ID,
		&auth.OrganizationID,
		&auth.AmountCents,
		&auth.Currency,
		&intentID,
		&state,
		&bookingID,
		&auth.LastError,
		&auth.CreatedAt,
		&auth.UpdatedAt,
	)
	if err != nil {
		return PaymentAuthorization{}, err
	}
	auth.PaymentIntentID = intentID.String
	auth.State = AuthorizationState(state)
	auth.BookingID = int64Ptr(bookingID)
	return auth, nil
}

func (q *Queries) CreatePaymentAuthorization(ctx context.Context, auth PaymentAuthorization) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payment_authorizations
			(id, organization_id, amount_cents, currency, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		auth.ID,
		auth.OrganizationID,
		auth.AmountCents,
		auth.Currency,
		string(AuthorizationReserved),
		auth.CreatedAt.UTC(),
		auth.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create payment authorization: %w", err)
	}
	return nil
}

func (q *Queries) GetPaymentAuthorization(ctx context.Context, id string) (PaymentAuthorization, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+authorizationColumns+` FROM payment_authorizations WHERE id = ?`, id)
	return scanAuthorization(row)
}

func (q *Queries) MarkAuthorizationAuthorized(ctx context.Context, id, paymentIntentID string, at time.Time) error {
	return q.setAuthorizationState(ctx, `
		UPDATE payment_authorizations
		SET state = 'authorized', payment_intent_id = ?, updated_at = ?
		WHERE id = ? AND state = 'reserved'`,
		paymentIntentID, at.UTC(), id,
	)
}

func (q *Queries) MarkAuthorizationAttached(ctx context.Context, id string, bookingID int64, at time.Time) error {
	return q.setAuthorizationState(ctx, `
		UPDATE payment_authorizations
		SET state = 'attached', booking_id = ?, updated_at = ?
		WHERE id = ? AND state = 'authorized'`,
		bookingID, at.UTC(), id,
	)
}

func (q *Queries) MarkAuthorizationReversed(ctx context.Context, id string, at time.Time) error {
	return q.setAuthorizationState(ctx, `
		UPDATE payment_authorizations
		SET state = 'reversed', last_error = '', updated_at = ?
		WHERE id = ? AND state IN ('reserved', 'authorized')`,
		at.UTC(), id,
	)
}

func (q *Queries) MarkAuthorizationFailed(ctx context.Context, id, lastError string, at time.Time) error {
	return q.setAuthorizationState(ctx, `
		UPDATE payment_authorizations
		SET state = 'failed', last_error = ?, updated_at = ?
		WHERE id = ? AND state = 'reserved'`,
		lastError, at.UTC(), id,
	)
}

// RecordAuthorizationError keeps the row in its current state and notes the
// latest reconciliation failure.
func (q *Queries) RecordAuthorizationError(ctx context.Context, id, lastError string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE payment_authorizations SET last_error = ?, updated_at = ? WHERE id = ?`,
		lastError, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("record authorization error: %w", err)
	}
	return nil
}

func (q *Queries) setAuthorizationState(ctx context.Context, query string, args ...any) error {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update payment authorization: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListOrphanedAuthorizations returns ledger rows created before the cutoff
// that never got attached to a booking: holds that reached the provider, and
// reservations whose provider outcome was never recorded.
func (q *Queries) ListOrphanedAuthorizations(ctx context.Context, createdBefore time.Time, limit int) ([]PaymentAuthorization, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+authorizationColumns+`
		FROM payment_authorizations
		WHERE state IN ('reserved', 'authorized') AND booking_id IS NULL AND created_at < ?
		ORDER BY created_at
		LIMIT ?`,
		createdBefore.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list orphaned authorizations: %w", err)
	}
	defer rows.Close()

	var auths []PaymentAuthorization
	for rows.Next() {
		auth, err := scanAuthorization(rows)
		if err != nil {
			return nil, err
		}
		auths = append(auths, auth)
	}
	return auths, rows.Err()
}
