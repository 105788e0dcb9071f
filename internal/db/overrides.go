package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codr1/courtbook/internal/models"
)

const overrideColumns = `id, facility_id, court_id, override_date, start_time, end_time,
	slot_duration_minutes, price_cents, reason, is_available, created_by, created_at`

func scanOverride(row rowScanner) (models.AvailabilityOverride, error) {
	var override models.AvailabilityOverride
	var courtID, price sql.NullInt64
	err := row.Scan(
		&override.ID,
		&override.FacilityID,
		&courtID,
		&override.Date,
		&override.StartTime,
		&override.EndTime,
		&override.SlotDurationMinutes,
		&price,
		&override.Reason,
		&override.IsAvailable,
		&override.CreatedBy,
		&override.CreatedAt,
	)
	if err != nil {
		return models.AvailabilityOverride{}, err
	}
	override.CourtID = int64Ptr(courtID)
	override.PriceCents = int64Ptr(price)
	return override, nil
}

func collectOverrides(rows *sql.Rows) ([]models.AvailabilityOverride, error) {
	defer rows.Close()
	var overrides []models.AvailabilityOverride
	for rows.Next() {
		override, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, override)
	}
	return overrides, rows.Err()
}

// ListOverridesForDate returns the available overrides that apply to a court on
// a date: its own rows plus facility-wide rows. Facility-wide rows come first.
func (q *Queries) ListOverridesForDate(ctx context.Context, facilityID, courtID int64, date string) ([]models.AvailabilityOverride, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+overrideColumns+`
		FROM availability_overrides
		WHERE override_date = ?
		  AND is_available = 1
		  AND (court_id = ? OR (court_id IS NULL AND facility_id = ?))
		ORDER BY court_id IS NOT NULL, start_time, id`,
		date, courtID, facilityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list overrides for date: %w", err)
	}
	return collectOverrides(rows)
}

// ListFacilityOverrides returns every override of a facility, optionally
// restricted to one date.
func (q *Queries) ListFacilityOverrides(ctx context.Context, facilityID int64, date string) ([]models.AvailabilityOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM availability_overrides WHERE facility_id = ?`
	args := []any{facilityID}
	if date != "" {
		query += ` AND override_date = ?`
		args = append(args, date)
	}
	query += ` ORDER BY override_date, start_time, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list facility overrides: %w", err)
	}
	return collectOverrides(rows)
}

func (q *Queries) GetOverride(ctx context.Context, id int64) (models.AvailabilityOverride, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+overrideColumns+` FROM availability_overrides WHERE id = ?`, id)
	return scanOverride(row)
}

func (q *Queries) CreateOverride(ctx context.Context, override models.AvailabilityOverride) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO availability_overrides
			(facility_id, court_id, override_date, start_time, end_time,
			 slot_duration_minutes, price_cents, reason, is_available, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		override.FacilityID,
		nullInt64(override.CourtID),
		override.Date,
		override.StartTime,
		override.EndTime,
		override.SlotDurationMinutes,
		nullInt64(override.PriceCents),
		override.Reason,
		override.IsAvailable,
		override.CreatedBy,
		override.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("create override: %w", err)
	}
	return result.LastInsertId()
}

// DeleteOverride returns sql.ErrNoRows when nothing was removed.
func (q *Queries) DeleteOverride(ctx context.Context, id int64) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM availability_overrides WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
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
