package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codr1/courtbook/internal/models"
)

func (q *Queries) GetOrganization(ctx context.Context, id int64) (models.Organization, error) {
	var org models.Organization
	var accountID sql.NullString
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, requires_approval, payment_account_id, currency
		FROM organizations WHERE id = ?`, id,
	).Scan(&org.ID, &org.Name, &org.RequiresApproval, &accountID, &org.Currency)
	if err != nil {
		return models.Organization{}, err
	}
	org.PaymentAccountID = accountID.String
	return org, nil
}

func (q *Queries) GetFacility(ctx context.Context, id int64) (models.Facility, error) {
	var facility models.Facility
	err := q.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, timezone
		FROM facilities WHERE id = ?`, id,
	).Scan(&facility.ID, &facility.OrganizationID, &facility.Name, &facility.Timezone)
	return facility, err
}

// GetCourt loads a court together with its facility's organization and timezone.
func (q *Queries) GetCourt(ctx context.Context, id int64) (models.Court, error) {
	var court models.Court
	err := q.db.QueryRowContext(ctx, `
		SELECT c.id, c.facility_id, f.organization_id, c.name, f.timezone,
		       c.slot_duration_minutes, c.default_price_cents, c.is_active
		FROM courts c
		JOIN facilities f ON f.id = c.facility_id
		WHERE c.id = ?`, id,
	).Scan(
		&court.ID,
		&court.FacilityID,
		&court.OrganizationID,
		&court.Name,
		&court.Timezone,
		&court.SlotDurationMinutes,
		&court.DefaultPriceCents,
		&court.IsActive,
	)
	return court, err
}

// ListCourtIDsForFacility returns every court of the facility, active or not.
func (q *Queries) ListCourtIDsForFacility(ctx context.Context, facilityID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM courts WHERE facility_id = ? ORDER BY id`, facilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCourtTemplate returns sql.ErrNoRows when the court has no window for the weekday.
func (q *Queries) GetCourtTemplate(ctx context.Context, courtID int64, dayOfWeek int64) (models.WeeklyTemplate, error) {
	var tmpl models.WeeklyTemplate
	var slotDuration, price sql.NullInt64
	err := q.db.QueryRowContext(ctx, `
		SELECT court_id, day_of_week, open_time, close_time, slot_duration_minutes, price_cents
		FROM court_weekly_availability
		WHERE court_id = ? AND day_of_week = ?`, courtID, dayOfWeek,
	).Scan(&tmpl.CourtID, &tmpl.DayOfWeek, &tmpl.OpenTime, &tmpl.CloseTime, &slotDuration, &price)
	if err != nil {
		return models.WeeklyTemplate{}, err
	}
	tmpl.SlotDurationMinutes = int64Ptr(slotDuration)
	tmpl.PriceCents = int64Ptr(price)
	return tmpl, nil
}

func (q *Queries) ListCourtTemplates(ctx context.Context, courtID int64) ([]models.WeeklyTemplate, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT court_id, day_of_week, open_time, close_time, slot_duration_minutes, price_cents
		FROM court_weekly_availability
		WHERE court_id = ?
		ORDER BY day_of_week`, courtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.WeeklyTemplate
	for rows.Next() {
		var tmpl models.WeeklyTemplate
		var slotDuration, price sql.NullInt64
		if err := rows.Scan(&tmpl.CourtID, &tmpl.DayOfWeek, &tmpl.OpenTime, &tmpl.CloseTime, &slotDuration, &price); err != nil {
			return nil, err
		}
		tmpl.SlotDurationMinutes = int64Ptr(slotDuration)
		tmpl.PriceCents = int64Ptr(price)
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

func (q *Queries) UpsertCourtTemplate(ctx context.Context, tmpl models.WeeklyTemplate) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO court_weekly_availability
			(court_id, day_of_week, open_time, close_time, slot_duration_minutes, price_cents)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (court_id, day_of_week) DO UPDATE SET
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			slot_duration_minutes = excluded.slot_duration_minutes,
			price_cents = excluded.price_cents`,
		tmpl.CourtID,
		tmpl.DayOfWeek,
		tmpl.OpenTime,
		tmpl.CloseTime,
		nullInt64(tmpl.SlotDurationMinutes),
		nullInt64(tmpl.PriceCents),
	)
	if err != nil {
		return fmt.Errorf("upsert court template: %w", err)
	}
	return nil
}

func (q *Queries) DeleteCourtTemplate(ctx context.Context, courtID int64, dayOfWeek int64) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM court_weekly_availability WHERE court_id = ? AND day_of_week = ?`,
		courtID, dayOfWeek,
	)
	return err
}

func (q *Queries) ListCancellationTiers(ctx context.Context, organizationID int64) ([]models.CancellationTier, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, organization_id, min_hours_before, refund_percentage
		FROM cancellation_policy_tiers
		WHERE organization_id = ?
		ORDER BY min_hours_before DESC`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []models.CancellationTier
	for rows.Next() {
		var tier models.CancellationTier
		if err := rows.Scan(&tier.ID, &tier.OrganizationID, &tier.MinHoursBefore, &tier.RefundPercentage); err != nil {
			return nil, err
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

func (q *Queries) CreateCancellationTier(ctx context.Context, tier models.CancellationTier) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO cancellation_policy_tiers (organization_id, min_hours_before, refund_percentage)
		VALUES (?, ?, ?)`,
		tier.OrganizationID, tier.MinHoursBefore, tier.RefundPercentage,
	)
	if err != nil {
		return 0, fmt.Errorf("create cancellation tier: %w", err)
	}
	return result.LastInsertId()
}
