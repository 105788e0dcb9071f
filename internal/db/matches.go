package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codr1/courtbook/internal/models"
)

const matchColumns = `id, court_id, player_one_id, player_two_id, match_date, start_time, end_time,
	timezone, result, cancelled_at, created_at`

func scanMatch(row rowScanner) (models.Match, error) {
	var m models.Match
	var courtID sql.NullInt64
	var result sql.NullString
	var cancelledAt sql.NullTime
	err := row.Scan(
		&m.ID,
		&courtID,
		&m.PlayerOneID,
		&m.PlayerTwoID,
		&m.MatchDate,
		&m.StartTime,
		&m.EndTime,
		&m.Timezone,
		&result,
		&cancelledAt,
		&m.CreatedAt,
	)
	if err != nil {
		return models.Match{}, err
	}
	m.CourtID = int64Ptr(courtID)
	m.Result = stringPtr(result)
	m.CancelledAt = timePtr(cancelledAt)
	return m, nil
}

func (q *Queries) GetMatch(ctx context.Context, id int64) (models.Match, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	return scanMatch(row)
}

func (q *Queries) ListMatchesForPlayer(ctx context.Context, playerID int64) ([]models.Match, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE player_one_id = ? OR player_two_id = ?
		ORDER BY match_date DESC, start_time DESC`,
		playerID, playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list matches for player: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (q *Queries) CreateMatch(ctx context.Context, m models.Match) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO matches
			(court_id, player_one_id, player_two_id, match_date, start_time, end_time, timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(m.CourtID),
		m.PlayerOneID,
		m.PlayerTwoID,
		m.MatchDate,
		m.StartTime,
		m.EndTime,
		m.Timezone,
		m.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("create match: %w", err)
	}
	return result.LastInsertId()
}

// RecordMatchResult stores a result on a match that is not cancelled and has
// no result yet. It reports false when no such match exists.
func (q *Queries) RecordMatchResult(ctx context.Context, id int64, result string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE matches SET result = ? WHERE id = ? AND cancelled_at IS NULL AND result IS NULL`,
		result, id,
	)
	if err != nil {
		return false, fmt.Errorf("record match result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
