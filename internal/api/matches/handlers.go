// internal/api/matches/handlers.go
package matches

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/status"
)

const matchesQueryTimeout = 5 * time.Second

var (
	queries *db.Queries
	clock   localtime.Clock = localtime.SystemClock{}
)

type matchResponse struct {
	models.Match
	Status status.Status `json:"status"`
}

type listMatchesResponse struct {
	Matches []matchResponse `json:"matches"`
}

type createMatchRequest struct {
	CourtID     *int64 `json:"court_id,omitempty"`
	PlayerOneID int64  `json:"player_one_id"`
	PlayerTwoID int64  `json:"player_two_id"`
	MatchDate   string `json:"match_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Timezone    string `json:"timezone,omitempty"`
}

type resultRequest struct {
	Result string `json:"result"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *db.Queries, c localtime.Clock) {
	queries = q
	if c != nil {
		clock = c
	}
}

func ready(w http.ResponseWriter, r *http.Request) bool {
	if queries == nil {
		log.Ctx(r.Context()).Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, r, errors.New("database queries not initialized"))
		return false
	}
	if _, err := authz.RequireActor(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return false
	}
	return true
}

// GET /api/v1/matches/{id}
func HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	if !ready(w, r) {
		return
	}
	matchID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchesQueryTimeout)
	defer cancel()

	match, ok := loadMatch(ctx, w, r, matchID)
	if !ok {
		return
	}
	writeMatch(w, r, http.StatusOK, match)
}

// GET /api/v1/matches?player_id=
func HandleListMatches(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if !ready(w, r) {
		return
	}
	playerID, err := apiutil.QueryID(r, "player_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchesQueryTimeout)
	defer cancel()

	list, err := queries.ListMatchesForPlayer(ctx, playerID)
	if err != nil {
		logger.Error().Err(err).Int64("player_id", playerID).Msg("Failed to list matches")
		apiutil.WriteError(w, r, err)
		return
	}

	now := clock.Now()
	resp := listMatchesResponse{Matches: make([]matchResponse, 0, len(list))}
	for _, m := range list {
		st, err := status.ForMatch(m, now)
		if err != nil {
			logger.Error().Err(err).Int64("match_id", m.ID).Msg("Failed to derive match status")
			apiutil.WriteError(w, r, err)
			return
		}
		resp.Matches = append(resp.Matches, matchResponse{Match: m, Status: st})
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write matches response")
	}
}

// POST /api/v1/matches
func HandleCreateMatch(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if !ready(w, r) {
		return
	}
	if _, err := authz.RequireStaff(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req createMatchRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchesQueryTimeout)
	defer cancel()

	match, err := buildMatch(ctx, req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	id, err := queries.CreateMatch(ctx, match)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create match")
		apiutil.WriteError(w, r, err)
		return
	}
	match.ID = id

	logger.Info().Int64("match_id", id).Str("match_date", match.MatchDate).Msg("Match created")
	writeMatch(w, r, http.StatusCreated, match)
}

// POST /api/v1/matches/{id}/result
func HandleRecordResult(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if !ready(w, r) {
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	matchID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req resultRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}
	result := strings.TrimSpace(req.Result)
	if result == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "result", Reason: "is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchesQueryTimeout)
	defer cancel()

	match, ok := loadMatch(ctx, w, r, matchID)
	if !ok {
		return
	}
	if !actor.IsStaff() && actor.ID != match.PlayerOneID && actor.ID != match.PlayerTwoID {
		apiutil.WriteError(w, r, authz.ErrForbidden)
		return
	}
	if match.Result != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusConflict, Message: "match result already recorded"})
		return
	}

	recorded, err := queries.RecordMatchResult(ctx, matchID, result)
	if err != nil {
		logger.Error().Err(err).Int64("match_id", matchID).Msg("Failed to record match result")
		apiutil.WriteError(w, r, err)
		return
	}
	if !recorded {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusConflict, Message: "match is cancelled or already has a result"})
		return
	}

	match.Result = &result
	logger.Info().Int64("match_id", matchID).Int64("recorded_by", actor.ID).Msg("Match result recorded")
	writeMatch(w, r, http.StatusOK, match)
}

func loadMatch(ctx context.Context, w http.ResponseWriter, r *http.Request, id int64) (models.Match, bool) {
	match, err := queries.GetMatch(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "match not found", Err: err})
			return models.Match{}, false
		}
		log.Ctx(ctx).Error().Err(err).Int64("match_id", id).Msg("Failed to load match")
		apiutil.WriteError(w, r, err)
		return models.Match{}, false
	}
	return match, true
}

// buildMatch takes the timezone from the court when one is given.
func buildMatch(ctx context.Context, req createMatchRequest) (models.Match, error) {
	if req.PlayerOneID <= 0 || req.PlayerTwoID <= 0 {
		return models.Match{}, apiutil.FieldError{Field: "player_one_id", Reason: "and player_two_id are required"}
	}
	if req.PlayerOneID == req.PlayerTwoID {
		return models.Match{}, apiutil.FieldError{Field: "player_two_id", Reason: "must differ from player_one_id"}
	}
	req.MatchDate = strings.TrimSpace(req.MatchDate)
	if _, err := localtime.ParseDate(req.MatchDate); err != nil {
		return models.Match{}, apiutil.FieldError{Field: "match_date", Reason: "must be formatted as YYYY-MM-DD"}
	}
	start, err := localtime.NormalizeClock(req.StartTime)
	if err != nil {
		return models.Match{}, apiutil.FieldError{Field: "start_time", Reason: "must be formatted as HH:MM"}
	}
	end, err := localtime.NormalizeClock(req.EndTime)
	if err != nil {
		return models.Match{}, apiutil.FieldError{Field: "end_time", Reason: "must be formatted as HH:MM"}
	}
	if start == end {
		return models.Match{}, apiutil.FieldError{Field: "end_time", Reason: "must differ from start_time"}
	}

	timezone := strings.TrimSpace(req.Timezone)
	if req.CourtID != nil {
		court, err := queries.GetCourt(ctx, *req.CourtID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.Match{}, apiutil.HandlerError{Status: http.StatusNotFound, Message: "court not found", Err: err}
			}
			return models.Match{}, err
		}
		timezone = court.Timezone
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := localtime.LoadLocation(timezone); err != nil {
		return models.Match{}, apiutil.FieldError{Field: "timezone", Reason: "must be an IANA timezone"}
	}

	return models.Match{
		CourtID:     req.CourtID,
		PlayerOneID: req.PlayerOneID,
		PlayerTwoID: req.PlayerTwoID,
		MatchDate:   req.MatchDate,
		StartTime:   start,
		EndTime:     end,
		Timezone:    timezone,
		CreatedAt:   clock.Now(),
	}, nil
}

func writeMatch(w http.ResponseWriter, r *http.Request, code int, m models.Match) {
	logger := log.Ctx(r.Context())

	st, err := status.ForMatch(m, clock.Now())
	if err != nil {
		logger.Error().Err(err).Int64("match_id", m.ID).Msg("Failed to derive match status")
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, code, matchResponse{Match: m, Status: st}); err != nil {
		logger.Error().Err(err).Msg("Failed to write match response")
	}
}
