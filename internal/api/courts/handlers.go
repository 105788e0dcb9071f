// internal/api/courts/handlers.go
package courts

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
)

const courtsQueryTimeout = 5 * time.Second

// CourtInvalidator drops every cached date of a court.
type CourtInvalidator interface {
	InvalidateCourt(ctx context.Context, courtID int64) error
}

var (
	queries *db.Queries
	cache   CourtInvalidator
)

type templateRequest struct {
	DayOfWeek           *int64 `json:"day_of_week"`
	OpenTime            string `json:"open_time"`
	CloseTime           string `json:"close_time"`
	SlotDurationMinutes *int64 `json:"slot_duration_minutes,omitempty"`
	PriceCents          *int64 `json:"price_cents,omitempty"`
}

type templatesResponse struct {
	CourtID   int64                   `json:"courtId"`
	Templates []models.WeeklyTemplate `json:"templates"`
}

// InitHandlers must be called during server startup before handling requests.
// c may be nil when slots are not cached.
func InitHandlers(q *db.Queries, c CourtInvalidator) {
	queries = q
	cache = c
}

// GET /api/v1/courts/{id}/template
func HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	court, ok := loadCourt(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	templates, err := queries.ListCourtTemplates(ctx, court.ID)
	if err != nil {
		logger.Error().Err(err).Int64("court_id", court.ID).Msg("Failed to list court templates")
		apiutil.WriteError(w, r, err)
		return
	}
	if templates == nil {
		templates = []models.WeeklyTemplate{}
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, templatesResponse{CourtID: court.ID, Templates: templates}); err != nil {
		logger.Error().Err(err).Msg("Failed to write templates response")
	}
}

// PUT /api/v1/courts/{id}/template
func HandleUpsertTemplate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequireStaff(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	court, ok := loadCourt(w, r)
	if !ok {
		return
	}

	var req templateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}
	tmpl, err := buildTemplate(court.ID, req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	if err := queries.UpsertCourtTemplate(ctx, tmpl); err != nil {
		logger.Error().Err(err).Int64("court_id", court.ID).Msg("Failed to save court template")
		apiutil.WriteError(w, r, err)
		return
	}
	invalidate(ctx, court.ID)

	logger.Info().
		Int64("court_id", court.ID).
		Int64("day_of_week", tmpl.DayOfWeek).
		Str("open_time", tmpl.OpenTime).
		Str("close_time", tmpl.CloseTime).
		Msg("Court template saved")

	if err := apiutil.WriteJSON(w, http.StatusOK, tmpl); err != nil {
		logger.Error().Err(err).Msg("Failed to write template response")
	}
}

// DELETE /api/v1/courts/{id}/template/{day}
func HandleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, err := authz.RequireStaff(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	court, ok := loadCourt(w, r)
	if !ok {
		return
	}
	day, err := strconv.ParseInt(r.PathValue("day"), 10, 64)
	if err != nil || day < 0 || day > 6 {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "day", Reason: "must be between 0 and 6"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	if err := queries.DeleteCourtTemplate(ctx, court.ID, day); err != nil {
		logger.Error().Err(err).Int64("court_id", court.ID).Msg("Failed to delete court template")
		apiutil.WriteError(w, r, err)
		return
	}
	invalidate(ctx, court.ID)
	w.WriteHeader(http.StatusNoContent)
}

func loadCourt(w http.ResponseWriter, r *http.Request) (models.Court, bool) {
	if queries == nil {
		log.Ctx(r.Context()).Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, r, errors.New("database queries not initialized"))
		return models.Court{}, false
	}
	courtID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return models.Court{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	court, err := queries.GetCourt(ctx, courtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "court not found", Err: err})
			return models.Court{}, false
		}
		apiutil.WriteError(w, r, err)
		return models.Court{}, false
	}
	return court, true
}

// buildTemplate validates the request. Equal open and close times are
// rejected; a close before the open runs past midnight.
func buildTemplate(courtID int64, req templateRequest) (models.WeeklyTemplate, error) {
	if req.DayOfWeek == nil || *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
		return models.WeeklyTemplate{}, apiutil.FieldError{Field: "day_of_week", Reason: "must be between 0 (Sunday) and 6"}
	}
	open, err := localtime.NormalizeClock(req.OpenTime)
	if err != nil {
		return models.WeeklyTemplate{}, apiutil.FieldError{Field: "open_time", Reason: "must be formatted as HH:MM"}
	}
	closeTime, err := localtime.NormalizeClock(req.CloseTime)
	if err != nil {
		return models.WeeklyTemplate{}, apiutil.FieldError{Field: "close_time", Reason: "must be formatted as HH:MM"}
	}
	if open == closeTime {
		return models.WeeklyTemplate{}, apiutil.FieldError{Field: "close_time", Reason: "must differ from open_time"}
	}
	if req.SlotDurationMinutes != nil && *req.SlotDurationMinutes <= 0 {
		return models.WeeklyTemplate{}, apiutil.FieldError{Field: "slot_duration_minutes", Reason: "must be greater than 0"}
	}
	if req.PriceCents != nil && *req.PriceCents < 0 {
		return models.WeeklyTemplate{}, apiutil.FieldError{Field: "price_cents", Reason: "must not be negative"}
	}
	return models.WeeklyTemplate{
		CourtID:             courtID,
		DayOfWeek:           *req.DayOfWeek,
		OpenTime:            open,
		CloseTime:           closeTime,
		SlotDurationMinutes: req.SlotDurationMinutes,
		PriceCents:          req.PriceCents,
	}, nil
}

func invalidate(ctx context.Context, courtID int64) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateCourt(ctx, courtID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("court_id", courtID).Msg("Slot cache invalidation failed")
	}
}
