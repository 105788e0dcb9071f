// internal/api/overrides/handlers.go
package overrides

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
)

const (
	overridesQueryTimeout = 5 * time.Second
	defaultSlotMinutes    = 60
)

// Invalidator drops cached slots for a court and date.
type Invalidator interface {
	Invalidate(ctx context.Context, courtID int64, date string) error
}

var (
	store *db.Queries
	cache Invalidator
	clock localtime.Clock = localtime.SystemClock{}
)

type createOverrideRequest struct {
	FacilityID          int64  `json:"facility_id"`
	CourtID             *int64 `json:"court_id,omitempty"`
	Date                string `json:"date"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	SlotDurationMinutes *int64 `json:"slot_duration_minutes,omitempty"`
	PriceCents          *int64 `json:"price_cents,omitempty"`
	Reason              string `json:"reason,omitempty"`
	IsAvailable         *bool  `json:"is_available,omitempty"`
}

type listOverridesResponse struct {
	Overrides []models.AvailabilityOverride `json:"overrides"`
}

// InitHandlers must be called during server startup before handling requests.
// c may be nil; a nil clock keeps the system clock.
func InitHandlers(q *db.Queries, c Invalidator, clk localtime.Clock) {
	store = q
	cache = c
	if clk != nil {
		clock = clk
	}
}

// POST /api/v1/overrides
func HandleCreateOverride(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if store == nil {
		apiutil.WriteError(w, r, errors.New("database queries not initialized"))
		return
	}

	actor, err := authz.RequireStaff(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req createOverrideRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), overridesQueryTimeout)
	defer cancel()

	override, err := buildOverride(ctx, req, actor)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	id, err := store.CreateOverride(ctx, override)
	if err != nil {
		logger.Error().Err(err).Int64("facility_id", override.FacilityID).Msg("Failed to create override")
		apiutil.WriteError(w, r, err)
		return
	}
	override.ID = id

	invalidate(ctx, override)
	logger.Info().
		Int64("override_id", id).
		Int64("facility_id", override.FacilityID).
		Str("date", override.Date).
		Bool("court_specific", override.IsCourtSpecific()).
		Msg("Availability override created")

	if err := apiutil.WriteJSON(w, http.StatusCreated, override); err != nil {
		logger.Error().Err(err).Msg("Failed to write override response")
	}
}

// GET /api/v1/overrides?facility_id=&date=
func HandleListOverrides(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if store == nil {
		apiutil.WriteError(w, r, errors.New("database queries not initialized"))
		return
	}

	if _, err := authz.RequireStaff(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	facilityID, err := apiutil.QueryID(r, "facility_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	date := ""
	if r.URL.Query().Get("date") != "" {
		if date, err = apiutil.DateFromQuery(r); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), overridesQueryTimeout)
	defer cancel()

	overrides, err := store.ListFacilityOverrides(ctx, facilityID, date)
	if err != nil {
		logger.Error().Err(err).Int64("facility_id", facilityID).Msg("Failed to list overrides")
		apiutil.WriteError(w, r, err)
		return
	}
	if overrides == nil {
		overrides = []models.AvailabilityOverride{}
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, listOverridesResponse{Overrides: overrides}); err != nil {
		logger.Error().Err(err).Msg("Failed to write overrides response")
	}
}

// DELETE /api/v1/overrides/{id}
func HandleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if store == nil {
		apiutil.WriteError(w, r, errors.New("database queries not initialized"))
		return
	}

	if _, err := authz.RequireStaff(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	id, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), overridesQueryTimeout)
	defer cancel()

	override, err := store.GetOverride(ctx, id)
	if err == nil {
		err = store.DeleteOverride(ctx, id)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "override not found", Err: err})
			return
		}
		logger.Error().Err(err).Int64("override_id", id).Msg("Failed to delete override")
		apiutil.WriteError(w, r, err)
		return
	}

	invalidate(ctx, override)
	logger.Info().Int64("override_id", id).Msg("Availability override deleted")
	w.WriteHeader(http.StatusNoContent)
}

func buildOverride(ctx context.Context, req createOverrideRequest, actor models.Actor) (models.AvailabilityOverride, error) {
	if req.FacilityID <= 0 {
		return models.AvailabilityOverride{}, apiutil.FieldError{Field: "facility_id", Reason: "is required"}
	}
	facility, err := store.GetFacility(ctx, req.FacilityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AvailabilityOverride{}, apiutil.HandlerError{Status: http.StatusNotFound, Message: "facility not found", Err: err}
		}
		return models.AvailabilityOverride{}, fmt.Errorf("load facility: %w", err)
	}

	slotMinutes := int64(defaultSlotMinutes)
	if req.CourtID != nil {
		court, err := store.GetCourt(ctx, *req.CourtID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.AvailabilityOverride{}, apiutil.HandlerError{Status: http.StatusNotFound, Message: "court not found", Err: err}
			}
			return models.AvailabilityOverride{}, fmt.Errorf("load court: %w", err)
		}
		if court.FacilityID != facility.ID {
			return models.AvailabilityOverride{}, apiutil.FieldError{Field: "court_id", Reason: "does not belong to the facility"}
		}
		slotMinutes = court.SlotDurationMinutes
	}
	if req.SlotDurationMinutes != nil {
		if *req.SlotDurationMinutes <= 0 {
			return models.AvailabilityOverride{}, apiutil.FieldError{Field: "slot_duration_minutes", Reason: "must be greater than 0"}
		}
		slotMinutes = *req.SlotDurationMinutes
	}
	if req.PriceCents != nil && *req.PriceCents < 0 {
		return models.AvailabilityOverride{}, apiutil.FieldError{Field: "price_cents", Reason: "must not be negative"}
	}

	date := strings.TrimSpace(req.Date)
	if _, err := localtime.ParseDate(date); err != nil {
		return models.AvailabilityOverride{}, apiutil.FieldError{Field: "date", Reason: "must be formatted as YYYY-MM-DD"}
	}
	today, err := localtime.Today(clock.Now(), facility.Timezone)
	if err != nil {
		return models.AvailabilityOverride{}, err
	}
	if date < today {
		return models.AvailabilityOverride{}, apiutil.FieldError{Field: "date", Reason: "must not be in the past"}
	}

	start, err := localtime.NormalizeClock(req.StartTime)
	if err != nil {
		return models.AvailabilityOverride{}, apiutil.FieldError{Field: "start_time", Reason: "must be formatted as HH:MM"}
	}
	end, err := localtime.NormalizeClock(req.EndTime)
	if err != nil {
		return models.AvailabilityOverride{}, apiutil.FieldError{Field: "end_time", Reason: "must be formatted as HH:MM"}
	}
	if start == end {
		return models.AvailabilityOverride{}, apiutil.FieldError{Field: "end_time", Reason: "must differ from start_time"}
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	return models.AvailabilityOverride{
		FacilityID:          facility.ID,
		CourtID:             req.CourtID,
		Date:                date,
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: slotMinutes,
		PriceCents:          req.PriceCents,
		Reason:              strings.TrimSpace(req.Reason),
		IsAvailable:         available,
		CreatedBy:           actor.ID,
		CreatedAt:           clock.Now(),
	}, nil
}

// invalidate drops cached slots for every court the override touches. A
// facility-wide override touches all of the facility's courts.
func invalidate(ctx context.Context, override models.AvailabilityOverride) {
	if cache == nil {
		return
	}
	logger := log.Ctx(ctx)

	courtIDs := []int64{}
	if override.CourtID != nil {
		courtIDs = append(courtIDs, *override.CourtID)
	} else {
		ids, err := store.ListCourtIDsForFacility(ctx, override.FacilityID)
		if err != nil {
			logger.Warn().Err(err).Int64("facility_id", override.FacilityID).Msg("Failed to list courts for cache invalidation")
			return
		}
		courtIDs = ids
	}
	for _, courtID := range courtIDs {
		if err := cache.Invalidate(ctx, courtID, override.Date); err != nil {
			logger.Warn().Err(err).Int64("court_id", courtID).Str("date", override.Date).Msg("Slot cache invalidation failed")
		}
	}
}
