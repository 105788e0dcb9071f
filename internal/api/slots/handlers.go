// internal/api/slots/handlers.go
package slots

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
)

const slotsQueryTimeout = 5 * time.Second

var (
	resolver *availability.Resolver
	clock    localtime.Clock = localtime.SystemClock{}
)

type slotsResponse struct {
	CourtID int64         `json:"courtId"`
	Date    string        `json:"date"`
	Slots   []models.Slot `json:"slots"`
}

// InitHandlers must be called during server startup before handling requests.
// A nil clock keeps the system clock.
func InitHandlers(r *availability.Resolver, c localtime.Clock) {
	resolver = r
	if c != nil {
		clock = c
	}
}

// GET /api/v1/courts/{id}/slots?date=YYYY-MM-DD
func HandleListSlots(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if resolver == nil {
		logger.Error().Msg("Slot resolver not initialized")
		apiutil.WriteError(w, r, errors.New("slot resolver not initialized"))
		return
	}

	courtID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	date, err := apiutil.DateFromQuery(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), slotsQueryTimeout)
	defer cancel()

	slots, err := resolver.ResolveSlots(ctx, courtID, date, clock.Now())
	if err != nil {
		if errors.Is(err, availability.ErrCourtNotFound) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "court not found", Err: err})
			return
		}
		logger.Error().Err(err).Int64("court_id", courtID).Str("date", date).Msg("Failed to resolve slots")
		apiutil.WriteError(w, r, err)
		return
	}
	if slots == nil {
		slots = []models.Slot{}
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, slotsResponse{CourtID: courtID, Date: date, Slots: slots}); err != nil {
		logger.Error().Err(err).Msg("Failed to write slots response")
	}
}
