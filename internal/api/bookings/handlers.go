// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/status"
)

// Payment authorization and refunds call out to the provider, so writes get
// more room than reads.
const (
	bookingsQueryTimeout = 5 * time.Second
	bookingsWriteTimeout = 30 * time.Second
)

var (
	manager *booking.Manager
	clock   localtime.Clock = localtime.SystemClock{}
)

type createBookingRequest struct {
	CourtID      int64                `json:"court_id"`
	Date         string               `json:"date"`
	StartTime    string               `json:"start_time"`
	EndTime      string               `json:"end_time"`
	PlayerID     *int64               `json:"player_id,omitempty"`
	Guest        *models.GuestContact `json:"guest,omitempty"`
	ContactEmail string               `json:"contact_email,omitempty"`
	Notes        string               `json:"notes,omitempty"`
	SkipPayment  bool                 `json:"skip_payment,omitempty"`
}

type cancelBookingRequest struct {
	Reason      string `json:"reason"`
	ForceCancel bool   `json:"force_cancel"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type bookingResponse struct {
	models.Booking
	LiveStatus status.Status `json:"liveStatus"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(m *booking.Manager, c localtime.Clock) {
	manager = m
	if c != nil {
		clock = c
	}
}

func loadManager(w http.ResponseWriter, r *http.Request) *booking.Manager {
	if manager == nil {
		log.Ctx(r.Context()).Error().Msg("Booking manager not initialized")
		apiutil.WriteError(w, r, errors.New("booking manager not initialized"))
		return nil
	}
	return manager
}

// POST /api/v1/bookings
func HandleCreateBooking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	m := loadManager(w, r)
	if m == nil {
		return
	}

	actor, err := authz.RequireActor(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req createBookingRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsWriteTimeout)
	defer cancel()

	result, err := m.CreateBooking(ctx, booking.CreateInput{
		Actor:        actor,
		CourtID:      req.CourtID,
		Date:         req.Date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		PlayerID:     req.PlayerID,
		Guest:        req.Guest,
		ContactEmail: req.ContactEmail,
		Notes:        req.Notes,
		SkipPayment:  req.SkipPayment,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusCreated, result); err != nil {
		logger.Error().Err(err).Msg("Failed to write booking response")
	}
}

// GET /api/v1/bookings/{id}
func HandleGetBooking(w http.ResponseWriter, r *http.Request) {
	m := loadManager(w, r)
	if m == nil {
		return
	}

	actor, err := authz.RequireActor(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	bookingID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	b, timezone, err := m.GetBooking(ctx, bookingID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	// Other players' bookings look absent rather than forbidden.
	if !authz.CanViewBooking(actor, b) {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "booking not found"})
		return
	}

	writeBooking(w, r, http.StatusOK, b, timezone)
}

// POST /api/v1/bookings/{id}/cancel
func HandleCancelBooking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	m := loadManager(w, r)
	if m == nil {
		return
	}

	actor, err := authz.RequireActor(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	bookingID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	// The body is optional.
	var req cancelBookingRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsWriteTimeout)
	defer cancel()

	result, err := m.CancelBooking(ctx, booking.CancelInput{
		BookingID:   bookingID,
		Actor:       actor,
		Reason:      req.Reason,
		ForceCancel: req.ForceCancel,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, result); err != nil {
		logger.Error().Err(err).Msg("Failed to write cancel response")
	}
}

// PATCH /api/v1/bookings/{id}/status
func HandleUpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	m := loadManager(w, r)
	if m == nil {
		return
	}

	actor, err := authz.RequireActor(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	bookingID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req updateStatusRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsWriteTimeout)
	defer cancel()

	if _, err := m.UpdateBookingStatus(ctx, bookingID, req.Status, actor); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	b, timezone, err := m.GetBooking(ctx, bookingID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	writeBooking(w, r, http.StatusOK, b, timezone)
}

func writeBooking(w http.ResponseWriter, r *http.Request, code int, b models.Booking, timezone string) {
	logger := log.Ctx(r.Context())

	live, err := status.ForBooking(b, timezone, clock.Now())
	if err != nil {
		logger.Error().Err(err).Int64("booking_id", b.ID).Msg("Failed to derive booking status")
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, code, bookingResponse{Booking: b, LiveStatus: live}); err != nil {
		logger.Error().Err(err).Msg("Failed to write booking response")
	}
}
