// Package booking creates bookings and moves them through their lifecycle:
// guarded creation with payment authorization, cancellation with refunds, and
// staff or player status transitions.
package booking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/payments"
)

const compensationTimeout = 15 * time.Second

// Invalidator drops cached slots after a booking write.
type Invalidator interface {
	Invalidate(ctx context.Context, courtID int64, date string) error
}

type Config struct {
	PlatformFeePercent float64
	PhoneRegion        string
	// Clock for testing (nil uses real time)
	Clock localtime.Clock
	// Cache is optional.
	Cache Invalidator
	// NewID generates ledger and event ids (nil uses random UUIDs).
	NewID func() string
}

type Manager struct {
	db          *db.DB
	provider    payments.Provider
	feePercent  float64
	phoneRegion string
	clock       localtime.Clock
	cache       Invalidator
	newID       func() string
}

func NewManager(database *db.DB, provider payments.Provider, cfg Config) *Manager {
	if provider == nil {
		provider = payments.Disabled{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = localtime.SystemClock{}
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &Manager{
		db:          database,
		provider:    provider,
		feePercent:  cfg.PlatformFeePercent,
		phoneRegion: cfg.PhoneRegion,
		clock:       clock,
		cache:       cfg.Cache,
		newID:       newID,
	}
}

type CreateInput struct {
	Actor        models.Actor
	CourtID      int64
	Date         string
	StartTime    string
	EndTime      string
	PlayerID     *int64
	Guest        *models.GuestContact
	ContactEmail string
	Notes        string
	// SkipPayment books a priced slot without charging. Staff only.
	SkipPayment bool
}

type CreateResult struct {
	BookingID    int64                `json:"bookingId"`
	Status       models.BookingStatus `json:"status"`
	PriceCents   int64                `json:"priceCents"`
	Currency     string               `json:"currency"`
	ClientSecret string               `json:"clientSecret,omitempty"`
}

// CreateBooking validates the request, re-resolves the court's slots to make
// sure the window is still free, authorizes payment when the slot is priced
// and inserts the booking. The partial unique index on live bookings is the
// final guard; losing that race reports a conflict.
func (m *Manager) CreateBooking(ctx context.Context, in CreateInput) (CreateResult, error) {
	logger := log.Ctx(ctx)

	in, err := m.normalizeCreate(in)
	if err != nil {
		return CreateResult{}, err
	}
	if err := authorizeCreate(in); err != nil {
		return CreateResult{}, err
	}

	court, err := m.db.Queries.GetCourt(ctx, in.CourtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CreateResult{}, notFoundError("court not found", err)
		}
		return CreateResult{}, fmt.Errorf("load court: %w", err)
	}
	org, err := m.db.Queries.GetOrganization(ctx, court.OrganizationID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load organization: %w", err)
	}

	now := m.clock.Now()
	slot, err := m.findSlot(ctx, m.db.Queries, court.ID, in, now)
	if err != nil {
		return CreateResult{}, err
	}

	paymentRequired := slot.PriceCents > 0 && !in.SkipPayment
	if slot.PriceCents > 0 && in.SkipPayment && !in.Actor.IsStaff() {
		return CreateResult{}, authorizationError("only staff may book a priced slot without payment")
	}
	if paymentRequired {
		if err := m.checkPaymentAccount(ctx, org, slot); err != nil {
			return CreateResult{}, err
		}
	}

	currency := slot.Currency
	if currency == "" {
		currency = org.Currency
	}
	booking := models.Booking{
		OrganizationID:   org.ID,
		FacilityID:       court.FacilityID,
		CourtID:          court.ID,
		PlayerID:         in.PlayerID,
		Guest:            in.Guest,
		ContactEmail:     in.ContactEmail,
		Date:             in.Date,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		Status:           initialStatus(in.Actor, org, paymentRequired),
		PriceCents:       slot.PriceCents,
		Currency:         currency,
		RequiresApproval: org.RequiresApproval,
		Notes:            in.Notes,
		CreatedBy:        in.Actor.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var auth *db.PaymentAuthorization
	var clientSecret string
	if paymentRequired {
		auth, clientSecret, err = m.authorizePayment(ctx, org, booking)
		if err != nil {
			return CreateResult{}, err
		}
		booking.PaymentIntentID = auth.PaymentIntentID
	}

	bookingID, err := m.insertBooking(ctx, court, booking, auth, in)
	if err != nil {
		if auth != nil {
			m.compensate(ctx, *auth, err)
		}
		return CreateResult{}, err
	}

	m.invalidate(ctx, court.ID, in.Date, in.StartTime, in.EndTime)
	logger.Info().
		Int64("booking_id", bookingID).
		Int64("court_id", court.ID).
		Str("date", in.Date).
		Str("start_time", in.StartTime).
		Str("status", string(booking.Status)).
		Bool("payment_required", paymentRequired).
		Msg("Booking created")

	return CreateResult{
		BookingID:    bookingID,
		Status:       booking.Status,
		PriceCents:   booking.PriceCents,
		Currency:     booking.Currency,
		ClientSecret: clientSecret,
	}, nil
}

func (m *Manager) normalizeCreate(in CreateInput) (CreateInput, error) {
	if in.CourtID <= 0 {
		return in, validationError("court_id is required")
	}
	if strings.TrimSpace(in.Date) == "" {
		return in, validationError("date is required")
	}
	if strings.TrimSpace(in.StartTime) == "" {
		return in, validationError("start_time is required")
	}
	if strings.TrimSpace(in.EndTime) == "" {
		return in, validationError("end_time is required")
	}

	in.Date = strings.TrimSpace(in.Date)
	if _, err := localtime.ParseDate(in.Date); err != nil {
		return in, validationError("date must be formatted as YYYY-MM-DD")
	}
	start, err := localtime.NormalizeClock(in.StartTime)
	if err != nil {
		return in, validationError("start_time must be formatted as HH:MM")
	}
	end, err := localtime.NormalizeClock(in.EndTime)
	if err != nil {
		return in, validationError("end_time must be formatted as HH:MM")
	}
	if start == end {
		return in, validationError("end_time must differ from start_time")
	}
	in.StartTime, in.EndTime = start, end

	if in.PlayerID != nil && in.Guest != nil {
		return in, validationError("a booking has either a player or a guest, not both")
	}
	if in.PlayerID != nil && *in.PlayerID <= 0 {
		return in, validationError("player_id must be positive")
	}
	if in.Guest != nil {
		guest, err := in.Guest.Normalize(m.phoneRegion)
		if err != nil {
			return in, &Error{Kind: KindValidation, Message: err.Error(), Err: err}
		}
		in.Guest = &guest
	}
	if in.PlayerID == nil && in.Guest == nil && !in.Actor.IsStaff() {
		playerID := in.Actor.ID
		in.PlayerID = &playerID
	}

	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	if in.ContactEmail != "" {
		addr, err := mail.ParseAddress(in.ContactEmail)
		if err != nil {
			return in, validationError("contact_email is invalid")
		}
		in.ContactEmail = strings.ToLower(addr.Address)
	} else if in.Guest != nil {
		in.ContactEmail = in.Guest.Email
	}
	in.Notes = strings.TrimSpace(in.Notes)
	return in, nil
}

func authorizeCreate(in CreateInput) error {
	if in.Actor.ID <= 0 || in.Actor.Role == "" {
		return authorizationError("an authenticated actor is required")
	}
	if in.Actor.IsStaff() {
		return nil
	}
	if in.Guest != nil {
		return authorizationError("guest bookings require a staff role")
	}
	if in.PlayerID != nil && *in.PlayerID != in.Actor.ID {
		return authorizationError("booking for another player requires a staff role")
	}
	return nil
}

// initialStatus: staff bookings are confirmed outright, then the organization's
// approval setting applies, then an outstanding payment leaves the booking pending.
func initialStatus(actor models.Actor, org models.Organization, paymentRequired bool) models.BookingStatus {
	switch {
	case actor.IsStaff():
		return models.BookingConfirmed
	case org.RequiresApproval:
		return models.BookingAwaitingApproval
	case paymentRequired:
		return models.BookingPending
	default:
		return models.BookingConfirmed
	}
}

func (m *Manager) findSlot(ctx context.Context, store availability.Store, courtID int64, in CreateInput, now time.Time) (models.Slot, error) {
	slots, err := availability.Uncached(store).ResolveSlots(ctx, courtID, in.Date, now)
	if err != nil {
		if errors.Is(err, availability.ErrCourtNotFound) {
			return models.Slot{}, notFoundError("court not found", err)
		}
		return models.Slot{}, fmt.Errorf("resolve slots: %w", err)
	}
	slot, ok := availability.Contains(slots, in.StartTime, in.EndTime)
	if !ok {
		return models.Slot{}, &Error{Kind: KindConflict, Message: msgSlotUnavailable}
	}
	return slot, nil
}

func (m *Manager) checkPaymentAccount(ctx context.Context, org models.Organization, slot models.Slot) error {
	price := models.FormatPriceCents(slot.PriceCents, slot.Currency)
	notReady := &Error{
		Kind:    KindPaymentPrecondition,
		Message: fmt.Sprintf("this slot costs %s but %s is not set up to accept payments yet", price, org.Name),
	}
	if strings.TrimSpace(org.PaymentAccountID) == "" {
		return notReady
	}

	status, err := m.provider.GetAccountStatus(ctx, org.PaymentAccountID)
	if err != nil {
		return downstreamError("could not verify the organization's payment account", err)
	}
	if !status.ChargesEnabled {
		return notReady
	}
	return nil
}

// authorizePayment records the hold in the ledger before calling the provider
// so a hold that outlives a failed insert can still be found and released.
func (m *Manager) authorizePayment(ctx context.Context, org models.Organization, booking models.Booking) (*db.PaymentAuthorization, string, error) {
	logger := log.Ctx(ctx)

	auth := db.PaymentAuthorization{
		ID:             m.newID(),
		OrganizationID: org.ID,
		AmountCents:    booking.PriceCents,
		Currency:       booking.Currency,
		State:          db.AuthorizationReserved,
		CreatedAt:      m.clock.Now(),
	}
	if err := m.db.Queries.CreatePaymentAuthorization(ctx, auth); err != nil {
		return nil, "", fmt.Errorf("reserve payment authorization: %w", err)
	}

	result, err := m.provider.CreateAuthorization(ctx, payments.AuthorizationRequest{
		AmountCents:           booking.PriceCents,
		Currency:              booking.Currency,
		DestinationAccount:    org.PaymentAccountID,
		ApplicationFeePercent: m.feePercent,
		IdempotencyKey:        auth.ID,
		Metadata: map[string]string{
			"authorization_id": auth.ID,
			"court_id":         strconv.FormatInt(booking.CourtID, 10),
			"date":             booking.Date,
			"start_time":       booking.StartTime,
		},
	})
	if err != nil {
		if markErr := m.db.Queries.MarkAuthorizationFailed(ctx, auth.ID, err.Error(), m.clock.Now()); markErr != nil {
			logger.Error().Err(markErr).Str("authorization_id", auth.ID).Msg("Failed to mark authorization failed")
		}
		return nil, "", downstreamError("payment authorization failed", err)
	}

	auth.PaymentIntentID = result.PaymentIntentID
	auth.State = db.AuthorizationAuthorized
	if err := m.db.Queries.MarkAuthorizationAuthorized(ctx, auth.ID, result.PaymentIntentID, m.clock.Now()); err != nil {
		// The hold exists at the provider; release it before giving up.
		m.compensate(ctx, auth, err)
		return nil, "", fmt.Errorf("record payment authorization: %w", err)
	}
	return &auth, result.ClientSecret, nil
}

func (m *Manager) insertBooking(ctx context.Context, court models.Court, booking models.Booking, auth *db.PaymentAuthorization, in CreateInput) (int64, error) {
	var bookingID int64
	err := m.db.RunInTx(ctx, func(tx *db.DB) error {
		// Time has passed since the first check while the provider was called.
		if _, err := m.findSlot(ctx, tx.Queries, court.ID, in, booking.CreatedAt); err != nil {
			return err
		}

		id, err := tx.Queries.CreateBooking(ctx, booking)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return &Error{Kind: KindConflict, Message: msgSlotUnavailable, Err: err}
			}
			return err
		}
		bookingID = id
		booking.ID = id

		if auth != nil {
			if err := tx.Queries.MarkAuthorizationAttached(ctx, auth.ID, id, booking.CreatedAt); err != nil {
				return fmt.Errorf("attach payment authorization: %w", err)
			}
		}

		payload := m.eventPayload(models.EventBookingCreated, booking, court, in.Actor.ID)
		return m.insertEvent(ctx, tx.Queries, payload)
	})
	if err != nil {
		return 0, err
	}
	return bookingID, nil
}

// compensate releases an authorization whose booking was never written. When
// the release fails the ledger row stays authorized for the orphan sweep.
func (m *Manager) compensate(ctx context.Context, auth db.PaymentAuthorization, cause error) {
	logger := log.Ctx(ctx)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	_, err := m.provider.ReverseAuthorization(ctx, auth.PaymentIntentID, auth.AmountCents, "void-"+auth.ID)
	if err != nil {
		logger.Error().
			Err(err).
			AnErr("cause", cause).
			Str("authorization_id", auth.ID).
			Str("payment_intent_id", auth.PaymentIntentID).
			Msg("Compensating reversal failed; authorization left for sweep")
		if recErr := m.db.Queries.RecordAuthorizationError(ctx, auth.ID, err.Error(), m.clock.Now()); recErr != nil {
			logger.Error().Err(recErr).Str("authorization_id", auth.ID).Msg("Failed to record authorization error")
		}
		return
	}
	if err := m.db.Queries.MarkAuthorizationReversed(ctx, auth.ID, m.clock.Now()); err != nil {
		logger.Error().Err(err).Str("authorization_id", auth.ID).Msg("Failed to mark authorization reversed")
		return
	}
	logger.Warn().
		AnErr("cause", cause).
		Str("authorization_id", auth.ID).
		Msg("Reversed authorization after failed booking insert")
}

func (m *Manager) eventPayload(eventType string, b models.Booking, court models.Court, actorID int64) models.BookingEventPayload {
	return models.BookingEventPayload{
		EventID:        m.newID(),
		Type:           eventType,
		BookingID:      b.ID,
		OrganizationID: b.OrganizationID,
		CourtID:        b.CourtID,
		CourtName:      court.Name,
		Date:           b.Date,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Timezone:       court.Timezone,
		Status:         b.Status,
		PriceCents:     b.PriceCents,
		Currency:       b.Currency,
		Recipient:      b.Recipient(),
		ActorID:        actorID,
		OccurredAt:     m.clock.Now().UTC().Format(time.RFC3339),
	}
}

func (m *Manager) insertEvent(ctx context.Context, q *db.Queries, payload models.BookingEventPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode booking event: %w", err)
	}
	return q.InsertBookingEvent(ctx, db.BookingEvent{
		ID:        payload.EventID,
		BookingID: payload.BookingID,
		EventType: payload.Type,
		Payload:   body,
		CreatedAt: m.clock.Now(),
	})
}

// invalidate drops the cached slots of every date whose resolution can see
// the booking: its own date, the previous date (whose overnight windows run
// into it) and the next date when the booking itself runs past midnight.
func (m *Manager) invalidate(ctx context.Context, courtID int64, date, startTime, endTime string) {
	if m.cache == nil {
		return
	}
	for _, d := range affectedDates(date, startTime, endTime) {
		if err := m.cache.Invalidate(ctx, courtID, d); err != nil {
			log.Ctx(ctx).Warn().Err(err).Int64("court_id", courtID).Str("date", d).Msg("Failed to invalidate slot cache")
		}
	}
}

func affectedDates(date, startTime, endTime string) []string {
	day, err := localtime.ParseDate(date)
	if err != nil {
		return []string{date}
	}
	dates := []string{date, day.AddDate(0, 0, -1).Format(localtime.DateLayout)}

	start, startErr := localtime.MinuteOfDay(startTime)
	end, endErr := localtime.MinuteOfDay(endTime)
	if startErr == nil && endErr == nil && end < start {
		dates = append(dates, day.AddDate(0, 0, 1).Format(localtime.DateLayout))
	}
	return dates
}
