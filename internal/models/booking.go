// internal/models/booking.go
package models

import (
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingPending          BookingStatus = "pending"
	BookingConfirmed        BookingStatus = "confirmed"
	BookingAwaitingApproval BookingStatus = "awaiting_approval"
	BookingCancelled        BookingStatus = "cancelled"
	BookingCompleted        BookingStatus = "completed"
	BookingNoShow           BookingStatus = "no_show"
)

// Position in the one-directional lifecycle. Terminal states share the top rank.
var bookingStatusRank = map[BookingStatus]int{
	BookingPending:          0,
	BookingAwaitingApproval: 1,
	BookingConfirmed:        2,
	BookingCancelled:        3,
	BookingCompleted:        3,
	BookingNoShow:           3,
}

// ParseBookingStatus normalizes raw input; ok is false for unknown values.
func ParseBookingStatus(raw string) (BookingStatus, bool) {
	status := BookingStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.IsValid()
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingStatusRank[s]
	return ok
}

// IsTerminal reports whether s is absorbing: cancelled, completed or no_show.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCancelled || s == BookingCompleted || s == BookingNoShow
}

// CanTransitionTo reports whether moving from s to target goes strictly
// forward in the lifecycle. Nothing leaves a terminal state.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	if !s.IsValid() || !target.IsValid() || s.IsTerminal() {
		return false
	}
	return bookingStatusRank[target] > bookingStatusRank[s]
}

// TerminalBookingStatuses lists the absorbing states, for SQL filters.
func TerminalBookingStatuses() []BookingStatus {
	return []BookingStatus{BookingCancelled, BookingCompleted, BookingNoShow}
}

type RefundStatus string

const (
	RefundNone    RefundStatus = "none"
	RefundPartial RefundStatus = "partial"
	RefundFull    RefundStatus = "full"
)

type Booking struct {
	ID                 int64         `json:"id"`
	OrganizationID     int64         `json:"organizationId"`
	FacilityID         int64         `json:"facilityId"`
	CourtID            int64         `json:"courtId"`
	PlayerID           *int64        `json:"playerId,omitempty"`
	Guest              *GuestContact `json:"guest,omitempty"`
	ContactEmail       string        `json:"contactEmail,omitempty"`
	Date               string        `json:"date"`
	StartTime          string        `json:"startTime"`
	EndTime            string        `json:"endTime"`
	Status             BookingStatus `json:"status"`
	PriceCents         int64         `json:"priceCents"`
	Currency           string        `json:"currency"`
	RequiresApproval   bool          `json:"requiresApproval"`
	ApprovedBy         *int64        `json:"approvedBy,omitempty"`
	ApprovedAt         *time.Time    `json:"approvedAt,omitempty"`
	PaymentIntentID    string        `json:"paymentIntentId,omitempty"`
	CancelledAt        *time.Time    `json:"cancelledAt,omitempty"`
	CancelledBy        *int64        `json:"cancelledBy,omitempty"`
	CancellationReason string        `json:"cancellationReason,omitempty"`
	RefundAmountCents  *int64        `json:"refundAmountCents,omitempty"`
	RefundStatus       RefundStatus  `json:"refundStatus,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	CreatedBy          int64         `json:"createdBy"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// IsGuest reports whether the booking has no registered player.
func (b Booking) IsGuest() bool {
	return b.PlayerID == nil
}

// BelongsTo reports whether playerID is the booking's player.
func (b Booking) BelongsTo(playerID int64) bool {
	return b.PlayerID != nil && *b.PlayerID == playerID
}

// Recipient returns the best email address to notify about the booking.
func (b Booking) Recipient() string {
	if email := strings.TrimSpace(b.ContactEmail); email != "" {
		return email
	}
	if b.Guest != nil {
		return strings.TrimSpace(b.Guest.Email)
	}
	return ""
}
