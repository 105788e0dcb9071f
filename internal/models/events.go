package models

const (
	EventBookingCreated       = "booking.created"
	EventBookingCancelled     = "booking.cancelled"
	EventBookingStatusChanged = "booking.status_changed"
)

// BookingEventPayload is the body of an outbox event and of the message
// published for it.
type BookingEventPayload struct {
	EventID           string        `json:"eventId"`
	Type              string        `json:"type"`
	BookingID         int64         `json:"bookingId"`
	OrganizationID    int64         `json:"organizationId"`
	CourtID           int64         `json:"courtId"`
	CourtName         string        `json:"courtName,omitempty"`
	Date              string        `json:"date"`
	StartTime         string        `json:"startTime"`
	EndTime           string        `json:"endTime"`
	Timezone          string        `json:"timezone,omitempty"`
	Status            BookingStatus `json:"status"`
	PreviousStatus    BookingStatus `json:"previousStatus,omitempty"`
	PriceCents        int64         `json:"priceCents"`
	Currency          string        `json:"currency"`
	RefundAmountCents int64         `json:"refundAmountCents,omitempty"`
	RefundStatus      RefundStatus  `json:"refundStatus,omitempty"`
	Recipient         string        `json:"recipient,omitempty"`
	ActorID           int64         `json:"actorId"`
	OccurredAt        string        `json:"occurredAt"`
}
