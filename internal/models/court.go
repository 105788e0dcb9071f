package models

import "time"

type Organization struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	RequiresApproval bool   `json:"requiresApproval"`
	PaymentAccountID string `json:"paymentAccountId,omitempty"`
	Currency         string `json:"currency"`
}

type Facility struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organizationId"`
	Name           string `json:"name"`
	Timezone       string `json:"timezone"`
}

type Court struct {
	ID                  int64  `json:"id"`
	FacilityID          int64  `json:"facilityId"`
	OrganizationID      int64  `json:"organizationId"`
	Name                string `json:"name"`
	Timezone            string `json:"timezone"`
	SlotDurationMinutes int64  `json:"slotDurationMinutes"`
	DefaultPriceCents   int64  `json:"defaultPriceCents"`
	IsActive            bool   `json:"isActive"`
}

// WeeklyTemplate is a court's recurring window for one weekday. A close time at
// or before the open time means the window runs past midnight.
type WeeklyTemplate struct {
	CourtID             int64  `json:"courtId"`
	DayOfWeek           int64  `json:"dayOfWeek"`
	OpenTime            string `json:"openTime"`
	CloseTime           string `json:"closeTime"`
	SlotDurationMinutes *int64 `json:"slotDurationMinutes,omitempty"`
	PriceCents          *int64 `json:"priceCents,omitempty"`
}

// AvailabilityOverride is a one-time window for a single date. A nil CourtID
// applies it to every court of the facility.
type AvailabilityOverride struct {
	ID                  int64     `json:"id"`
	FacilityID          int64     `json:"facilityId"`
	CourtID             *int64    `json:"courtId,omitempty"`
	Date                string    `json:"date"`
	StartTime           string    `json:"startTime"`
	EndTime             string    `json:"endTime"`
	SlotDurationMinutes int64     `json:"slotDurationMinutes"`
	PriceCents          *int64    `json:"priceCents,omitempty"`
	Reason              string    `json:"reason,omitempty"`
	IsAvailable         bool      `json:"isAvailable"`
	CreatedBy           int64     `json:"createdBy"`
	CreatedAt           time.Time `json:"createdAt"`
}

// IsCourtSpecific reports whether the override targets one court.
func (o AvailabilityOverride) IsCourtSpecific() bool {
	return o.CourtID != nil
}

type SlotSource string

const (
	SlotSourceTemplate         SlotSource = "template"
	SlotSourceFacilityOverride SlotSource = "facility_override"
	SlotSourceCourtOverride    SlotSource = "court_override"
)

// Slot is a bookable window produced by the availability resolver. It is never stored.
type Slot struct {
	StartTime  string     `json:"startTime"`
	EndTime    string     `json:"endTime"`
	PriceCents int64      `json:"priceCents"`
	Currency   string     `json:"currency,omitempty"`
	Source     SlotSource `json:"source"`
	OverrideID int64      `json:"overrideId,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

type CancellationTier struct {
	ID               int64 `json:"id"`
	OrganizationID   int64 `json:"organizationId"`
	MinHoursBefore   int64 `json:"minHoursBefore"`
	RefundPercentage int64 `json:"refundPercentage"`
}

type Match struct {
	ID          int64      `json:"id"`
	CourtID     *int64     `json:"courtId,omitempty"`
	PlayerOneID int64      `json:"playerOneId"`
	PlayerTwoID int64      `json:"playerTwoId"`
	MatchDate   string     `json:"matchDate"`
	StartTime   string     `json:"startTime"`
	EndTime     string     `json:"endTime"`
	Timezone    string     `json:"timezone"`
	Result      *string    `json:"result,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
