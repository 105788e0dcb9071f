// Package availability turns a court's weekly template, its one-time
// overrides and its live bookings into the bookable slots for one date.
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
)

// Input is everything Merge needs for one court on one date. Bookings may
// include rows from the neighbouring dates; only the part of them that spills
// onto Date is considered.
type Input struct {
	Date      string
	Court     models.Court
	Currency  string
	Template  *models.WeeklyTemplate
	Overrides []models.AvailabilityOverride
	Bookings  []models.Booking
}

// window is a half-open span in minutes from midnight of the resolved date.
// End may exceed a day when the window runs past midnight.
type window struct {
	start int
	end   int
}

func (w window) overlaps(o window) bool {
	return w.start < o.end && o.start < w.end
}

// overrideKey identifies an override window. Court-specific and facility-wide
// rows for the same key compete for one slot.
type overrideKey struct {
	date  string
	start string
	end   string
}

type overrideEntry struct {
	override models.AvailabilityOverride
	window   window
}

// orderedOverrides keeps first-seen order so merged output does not depend on
// map iteration.
type orderedOverrides struct {
	keys    []overrideKey
	entries map[overrideKey]overrideEntry
}

func newOrderedOverrides() *orderedOverrides {
	return &orderedOverrides{entries: make(map[overrideKey]overrideEntry)}
}

// put stores candidate unless an entry already holds the key and
// preferOverride says to keep it.
func (o *orderedOverrides) put(key overrideKey, candidate overrideEntry) {
	existing, ok := o.entries[key]
	if !ok {
		o.keys = append(o.keys, key)
		o.entries[key] = candidate
		return
	}
	if preferOverride(candidate.override, existing.override) {
		o.entries[key] = candidate
	}
}

func (o *orderedOverrides) values() []overrideEntry {
	out := make([]overrideEntry, 0, len(o.keys))
	for _, key := range o.keys {
		out = append(out, o.entries[key])
	}
	return out
}

// preferOverride reports whether candidate should replace existing for the
// same window. A court-specific override beats a facility-wide one; within the
// same scope the first row stays.
func preferOverride(candidate, existing models.AvailabilityOverride) bool {
	return candidate.IsCourtSpecific() && !existing.IsCourtSpecific()
}

type candidate struct {
	slot   models.Slot
	window window
}

// Merge resolves the slots for one court on one date, ignoring the clock.
// Override windows replace any template slot they overlap, court-specific
// windows replace facility-wide ones they overlap, and every slot that
// overlaps a live booking is dropped. Slots always start on Date; the last
// slot of a window running past midnight may end on the next day.
func Merge(in Input) ([]models.Slot, error) {
	if _, err := localtime.ParseDate(in.Date); err != nil {
		return nil, err
	}
	if !in.Court.IsActive {
		return []models.Slot{}, nil
	}

	courtWindows, facilityWindows, err := mergeOverrides(in)
	if err != nil {
		return nil, err
	}

	var slots []candidate
	for _, entry := range courtWindows {
		slots = append(slots, sliceOverride(entry, in)...)
	}
	for _, entry := range facilityWindows {
		if overlapsAny(entry.window, courtWindows) {
			continue
		}
		slots = append(slots, sliceOverride(entry, in)...)
	}

	if in.Template != nil {
		templateSlots, err := sliceTemplate(*in.Template, in)
		if err != nil {
			return nil, err
		}
		for _, c := range templateSlots {
			if overlapsAny(c.window, courtWindows) || overlapsAny(c.window, facilityWindows) {
				continue
			}
			slots = append(slots, c)
		}
	}

	busy, err := bookedWindows(in)
	if err != nil {
		return nil, err
	}

	// Overrides of the same scope may still overlap one another; keep the
	// earliest starting slot of each clash.
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].window.start != slots[j].window.start {
			return slots[i].window.start < slots[j].window.start
		}
		return slots[i].window.end < slots[j].window.end
	})

	out := make([]models.Slot, 0, len(slots))
	var accepted []window
	for _, c := range slots {
		if overlapsWindows(c.window, busy) || overlapsWindows(c.window, accepted) {
			continue
		}
		accepted = append(accepted, c.window)
		out = append(out, c.slot)
	}
	return out, nil
}

// mergeOverrides deduplicates overrides on (date, start, end), feeding
// facility-wide rows before court-specific ones, and splits the winners by scope.
func mergeOverrides(in Input) (court, facility []overrideEntry, err error) {
	ordered := make([]models.AvailabilityOverride, 0, len(in.Overrides))
	for _, o := range in.Overrides {
		if !o.IsCourtSpecific() {
			ordered = append(ordered, o)
		}
	}
	for _, o := range in.Overrides {
		if o.IsCourtSpecific() {
			ordered = append(ordered, o)
		}
	}

	merged := newOrderedOverrides()
	for _, o := range ordered {
		if !o.IsAvailable || o.Date != in.Date {
			continue
		}
		if o.IsCourtSpecific() && *o.CourtID != in.Court.ID {
			continue
		}
		if !o.IsCourtSpecific() && o.FacilityID != in.Court.FacilityID {
			continue
		}
		start, err := localtime.NormalizeClock(o.StartTime)
		if err != nil {
			return nil, nil, fmt.Errorf("override %d: %w", o.ID, err)
		}
		end, err := localtime.NormalizeClock(o.EndTime)
		if err != nil {
			return nil, nil, fmt.Errorf("override %d: %w", o.ID, err)
		}
		w, ok, err := spanOf(start, end, false)
		if err != nil {
			return nil, nil, fmt.Errorf("override %d: %w", o.ID, err)
		}
		if !ok {
			continue
		}
		merged.put(overrideKey{date: o.Date, start: start, end: end}, overrideEntry{override: o, window: w})
	}

	for _, entry := range merged.values() {
		if entry.override.IsCourtSpecific() {
			court = append(court, entry)
		} else {
			facility = append(facility, entry)
		}
	}
	return court, facility, nil
}

func sliceOverride(entry overrideEntry, in Input) []candidate {
	o := entry.override
	source := models.SlotSourceFacilityOverride
	if o.IsCourtSpecific() {
		source = models.SlotSourceCourtOverride
	}
	price := in.Court.DefaultPriceCents
	if o.PriceCents != nil {
		price = *o.PriceCents
	}
	duration := int(o.SlotDurationMinutes)
	if duration <= 0 {
		duration = entry.window.end - entry.window.start
	}
	return slice(entry.window, duration, models.Slot{
		PriceCents: price,
		Currency:   in.Currency,
		Source:     source,
		OverrideID: o.ID,
		Reason:     o.Reason,
	})
}

func sliceTemplate(tmpl models.WeeklyTemplate, in Input) ([]candidate, error) {
	w, ok, err := spanOf(tmpl.OpenTime, tmpl.CloseTime, true)
	if err != nil {
		return nil, fmt.Errorf("court %d template: %w", tmpl.CourtID, err)
	}
	if !ok {
		return nil, nil
	}
	duration := int(in.Court.SlotDurationMinutes)
	if tmpl.SlotDurationMinutes != nil {
		duration = int(*tmpl.SlotDurationMinutes)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("court %d template: slot duration must be positive", tmpl.CourtID)
	}
	price := in.Court.DefaultPriceCents
	if tmpl.PriceCents != nil {
		price = *tmpl.PriceCents
	}
	return slice(w, duration, models.Slot{
		PriceCents: price,
		Currency:   in.Currency,
		Source:     models.SlotSourceTemplate,
	}), nil
}

// slice cuts w into consecutive slots of duration minutes. A trailing piece
// shorter than duration is not bookable, nor is any slot starting after midnight.
func slice(w window, duration int, proto models.Slot) []candidate {
	var out []candidate
	for start := w.start; start+duration <= w.end && start < localtime.MinutesInDay; start += duration {
		slot := proto
		slot.StartTime = localtime.ClockFromMinutes(start)
		slot.EndTime = localtime.ClockFromMinutes(start + duration)
		out = append(out, candidate{slot: slot, window: window{start: start, end: start + duration}})
	}
	return out
}

// spanOf converts a pair of clock strings into a window. An end earlier than
// the start runs past midnight. Equal clocks are a full day when allowFullDay
// is set and an empty window otherwise.
func spanOf(startClock, endClock string, allowFullDay bool) (window, bool, error) {
	start, err := localtime.MinuteOfDay(startClock)
	if err != nil {
		return window{}, false, err
	}
	end, err := localtime.MinuteOfDay(endClock)
	if err != nil {
		return window{}, false, err
	}
	switch {
	case end > start:
	case end < start:
		end += localtime.MinutesInDay
	case allowFullDay:
		end += localtime.MinutesInDay
	default:
		return window{}, false, nil
	}
	return window{start: start, end: end}, true, nil
}

// bookedWindows places each live booking on the resolved date's minute axis.
// Bookings on the previous date only matter when they run past midnight.
func bookedWindows(in Input) ([]window, error) {
	day, err := localtime.ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	previous := day.AddDate(0, 0, -1).Format(localtime.DateLayout)
	next := day.AddDate(0, 0, 1).Format(localtime.DateLayout)

	var busy []window
	for _, b := range in.Bookings {
		if b.Status == models.BookingCancelled || b.CourtID != in.Court.ID {
			continue
		}
		w, ok, err := spanOf(b.StartTime, b.EndTime, false)
		if err != nil {
			return nil, fmt.Errorf("booking %d: %w", b.ID, err)
		}
		if !ok {
			continue
		}
		switch b.Date {
		case in.Date:
		case previous:
			w = window{start: w.start - localtime.MinutesInDay, end: w.end - localtime.MinutesInDay}
		case next:
			w = window{start: w.start + localtime.MinutesInDay, end: w.end + localtime.MinutesInDay}
		default:
			continue
		}
		busy = append(busy, w)
	}
	return busy, nil
}

func overlapsAny(w window, entries []overrideEntry) bool {
	for _, entry := range entries {
		if w.overlaps(entry.window) {
			return true
		}
	}
	return false
}

func overlapsWindows(w window, windows []window) bool {
	for _, other := range windows {
		if w.overlaps(other) {
			return true
		}
	}
	return false
}

// Upcoming drops slots whose start instant is not after now.
func Upcoming(slots []models.Slot, date, timezone string, now time.Time) ([]models.Slot, error) {
	out := make([]models.Slot, 0, len(slots))
	for _, slot := range slots {
		start, err := localtime.CreateInstant(date, slot.StartTime, timezone)
		if err != nil {
			return nil, err
		}
		if localtime.SignedDifferenceFromNow(start, now) <= 0 {
			continue
		}
		out = append(out, slot)
	}
	return out, nil
}
