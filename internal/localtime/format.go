package localtime

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	clock12Layout = "3:04 PM"
	clock24Layout = "15:04"
	dateLayout    = "Mon, Jan 2, 2006"
)

// Regions whose conventional clock is 12-hour.
var twelveHourRegions = map[string]struct{}{
	"US": {}, "CA": {}, "AU": {}, "NZ": {}, "PH": {}, "IN": {},
	"PK": {}, "BD": {}, "EG": {}, "SA": {}, "CO": {}, "MY": {},
}

// Uses12HourClock reports whether a BCP-47 locale conventionally shows a
// 12-hour clock. Unparseable locales fall back to 24-hour.
func Uses12HourClock(locale string) bool {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return false
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return false
	}
	region, confidence := tag.Region()
	if confidence == language.No {
		return false
	}
	_, ok := twelveHourRegions[region.String()]
	return ok
}

// FormatClock renders the wall-clock time of t using the locale's convention.
func FormatClock(t time.Time, locale string) string {
	if Uses12HourClock(locale) {
		return t.Format(clock12Layout)
	}
	return t.Format(clock24Layout)
}

// FormatDateTimeRange renders a date and a "start - end" time range in loc.
func FormatDateTimeRange(start, end time.Time, loc *time.Location, locale string) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	start = start.In(loc)
	end = end.In(loc)
	return start.Format(dateLayout), FormatClock(start, locale) + " - " + FormatClock(end, locale)
}
