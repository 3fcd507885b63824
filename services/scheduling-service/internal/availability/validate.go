package availability

import (
	"sort"

	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
)

// ValidateHours checks a weekly template: weekdays 0-6, at most one row per
// weekday, and start before end on open days.
func ValidateHours(hours []model.OperatingHours) error {
	seen := map[int]struct{}{}
	for _, h := range hours {
		day := int(h.Weekday)
		if day < 0 || day > 6 {
			return apperr.Invalid("weekday %d out of range", day)
		}
		if _, dup := seen[day]; dup {
			return apperr.Invalid("weekday %s listed more than once", h.Weekday)
		}
		seen[day] = struct{}{}
		if !h.IsClosed && !h.Start.Before(h.End) {
			return apperr.Invalid("%s: start %s must be before end %s", h.Weekday, h.Start, h.End)
		}
	}
	return nil
}

// ValidateBreaks checks that each break sits inside its day's operating
// window and that breaks sharing a day do not overlap. Dated overrides are
// checked together with the recurring breaks of the same weekday.
func ValidateBreaks(hours []model.OperatingHours, breaks []model.BreakTime) error {
	for _, b := range breaks {
		if !b.Start.Before(b.End) {
			return apperr.Invalid("break %s-%s: start must be before end", b.Start, b.End)
		}
		day := b.Weekday
		if b.Date != nil {
			day = b.Date.Weekday()
			if b.Weekday != day {
				return apperr.Invalid("break on %s: weekday %s does not match date", b.Date, b.Weekday)
			}
		}
		h, ok := hoursFor(hours, day)
		if !ok || h.IsClosed {
			return apperr.Invalid("break %s-%s falls on closed day %s", b.Start, b.End, day)
		}
		if b.Start.Before(h.Start) || h.End.Before(b.End) {
			return apperr.Invalid("break %s-%s is outside operating hours %s-%s on %s", b.Start, b.End, h.Start, h.End, day)
		}
	}

	for i := range breaks {
		for j := i + 1; j < len(breaks); j++ {
			if shareDay(breaks[i], breaks[j]) && clocksOverlap(breaks[i], breaks[j]) {
				return apperr.Invalid("breaks %s-%s and %s-%s overlap", breaks[i].Start, breaks[i].End, breaks[j].Start, breaks[j].End)
			}
		}
	}
	return nil
}

func shareDay(a, b model.BreakTime) bool {
	switch {
	case a.Date == nil && b.Date == nil:
		return a.Weekday == b.Weekday
	case a.Date != nil && b.Date != nil:
		return *a.Date == *b.Date
	case a.Date != nil:
		return a.Date.Weekday() == b.Weekday
	default:
		return b.Date.Weekday() == a.Weekday
	}
}

func clocksOverlap(a, b model.BreakTime) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// SortHours orders a template Sunday first.
func SortHours(hours []model.OperatingHours) {
	sort.Slice(hours, func(i, j int) bool { return hours[i].Weekday < hours[j].Weekday })
}

// SortBreaks orders recurring breaks by weekday, then dated overrides by
// date, each by start time.
func SortBreaks(breaks []model.BreakTime) {
	sort.SliceStable(breaks, func(i, j int) bool {
		a, b := breaks[i], breaks[j]
		if (a.Date == nil) != (b.Date == nil) {
			return a.Date == nil
		}
		if a.Date == nil && a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		if a.Date != nil && *a.Date != *b.Date {
			return a.Date.String() < b.Date.String()
		}
		return a.Start.Before(b.Start)
	})
}
