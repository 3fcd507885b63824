package availability

import (
	"sort"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/conflict"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
)

// Calendar is a provider's stored availability configuration. Breaks may
// include rows for other days; WindowFor filters them.
type Calendar struct {
	Hours  []model.OperatingHours
	Breaks []model.BreakTime
}

// Window is the bookable frame of one provider-local day, as instants.
type Window struct {
	Date       wallclock.Date
	IsOpen     bool
	Open       time.Time
	Close      time.Time
	OpenClock  wallclock.Clock
	CloseClock wallclock.Clock
	Breaks     []conflict.Interval
}

func (w Window) Interval() conflict.Interval {
	return conflict.Interval{Start: w.Open, End: w.Close}
}

// Contains reports whether iv lies inside the window and clear of every break.
func (w Window) Contains(iv conflict.Interval) bool {
	if !w.IsOpen || iv.Start.Before(w.Open) || iv.End.After(w.Close) {
		return false
	}
	return !conflict.Any(iv, w.Breaks)
}

// WindowFor derives the window for date. A calendar with no operating hours
// at all is a configuration error; a weekday without a row is closed.
func WindowFor(cal Calendar, date wallclock.Date, loc *time.Location) (Window, error) {
	if len(cal.Hours) == 0 {
		return Window{}, apperr.Unconfigured("provider has no operating hours configured")
	}

	w := Window{Date: date}
	hours, ok := hoursFor(cal.Hours, date.Weekday())
	if !ok || hours.IsClosed || !hours.Start.Before(hours.End) {
		return w, nil
	}

	w.IsOpen = true
	w.OpenClock, w.CloseClock = hours.Start, hours.End
	w.Open = wallclock.Assemble(date, hours.Start, loc)
	w.Close = wallclock.Assemble(date, hours.End, loc)

	for _, b := range cal.Breaks {
		if !b.AppliesTo(date) || !b.Start.Before(b.End) {
			continue
		}
		w.Breaks = append(w.Breaks, conflict.Interval{
			Start: wallclock.Assemble(date, b.Start, loc),
			End:   wallclock.Assemble(date, b.End, loc),
		})
	}
	sort.Slice(w.Breaks, func(i, j int) bool { return w.Breaks[i].Start.Before(w.Breaks[j].Start) })
	return w, nil
}

func hoursFor(hours []model.OperatingHours, day time.Weekday) (model.OperatingHours, bool) {
	for _, h := range hours {
		if h.Weekday == day {
			return h, true
		}
	}
	return model.OperatingHours{}, false
}
