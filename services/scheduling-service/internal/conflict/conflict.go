// Package conflict decides whether a candidate appointment window collides
// with a provider's active bookings.
package conflict

import (
	"slices"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/model"
)

// Interval is half-open: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool { return i.Start.Before(i.End) }

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// Overlaps is the half-open test: a.Start < b.End && a.End > b.Start.
// Touching intervals (10:00-10:30 and 10:30-11:00) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

func Any(candidate Interval, existing []Interval) bool {
	for _, e := range existing {
		if Overlaps(candidate, e) {
			return true
		}
	}
	return false
}

// BlockingStatuses are the statuses whose time range is reserved. The
// storage queries and the appointments_no_overlap constraint use this list.
var BlockingStatuses = []model.Status{
	model.StatusPending,
	model.StatusConfirmed,
	model.StatusCompleted,
}

// Blocks reports whether an appointment in status s occupies its window.
// Cancelled and no-show appointments free their slot.
func Blocks(s model.Status) bool {
	return slices.Contains(BlockingStatuses, s)
}

// ActiveIntervals keeps the windows of blocking appointments.
func ActiveIntervals(appts []model.Appointment) []Interval {
	out := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if Blocks(a.Status) {
			out = append(out, Interval{Start: a.StartTime, End: a.EndTime})
		}
	}
	return out
}
