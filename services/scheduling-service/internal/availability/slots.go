package availability

import (
	"iter"
	"slices"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/conflict"
)

type State string

const (
	StateOpen   State = "OPEN"
	StateBreak  State = "BREAK"
	StateBooked State = "BOOKED"
	StatePast   State = "PAST"
)

type Slot struct {
	Start time.Time
	End   time.Time
	State State
}

func (s Slot) Interval() conflict.Interval {
	return conflict.Interval{Start: s.Start, End: s.End}
}

// Slots walks the window from Open in steps of d and yields each full slot
// in ascending order. A tail shorter than d is dropped. The sequence is
// finite and can be ranged over any number of times.
func Slots(w Window, d time.Duration, booked []conflict.Interval, now time.Time) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		if !w.IsOpen || d <= 0 {
			return
		}
		for start := w.Open; !start.Add(d).After(w.Close); start = start.Add(d) {
			s := Slot{Start: start, End: start.Add(d)}
			s.State = classify(s.Interval(), w.Breaks, booked, now)
			if !yield(s) {
				return
			}
		}
	}
}

func GenerateSlots(w Window, d time.Duration, booked []conflict.Interval, now time.Time) []Slot {
	return slices.Collect(Slots(w, d, booked, now))
}

// SlotAt returns the generated slot that starts exactly at start.
func SlotAt(w Window, d time.Duration, booked []conflict.Interval, now, start time.Time) (Slot, bool) {
	for s := range Slots(w, d, booked, now) {
		if s.Start.Equal(start) {
			return s, true
		}
		if s.Start.After(start) {
			break
		}
	}
	return Slot{}, false
}

func Open(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.State == StateOpen {
			out = append(out, s)
		}
	}
	return out
}

// classify applies the precedence BREAK, BOOKED, PAST, OPEN.
func classify(iv conflict.Interval, breaks, booked []conflict.Interval, now time.Time) State {
	switch {
	case conflict.Any(iv, breaks):
		return StateBreak
	case conflict.Any(iv, booked):
		return StateBooked
	case iv.Start.Before(now):
		return StatePast
	default:
		return StateOpen
	}
}
