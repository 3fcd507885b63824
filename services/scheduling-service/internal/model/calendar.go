package model

import (
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
	"github.com/shopspring/decimal"
)

const (
	DefaultSlotMinutes = 30
	MinSlotMinutes     = 5
	MaxSlotMinutes     = 240
)

// OperatingHours is one weekday of a provider's weekly template.
// Start and End are meaningless when IsClosed is set.
type OperatingHours struct {
	ProviderID string
	Weekday    time.Weekday
	Start      wallclock.Clock
	End        wallclock.Clock
	IsClosed   bool
}

// BreakTime is an unbookable sub-interval. A nil Date means it recurs every
// Weekday; otherwise it applies to that date only.
type BreakTime struct {
	ID         string
	ProviderID string
	Weekday    time.Weekday
	Date       *wallclock.Date
	Start      wallclock.Clock
	End        wallclock.Clock
	Label      string
}

func (b BreakTime) AppliesTo(d wallclock.Date) bool {
	if b.Date != nil {
		return *b.Date == d
	}
	return b.Weekday == d.Weekday()
}

type ProviderSettings struct {
	ProviderID          string
	OwnerUserID         string
	DisplayName         string
	SlotDurationMinutes int
	UpdatedAt           time.Time
}

func (s ProviderSettings) SlotDuration() time.Duration {
	m := s.SlotDurationMinutes
	if m <= 0 {
		m = DefaultSlotMinutes
	}
	return time.Duration(m) * time.Minute
}

// Service is a bookable catalog entry.
type Service struct {
	ID              string
	ProviderID      string
	Name            string
	Price           decimal.Decimal
	DurationMinutes int
	Active          bool
	CreatedAt       time.Time
}
