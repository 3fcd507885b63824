package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/availability"
	"github.com/himsog/himsog/services/scheduling-service/internal/conflict"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/outbox"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
)

var (
	// ErrNotFound is returned by Queries lookups that match no row.
	ErrNotFound = errors.New("lifecycle: not found")
	// ErrOverlap is returned when storage rejects an appointment because it
	// overlaps an active one of the same provider. It may surface from
	// InsertAppointment or from the commit.
	ErrOverlap = errors.New("lifecycle: overlapping appointment")
)

// Store runs fn inside one transaction. ReadWrite commits when fn returns
// nil and rolls back otherwise.
type Store interface {
	ReadOnly(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
	ReadWrite(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
}

// Queries is the transactional view of the scheduling tables.
type Queries interface {
	ProviderSettings(ctx context.Context, providerID string) (model.ProviderSettings, error)
	// Calendar returns the weekly hours plus the breaks that may apply on date.
	Calendar(ctx context.Context, providerID string, date wallclock.Date) (availability.Calendar, error)
	ServicesByID(ctx context.Context, providerID string, ids []string) ([]model.Service, error)
	// ActiveIntervals lists PENDING, CONFIRMED and COMPLETED appointments of
	// providerID that overlap [from, to).
	ActiveIntervals(ctx context.Context, providerID string, from, to time.Time) ([]conflict.Interval, error)

	// InsertAppointment assigns ID, Number, CreatedAt and UpdatedAt.
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	Appointment(ctx context.Context, id string, forUpdate bool) (model.Appointment, error)
	// UpdateAppointment persists status and the transition timestamps.
	UpdateAppointment(ctx context.Context, a *model.Appointment) error
	ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	// DueForSweep locks up to limit PENDING or CONFIRMED rows ending before
	// cutoff, skipping rows locked by other transactions.
	DueForSweep(ctx context.Context, cutoff time.Time, limit int) ([]model.Appointment, error)

	// LockIdempotencyKey claims key for userID and returns the appointment
	// a previous request with the same key created, or "".
	LockIdempotencyKey(ctx context.Context, userID, key string) (string, error)
	SaveIdempotencyKey(ctx context.Context, userID, key, appointmentID string) error

	InsertEvent(ctx context.Context, evt outbox.Event) error
}

type ListFilter struct {
	UserID     string
	ProviderID string
	Status     model.Status
	From       time.Time
	To         time.Time
	Limit      int
}
