package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	otelx "github.com/himsog/himsog/libs/otel"
	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/availability"
	"github.com/himsog/himsog/services/scheduling-service/internal/conflict"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
	"go.opentelemetry.io/otel/attribute"
)

// SlotListing is the generated slot sequence of one provider day.
type SlotListing struct {
	Window      availability.Window
	SlotMinutes int
	Slots       []availability.Slot
}

func (s *Service) Window(ctx context.Context, providerID string, date wallclock.Date) (w availability.Window, err error) {
	ctx, span := otelx.Start(ctx, tracer, "lifecycle.Window", attribute.String("provider.id", providerID))
	defer func() { otelx.Finish(span, err) }()

	err = s.store.ReadOnly(ctx, func(ctx context.Context, q Queries) error {
		if _, err := providerSettings(ctx, q, providerID); err != nil {
			return err
		}
		w, err = loadWindow(ctx, q, providerID, date, s.loc)
		return err
	})
	return w, err
}

func (s *Service) Slots(ctx context.Context, providerID string, date wallclock.Date) (out SlotListing, err error) {
	ctx, span := otelx.Start(ctx, tracer, "lifecycle.Slots", attribute.String("provider.id", providerID))
	defer func() { otelx.Finish(span, err) }()

	err = s.store.ReadOnly(ctx, func(ctx context.Context, q Queries) error {
		settings, err := providerSettings(ctx, q, providerID)
		if err != nil {
			return err
		}
		w, err := loadWindow(ctx, q, providerID, date, s.loc)
		if err != nil {
			return err
		}
		out.Window = w
		out.SlotMinutes = int(settings.SlotDuration() / time.Minute)
		if !w.IsOpen {
			return nil
		}
		booked, err := q.ActiveIntervals(ctx, providerID, w.Open, w.Close)
		if err != nil {
			return fmt.Errorf("load booked intervals: %w", err)
		}
		out.Slots = availability.GenerateSlots(w, settings.SlotDuration(), booked, s.now())
		return nil
	})
	return out, err
}

// HasConflict reports whether [start, end) overlaps an active appointment of
// providerID.
func (s *Service) HasConflict(ctx context.Context, providerID string, start, end time.Time) (bool, error) {
	candidate := conflict.Interval{Start: start, End: end}
	if !candidate.Valid() {
		return false, apperr.Invalid("start must be before end")
	}
	var hit bool
	err := s.store.ReadOnly(ctx, func(ctx context.Context, q Queries) error {
		booked, err := q.ActiveIntervals(ctx, providerID, start, end)
		if err != nil {
			return fmt.Errorf("load booked intervals: %w", err)
		}
		hit = conflict.Any(candidate, booked)
		return nil
	})
	return hit, err
}

// Get returns one appointment visible to p.
func (s *Service) Get(ctx context.Context, p model.Principal, id string) (model.Appointment, error) {
	var appt model.Appointment
	err := s.store.ReadOnly(ctx, func(ctx context.Context, q Queries) error {
		var err error
		appt, err = loadAppointment(ctx, q, id, false)
		if err != nil {
			return err
		}
		if !canView(p, appt) {
			return apperr.Denied("appointment %s is not visible to this account", id)
		}
		return nil
	})
	return appt, err
}

// List returns the caller's appointments: a user's own bookings, a
// provider's schedule, or everything for admins.
func (s *Service) List(ctx context.Context, p model.Principal, f ListFilter) ([]model.Appointment, error) {
	switch p.Role {
	case model.RoleUser:
		f.UserID, f.ProviderID = p.UserID, ""
	case model.RoleProvider:
		if p.ProviderID == "" {
			return nil, apperr.Denied("provider account is not linked to a provider")
		}
		f.ProviderID = p.ProviderID
	case model.RoleAdmin:
	default:
		return nil, apperr.Denied("unknown role")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Invalid("unknown status %q", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}

	var out []model.Appointment
	err := s.store.ReadOnly(ctx, func(ctx context.Context, q Queries) error {
		var err error
		out, err = q.ListAppointments(ctx, f)
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		return nil
	})
	return out, err
}

func providerSettings(ctx context.Context, q Queries, providerID string) (model.ProviderSettings, error) {
	settings, err := q.ProviderSettings(ctx, providerID)
	if errors.Is(err, ErrNotFound) {
		return model.ProviderSettings{}, apperr.Missing("provider %s not found", providerID)
	}
	if err != nil {
		return model.ProviderSettings{}, fmt.Errorf("load provider settings: %w", err)
	}
	return settings, nil
}

func loadWindow(ctx context.Context, q Queries, providerID string, date wallclock.Date, loc *time.Location) (availability.Window, error) {
	cal, err := q.Calendar(ctx, providerID, date)
	if err != nil {
		return availability.Window{}, fmt.Errorf("load calendar: %w", err)
	}
	return availability.WindowFor(cal, date, loc)
}

func loadAppointment(ctx context.Context, q Queries, id string, forUpdate bool) (model.Appointment, error) {
	appt, err := q.Appointment(ctx, id, forUpdate)
	if errors.Is(err, ErrNotFound) {
		return model.Appointment{}, apperr.Missing("appointment %s not found", id)
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func canView(p model.Principal, a model.Appointment) bool {
	switch p.Role {
	case model.RoleUser:
		return p.UserID != "" && a.UserID == p.UserID
	case model.RoleProvider:
		return p.OwnsProvider(a.ProviderID)
	case model.RoleAdmin:
		return true
	default:
		return false
	}
}
