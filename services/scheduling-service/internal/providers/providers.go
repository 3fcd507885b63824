// Package providers maintains the configuration that feeds the availability
// calendar: settings, weekly hours, breaks and the service catalog.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/availability"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// Settings returns lifecycle.ErrNotFound for unknown providers.
	Settings(ctx context.Context, providerID string) (model.ProviderSettings, error)
	// SaveSettings inserts or updates the provider row and sets UpdatedAt.
	SaveSettings(ctx context.Context, s *model.ProviderSettings) error
	WeeklyCalendar(ctx context.Context, providerID string) (availability.Calendar, error)
	// UpdateCalendar loads the calendar, lets fn edit it and stores the
	// result in one transaction. Nothing is stored when fn fails.
	UpdateCalendar(ctx context.Context, providerID string, fn func(cal *availability.Calendar) error) error
	CreateService(ctx context.Context, svc *model.Service) error
	ListServices(ctx context.Context, providerID string) ([]model.Service, error)
	// SetServiceActive returns lifecycle.ErrNotFound when serviceID is not
	// in providerID's catalog.
	SetServiceActive(ctx context.Context, providerID, serviceID string, active bool) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type SettingsInput struct {
	DisplayName         string `json:"displayName"`
	SlotDurationMinutes int    `json:"slotDurationMinutes"`
}

type ServiceInput struct {
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"durationMinutes"`
}

// UpdateSettings creates the provider on first use. A zero slot duration
// keeps the stored value, or the default for a new provider.
func (s *Service) UpdateSettings(ctx context.Context, p model.Principal, providerID string, in SettingsInput) (model.ProviderSettings, error) {
	if err := authorize(p, providerID); err != nil {
		return model.ProviderSettings{}, err
	}
	if m := in.SlotDurationMinutes; m != 0 && (m < model.MinSlotMinutes || m > model.MaxSlotMinutes) {
		return model.ProviderSettings{}, apperr.Invalid("slotDurationMinutes must be between %d and %d", model.MinSlotMinutes, model.MaxSlotMinutes)
	}

	current, err := s.repo.Settings(ctx, providerID)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		current = model.ProviderSettings{
			ProviderID:          providerID,
			OwnerUserID:         p.UserID,
			SlotDurationMinutes: model.DefaultSlotMinutes,
		}
	case err != nil:
		return model.ProviderSettings{}, fmt.Errorf("load provider settings: %w", err)
	}

	if name := strings.TrimSpace(in.DisplayName); name != "" {
		current.DisplayName = name
	}
	if in.SlotDurationMinutes != 0 {
		current.SlotDurationMinutes = in.SlotDurationMinutes
	}
	if err := s.repo.SaveSettings(ctx, &current); err != nil {
		return model.ProviderSettings{}, fmt.Errorf("save provider settings: %w", err)
	}
	return current, nil
}

func (s *Service) Calendar(ctx context.Context, p model.Principal, providerID string) (availability.Calendar, error) {
	if err := authorize(p, providerID); err != nil {
		return availability.Calendar{}, err
	}
	if err := s.exists(ctx, providerID); err != nil {
		return availability.Calendar{}, err
	}
	cal, err := s.repo.WeeklyCalendar(ctx, providerID)
	if err != nil {
		return availability.Calendar{}, fmt.Errorf("load calendar: %w", err)
	}
	availability.SortHours(cal.Hours)
	availability.SortBreaks(cal.Breaks)
	return cal, nil
}

// ReplaceHours swaps the weekly template. Existing breaks must still fit.
func (s *Service) ReplaceHours(ctx context.Context, p model.Principal, providerID string, hours []model.OperatingHours) (availability.Calendar, error) {
	for i := range hours {
		hours[i].ProviderID = providerID
	}
	if err := availability.ValidateHours(hours); err != nil {
		return availability.Calendar{}, err
	}
	return s.updateCalendar(ctx, p, providerID, func(cal *availability.Calendar) error {
		if err := availability.ValidateBreaks(hours, cal.Breaks); err != nil {
			return apperr.Invalid("existing breaks do not fit the new hours: %s", message(err))
		}
		cal.Hours = hours
		return nil
	})
}

// ReplaceBreaks swaps the full break set, recurring and dated.
func (s *Service) ReplaceBreaks(ctx context.Context, p model.Principal, providerID string, breaks []model.BreakTime) (availability.Calendar, error) {
	for i := range breaks {
		breaks[i].ProviderID = providerID
		breaks[i].Label = strings.TrimSpace(breaks[i].Label)
	}
	return s.updateCalendar(ctx, p, providerID, func(cal *availability.Calendar) error {
		if err := availability.ValidateBreaks(cal.Hours, breaks); err != nil {
			return err
		}
		cal.Breaks = breaks
		return nil
	})
}

func (s *Service) AddService(ctx context.Context, p model.Principal, providerID string, in ServiceInput) (model.Service, error) {
	if err := authorize(p, providerID); err != nil {
		return model.Service{}, err
	}
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return model.Service{}, apperr.Invalid("service name is required")
	case in.DurationMinutes <= 0:
		return model.Service{}, apperr.Invalid("durationMinutes must be positive")
	case in.Price.IsNegative():
		return model.Service{}, apperr.Invalid("price must not be negative")
	}
	if err := s.exists(ctx, providerID); err != nil {
		return model.Service{}, err
	}

	svc := model.Service{
		ProviderID:      providerID,
		Name:            name,
		Price:           in.Price,
		DurationMinutes: in.DurationMinutes,
		Active:          true,
	}
	if err := s.repo.CreateService(ctx, &svc); err != nil {
		return model.Service{}, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// RetireService hides a service from new bookings. Past bookings keep their
// line-item snapshot.
func (s *Service) RetireService(ctx context.Context, p model.Principal, providerID, serviceID string) error {
	if err := authorize(p, providerID); err != nil {
		return err
	}
	err := s.repo.SetServiceActive(ctx, providerID, serviceID, false)
	if errors.Is(err, lifecycle.ErrNotFound) {
		return apperr.Missing("service %s not found", serviceID)
	}
	if err != nil {
		return fmt.Errorf("retire service: %w", err)
	}
	return nil
}

// Services is the bookable catalog of a provider.
func (s *Service) Services(ctx context.Context, providerID string) ([]model.Service, error) {
	if err := s.exists(ctx, providerID); err != nil {
		return nil, err
	}
	all, err := s.repo.ListServices(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	out := make([]model.Service, 0, len(all))
	for _, svc := range all {
		if svc.Active {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (s *Service) updateCalendar(ctx context.Context, p model.Principal, providerID string, fn func(*availability.Calendar) error) (availability.Calendar, error) {
	if err := authorize(p, providerID); err != nil {
		return availability.Calendar{}, err
	}
	if err := s.exists(ctx, providerID); err != nil {
		return availability.Calendar{}, err
	}
	var out availability.Calendar
	err := s.repo.UpdateCalendar(ctx, providerID, func(cal *availability.Calendar) error {
		if err := fn(cal); err != nil {
			return err
		}
		out = *cal
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.Internal {
			return availability.Calendar{}, err
		}
		return availability.Calendar{}, fmt.Errorf("update calendar: %w", err)
	}
	availability.SortHours(out.Hours)
	availability.SortBreaks(out.Breaks)
	return out, nil
}

func (s *Service) exists(ctx context.Context, providerID string) error {
	_, err := s.repo.Settings(ctx, providerID)
	if errors.Is(err, lifecycle.ErrNotFound) {
		return apperr.Missing("provider %s not found", providerID)
	}
	if err != nil {
		return fmt.Errorf("load provider settings: %w", err)
	}
	return nil
}

// authorize admits the owning provider and admins.
func authorize(p model.Principal, providerID string) error {
	switch p.Role {
	case model.RoleProvider:
		if p.OwnsProvider(providerID) {
			return nil
		}
		return apperr.Denied("provider %s is managed by another account", providerID)
	case model.RoleAdmin:
		return nil
	case model.RoleUser:
		return apperr.Denied("only providers can change provider settings")
	default:
		return apperr.Denied("unknown role")
	}
}

func message(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
