package memstore

import (
	"context"
	"slices"
	"sort"

	"github.com/google/uuid"
	"github.com/himsog/himsog/services/scheduling-service/internal/availability"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/providers"
)

var _ providers.Repository = (*Store)(nil)

func (s *Store) Settings(_ context.Context, providerID string) (model.ProviderSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[providerID]
	if !ok {
		return model.ProviderSettings{}, lifecycle.ErrNotFound
	}
	return p, nil
}

func (s *Store) SaveSettings(_ context.Context, p *model.ProviderSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = s.Now().UTC()
	s.providers[p.ProviderID] = *p
	return nil
}

func (s *Store) WeeklyCalendar(_ context.Context, providerID string) (availability.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return availability.Calendar{
		Hours:  slices.Clone(s.hours[providerID]),
		Breaks: slices.Clone(s.breaks[providerID]),
	}, nil
}

func (s *Store) UpdateCalendar(_ context.Context, providerID string, fn func(*availability.Calendar) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal := availability.Calendar{
		Hours:  slices.Clone(s.hours[providerID]),
		Breaks: slices.Clone(s.breaks[providerID]),
	}
	if err := fn(&cal); err != nil {
		return err
	}
	for i := range cal.Breaks {
		if cal.Breaks[i].ID == "" {
			cal.Breaks[i].ID = uuid.NewString()
		}
	}
	s.hours[providerID] = slices.Clone(cal.Hours)
	s.breaks[providerID] = slices.Clone(cal.Breaks)
	return nil
}

func (s *Store) CreateService(_ context.Context, svc *model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc.ID = uuid.NewString()
	svc.CreatedAt = s.Now().UTC()
	s.services[svc.ID] = *svc
	return nil
}

func (s *Store) ListServices(_ context.Context, providerID string) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Service
	for _, svc := range s.services {
		if svc.ProviderID == providerID {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) SetServiceActive(_ context.Context, providerID, serviceID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.ProviderID != providerID {
		return lifecycle.ErrNotFound
	}
	svc.Active = active
	s.services[serviceID] = svc
	return nil
}
