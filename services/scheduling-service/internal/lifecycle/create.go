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
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Create books draft for p as a PENDING appointment. A non-empty
// idempotencyKey makes retries of the same request return the appointment
// the first attempt created.
func (s *Service) Create(ctx context.Context, p model.Principal, draft model.BookingDraft, idempotencyKey string) (appt model.Appointment, err error) {
	ctx, span := otelx.Start(ctx, tracer, "lifecycle.Create", attribute.String("provider.id", draft.ProviderID))
	defer func() { otelx.Finish(span, err) }()

	if p.Role != model.RoleUser || p.UserID == "" {
		return model.Appointment{}, apperr.Denied("only patients can book appointments")
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return model.Appointment{}, err
	}
	at := *draft.Time

	now := s.now()
	err = s.store.ReadWrite(ctx, func(ctx context.Context, q Queries) error {
		if idempotencyKey != "" {
			existing, err := q.LockIdempotencyKey(ctx, p.UserID, idempotencyKey)
			if err != nil {
				return fmt.Errorf("lock idempotency key: %w", err)
			}
			if existing != "" {
				appt, err = loadAppointment(ctx, q, existing, false)
				return err
			}
		}

		settings, err := providerSettings(ctx, q, draft.ProviderID)
		if err != nil {
			return err
		}
		services, err := q.ServicesByID(ctx, draft.ProviderID, draft.ServiceIDs)
		if err != nil {
			return fmt.Errorf("load services: %w", err)
		}
		lines, total, length, err := bookLines(draft.ServiceIDs, services)
		if err != nil {
			return err
		}

		w, err := loadWindow(ctx, q, draft.ProviderID, draft.Date, s.loc)
		if err != nil {
			return err
		}
		start := wallclock.Assemble(draft.Date, at, s.loc)
		candidate := conflict.Interval{Start: start, End: start.Add(length)}
		if !w.IsOpen {
			return apperr.Unavailable("provider is closed on %s", draft.Date)
		}

		booked, err := q.ActiveIntervals(ctx, draft.ProviderID, w.Open, w.Close)
		if err != nil {
			return fmt.Errorf("load booked intervals: %w", err)
		}
		slot, ok := availability.SlotAt(w, settings.SlotDuration(), booked, now, start)
		if !ok || slot.State != availability.StateOpen {
			return apperr.Unavailable("%s %s is not an open slot", draft.Date, at)
		}
		if !w.Contains(candidate) {
			return apperr.Unavailable("%s %s does not leave room for %s before the next break or closing", draft.Date, at, length)
		}
		if conflict.Any(candidate, booked) {
			return apperr.Unavailable("%s %s overlaps an existing appointment", draft.Date, at)
		}

		appt = model.Appointment{
			UserID:     p.UserID,
			ProviderID: draft.ProviderID,
			StartTime:  candidate.Start,
			EndTime:    candidate.End,
			Status:     model.StatusPending,
			Services:   lines,
			TotalPrice: total,
			Patient:    draft.Patient,
			Notes:      draft.Notes,
		}
		if err := q.InsertAppointment(ctx, &appt); err != nil {
			if errors.Is(err, ErrOverlap) {
				return err
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		if err := emit(ctx, q, EventCreated, appt, now); err != nil {
			return err
		}
		if idempotencyKey != "" {
			if err := q.SaveIdempotencyKey(ctx, p.UserID, idempotencyKey, appt.ID); err != nil {
				return fmt.Errorf("save idempotency key: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, ErrOverlap) {
		return model.Appointment{}, apperr.Unavailable("%s %s was just booked by someone else", draft.Date, at)
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// bookLines snapshots the requested services in request order and sums
// their price and duration.
func bookLines(ids []string, services []model.Service) ([]model.BookedService, decimal.Decimal, time.Duration, error) {
	byID := make(map[string]model.Service, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}

	lines := make([]model.BookedService, 0, len(ids))
	total := decimal.Zero
	minutes := 0
	for _, id := range ids {
		svc, ok := byID[id]
		if !ok {
			return nil, decimal.Zero, 0, apperr.Invalid("service %s is not offered by this provider", id)
		}
		if !svc.Active {
			return nil, decimal.Zero, 0, apperr.Invalid("service %s is no longer available", svc.Name)
		}
		lines = append(lines, model.BookedService{
			ServiceID:       svc.ID,
			Name:            svc.Name,
			PriceAtBooking:  svc.Price,
			DurationMinutes: svc.DurationMinutes,
		})
		total = total.Add(svc.Price)
		minutes += svc.DurationMinutes
	}
	if minutes <= 0 {
		return nil, decimal.Zero, 0, apperr.Invalid("selected services have no duration")
	}
	return lines, total, time.Duration(minutes) * time.Minute, nil
}

func emit(ctx context.Context, q Queries, eventType string, a model.Appointment, at time.Time) error {
	evt, err := appointmentEvent(eventType, a, at)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	if err := q.InsertEvent(ctx, evt); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
