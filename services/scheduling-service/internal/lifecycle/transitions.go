package lifecycle

import (
	"context"
	"fmt"
	"time"

	otelx "github.com/himsog/himsog/libs/otel"
	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

// CancelRequest carries the actor's reason code and free-text notes.
type CancelRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// Cancel moves a PENDING or CONFIRMED appointment to CANCELLED on behalf of
// the booking user or the owning provider.
func (s *Service) Cancel(ctx context.Context, p model.Principal, id string, req CancelRequest) (appt model.Appointment, err error) {
	ctx, span := otelx.Start(ctx, tracer, "lifecycle.Cancel", attribute.String("appointment.id", id))
	defer func() { otelx.Finish(span, err) }()

	now := s.now()
	err = s.store.ReadWrite(ctx, func(ctx context.Context, q Queries) error {
		appt, err = loadAppointment(ctx, q, id, true)
		if err != nil {
			return err
		}
		if !p.Role.CanCancel() || !canView(p, appt) {
			return apperr.Denied("not allowed to cancel appointment %s", id)
		}
		if appt.Status.Terminal() {
			return apperr.Terminal("appointment %s is already %s", id, appt.Status)
		}

		appt.Status = model.StatusCancelled
		appt.CancelledAt = &now
		appt.CancelledBy = p.Role.String()
		appt.CancellationReason = CancellationReason(p.Role, req.Reason, req.Notes)
		return apply(ctx, q, &appt, EventCancelled, now)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Confirm moves PENDING to CONFIRMED. Only the owning provider may confirm.
func (s *Service) Confirm(ctx context.Context, p model.Principal, id string) (appt model.Appointment, err error) {
	ctx, span := otelx.Start(ctx, tracer, "lifecycle.Confirm", attribute.String("appointment.id", id))
	defer func() { otelx.Finish(span, err) }()

	return s.providerTransition(ctx, p, id, model.StatusPending, model.StatusConfirmed, EventConfirmed)
}

// Complete moves CONFIRMED to COMPLETED. Only the owning provider may complete.
func (s *Service) Complete(ctx context.Context, p model.Principal, id string) (appt model.Appointment, err error) {
	ctx, span := otelx.Start(ctx, tracer, "lifecycle.Complete", attribute.String("appointment.id", id))
	defer func() { otelx.Finish(span, err) }()

	return s.providerTransition(ctx, p, id, model.StatusConfirmed, model.StatusCompleted, EventCompleted)
}

func (s *Service) providerTransition(ctx context.Context, p model.Principal, id string, from, to model.Status, eventType string) (model.Appointment, error) {
	if p.Role != model.RoleProvider {
		return model.Appointment{}, apperr.Denied("only the provider can mark an appointment %s", to)
	}

	now := s.now()
	var appt model.Appointment
	err := s.store.ReadWrite(ctx, func(ctx context.Context, q Queries) error {
		var err error
		appt, err = loadAppointment(ctx, q, id, true)
		if err != nil {
			return err
		}
		if !p.OwnsProvider(appt.ProviderID) {
			return apperr.Denied("appointment %s belongs to another provider", id)
		}
		if appt.Status.Terminal() {
			return apperr.Terminal("appointment %s is already %s", id, appt.Status)
		}
		if appt.Status != from {
			return apperr.Invalid("appointment %s is %s, expected %s", id, appt.Status, from)
		}

		appt.Status = to
		switch to {
		case model.StatusConfirmed:
			appt.ConfirmedAt = &now
		case model.StatusCompleted:
			appt.CompletedAt = &now
		}
		return apply(ctx, q, &appt, eventType, now)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func apply(ctx context.Context, q Queries, appt *model.Appointment, eventType string, at time.Time) error {
	if err := q.UpdateAppointment(ctx, appt); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return emit(ctx, q, eventType, *appt, at)
}
