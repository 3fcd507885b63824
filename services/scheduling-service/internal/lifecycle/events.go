package lifecycle

import (
	"encoding/json"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/outbox"
	"github.com/shopspring/decimal"
)

const (
	EventCreated   = "himsog.appointment.created.v1"
	EventConfirmed = "himsog.appointment.confirmed.v1"
	EventCancelled = "himsog.appointment.cancelled.v1"
	EventCompleted = "himsog.appointment.completed.v1"
	EventNoShow    = "himsog.appointment.no_show.v1"

	aggregateAppointment = "appointment"
)

// AppointmentEvent is the JSON payload of every appointment event.
type AppointmentEvent struct {
	AppointmentID     string          `json:"appointmentId"`
	AppointmentNumber string          `json:"appointmentNumber"`
	UserID            string          `json:"userId"`
	ProviderID        string          `json:"providerId"`
	Status            model.Status    `json:"status"`
	StartTime         time.Time       `json:"startTime"`
	EndTime           time.Time       `json:"endTime"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	ServiceIDs        []string        `json:"serviceIds,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	CancelledBy       string          `json:"cancelledBy,omitempty"`
	OccurredAt        time.Time       `json:"occurredAt"`
}

func appointmentEvent(eventType string, a model.Appointment, at time.Time) (outbox.Event, error) {
	payload := AppointmentEvent{
		AppointmentID:     a.ID,
		AppointmentNumber: a.Number,
		UserID:            a.UserID,
		ProviderID:        a.ProviderID,
		Status:            a.Status,
		StartTime:         a.StartTime.UTC(),
		EndTime:           a.EndTime.UTC(),
		TotalPrice:        a.TotalPrice,
		Reason:            a.CancellationReason,
		CancelledBy:       a.CancelledBy,
		OccurredAt:        at.UTC(),
	}
	for _, s := range a.Services {
		payload.ServiceIDs = append(payload.ServiceIDs, s.ServiceID)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: aggregateAppointment,
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}
