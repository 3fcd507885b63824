package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

// Terminal statuses have no outgoing transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

type Patient struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// BookedService is a line item frozen at booking time.
type BookedService struct {
	ServiceID       string
	Name            string
	PriceAtBooking  decimal.Decimal
	DurationMinutes int
}

type Appointment struct {
	ID                 string
	Number             string
	UserID             string
	ProviderID         string
	StartTime          time.Time
	EndTime            time.Time
	Status             Status
	Services           []BookedService
	TotalPrice         decimal.Decimal
	Patient            Patient
	Notes              string
	CancellationReason string
	CancelledBy        string
	CancelledAt        *time.Time
	ConfirmedAt        *time.Time
	CompletedAt        *time.Time
	ReviewID           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}
