package model

import (
	"encoding/json"
	"strings"

	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
)

// BookingDraft carries a booking between the client's steps (pick date,
// pick services, fill contact details) and into create. It is a plain value
// that round-trips through JSON. Time is a pointer because 00:00 is a
// bookable time and must stay distinguishable from an omitted one.
type BookingDraft struct {
	ProviderID string           `json:"providerId"`
	Date       wallclock.Date   `json:"date"`
	Time       *wallclock.Clock `json:"time,omitempty"`
	ServiceIDs []string         `json:"serviceIds"`
	Patient    Patient          `json:"patient"`
	Notes      string           `json:"notes,omitempty"`
}

func DecodeDraft(b []byte) (BookingDraft, error) {
	var d BookingDraft
	if err := json.Unmarshal(b, &d); err != nil {
		return BookingDraft{}, apperr.Invalid("malformed booking draft: %v", err)
	}
	return d.Normalize(), nil
}

func (d BookingDraft) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// Normalize trims text fields and drops blank service ids.
func (d BookingDraft) Normalize() BookingDraft {
	d.ProviderID = strings.TrimSpace(d.ProviderID)
	d.Patient.Name = strings.TrimSpace(d.Patient.Name)
	d.Patient.Phone = strings.TrimSpace(d.Patient.Phone)
	d.Patient.Email = strings.TrimSpace(d.Patient.Email)
	d.Notes = strings.TrimSpace(d.Notes)

	ids := make([]string, 0, len(d.ServiceIDs))
	for _, id := range d.ServiceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	d.ServiceIDs = ids
	return d
}

func (d BookingDraft) Validate() error {
	switch {
	case d.ProviderID == "":
		return apperr.Invalid("providerId is required")
	case d.Date.IsZero():
		return apperr.Invalid("date is required")
	case d.Time == nil:
		return apperr.Invalid("time is required")
	case len(d.ServiceIDs) == 0:
		return apperr.Invalid("at least one service is required")
	case d.Patient.Name == "":
		return apperr.Invalid("patient name is required")
	}
	seen := make(map[string]struct{}, len(d.ServiceIDs))
	for _, id := range d.ServiceIDs {
		if _, dup := seen[id]; dup {
			return apperr.Invalid("service %s listed more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
