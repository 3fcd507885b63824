package lifecycle

import (
	"strings"

	"github.com/himsog/himsog/services/scheduling-service/internal/model"
)

type Reason struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

const ReasonOther = "OTHER"

var userReasons = []Reason{
	{Code: "SCHEDULE_CONFLICT", Label: "Schedule conflict"},
	{Code: "FEELING_BETTER", Label: "Feeling better"},
	{Code: "FOUND_ANOTHER_PROVIDER", Label: "Found another provider"},
	{Code: "TRANSPORTATION_ISSUE", Label: "Transportation issue"},
	{Code: "PERSONAL_EMERGENCY", Label: "Personal emergency"},
	{Code: ReasonOther, Label: "Other"},
}

var providerReasons = []Reason{
	{Code: "PROVIDER_UNAVAILABLE", Label: "Provider unavailable"},
	{Code: "MEDICAL_EMERGENCY", Label: "Medical emergency"},
	{Code: "SCHEDULE_CHANGE", Label: "Schedule change"},
	{Code: "FACILITY_ISSUE", Label: "Facility issue"},
	{Code: "PATIENT_REQUEST", Label: "Patient request"},
	{Code: ReasonOther, Label: "Other"},
}

// Reasons is the cancellation taxonomy offered to role. Admins cannot cancel
// and get none.
func Reasons(role model.Role) []Reason {
	switch role {
	case model.RoleUser:
		return append([]Reason(nil), userReasons...)
	case model.RoleProvider:
		return append([]Reason(nil), providerReasons...)
	case model.RoleAdmin:
		return nil
	default:
		return nil
	}
}

// CancellationReason renders the stored reason text. Codes outside the
// actor's taxonomy fall back to its "Other" label.
func CancellationReason(role model.Role, code, notes string) string {
	taxonomy := Reasons(role)
	label := "Other"
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, r := range taxonomy {
		if r.Code == ReasonOther {
			label = r.Label
		}
	}
	for _, r := range taxonomy {
		if r.Code == code {
			label = r.Label
			break
		}
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		return label + ": " + notes
	}
	return label
}
