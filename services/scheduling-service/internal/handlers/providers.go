package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/providers"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
)

// date reads ?date=YYYY-MM-DD, defaulting to today in the provider zone.
func (h *Handler) date(r *http.Request) (wallclock.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return wallclock.Today(h.now(), h.appointments.Location()), nil
	}
	d, err := wallclock.ParseDate(raw)
	if err != nil {
		return wallclock.Date{}, apperr.Invalid("date must be YYYY-MM-DD")
	}
	return d, nil
}

func (h *Handler) window(w http.ResponseWriter, r *http.Request) {
	d, err := h.date(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	win, err := h.appointments.Window(r.Context(), r.PathValue("providerID"), d)
	v := toWindowView(win)
	v.Date = d
	respond(w, r, h.logger, http.StatusOK, v, err)
}

func (h *Handler) slots(w http.ResponseWriter, r *http.Request) {
	d, err := h.date(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	listing, err := h.appointments.Slots(r.Context(), r.PathValue("providerID"), d)
	v := toSlotsView(d, listing.Window, listing.SlotMinutes, listing.Slots, h.appointments.Location())
	respond(w, r, h.logger, http.StatusOK, v, err)
}

type conflictView struct {
	Conflict bool `json:"conflict"`
}

func (h *Handler) conflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		fail(w, r, h.logger, apperr.Invalid("start must be RFC 3339"))
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		fail(w, r, h.logger, apperr.Invalid("end must be RFC 3339"))
		return
	}
	found, err := h.appointments.HasConflict(r.Context(), r.PathValue("providerID"), start, end)
	respond(w, r, h.logger, http.StatusOK, conflictView{Conflict: found}, err)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.providers.Services(r.Context(), r.PathValue("providerID"))
	out := make([]serviceView, 0, len(services))
	for _, s := range services {
		out = append(out, toServiceView(s))
	}
	respond(w, r, h.logger, http.StatusOK, out, err)
}

func (h *Handler) addService(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	var in providers.ServiceInput
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	svc, err := h.providers.AddService(r.Context(), p, r.PathValue("providerID"), in)
	respond(w, r, h.logger, http.StatusCreated, toServiceView(svc), err)
}

func (h *Handler) retireService(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	serviceID := r.PathValue("serviceID")
	err = h.providers.RetireService(r.Context(), p, r.PathValue("providerID"), serviceID)
	respond(w, r, h.logger, http.StatusOK, map[string]string{"serviceId": serviceID}, err)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	var in providers.SettingsInput
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	settings, err := h.providers.UpdateSettings(r.Context(), p, r.PathValue("providerID"), in)
	respond(w, r, h.logger, http.StatusOK, toSettingsView(settings), err)
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	cal, err := h.providers.Calendar(r.Context(), p, r.PathValue("providerID"))
	respond(w, r, h.logger, http.StatusOK, toCalendarView(cal), err)
}

func (h *Handler) replaceHours(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	var body struct {
		Hours []hoursView `json:"hours"`
	}
	if err := decodeJSON(r, &body); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	hours := make([]model.OperatingHours, 0, len(body.Hours))
	for _, v := range body.Hours {
		oh, err := v.toModel()
		if err != nil {
			fail(w, r, h.logger, err)
			return
		}
		hours = append(hours, oh)
	}
	cal, err := h.providers.ReplaceHours(r.Context(), p, r.PathValue("providerID"), hours)
	respond(w, r, h.logger, http.StatusOK, toCalendarView(cal), err)
}

func (h *Handler) replaceBreaks(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	var body struct {
		Breaks []breakView `json:"breaks"`
	}
	if err := decodeJSON(r, &body); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	breaks := make([]model.BreakTime, 0, len(body.Breaks))
	for _, v := range body.Breaks {
		b, err := v.toModel()
		if err != nil {
			fail(w, r, h.logger, err)
			return
		}
		breaks = append(breaks, b)
	}
	cal, err := h.providers.ReplaceBreaks(r.Context(), p, r.PathValue("providerID"), breaks)
	respond(w, r, h.logger, http.StatusOK, toCalendarView(cal), err)
}
