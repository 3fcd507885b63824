package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
)

const idempotencyHeader = "Idempotency-Key"

type meView struct {
	UserID     string `json:"userId"`
	Role       string `json:"role"`
	ProviderID string `json:"providerId,omitempty"`
	HomePath   string `json:"homePath"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	respond(w, r, h.logger, http.StatusOK, meView{
		UserID:     p.UserID,
		Role:       p.Role.String(),
		ProviderID: p.ProviderID,
		HomePath:   p.Role.HomePath(),
	}, nil)
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	var draft model.BookingDraft
	if err := decodeJSON(r, &draft); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > 200 {
		fail(w, r, h.logger, apperr.Invalid("%s is too long", idempotencyHeader))
		return
	}

	appt, err := h.appointments.Create(r.Context(), p, draft, key)
	respond(w, r, h.logger, http.StatusCreated, toAppointmentView(appt), err)
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	appt, err := h.appointments.Get(r.Context(), p, r.PathValue("id"))
	respond(w, r, h.logger, http.StatusOK, toAppointmentView(appt), err)
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	f, err := listFilter(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	appts, err := h.appointments.List(r.Context(), p, f)
	respond(w, r, h.logger, http.StatusOK, toAppointmentViews(appts), err)
}

func listFilter(r *http.Request) (lifecycle.ListFilter, error) {
	q := r.URL.Query()
	var f lifecycle.ListFilter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		f.Status = model.Status(strings.ToUpper(raw))
		if !f.Status.Valid() {
			return f, apperr.Invalid("unknown status %q", raw)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, apperr.Invalid("limit must be a positive integer")
		}
		f.Limit = n
	}
	var err error
	if f.From, err = optionalTime(q.Get("from"), "from"); err != nil {
		return f, err
	}
	if f.To, err = optionalTime(q.Get("to"), "to"); err != nil {
		return f, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return f, apperr.Invalid("from must be before to")
	}
	return f, nil
}

func optionalTime(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Invalid("%s must be RFC 3339", name)
	}
	return t, nil
}

type cancelRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

func (h *Handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			fail(w, r, h.logger, err)
			return
		}
	}
	appt, err := h.appointments.Cancel(r.Context(), p, r.PathValue("id"), lifecycle.CancelRequest{
		Reason: req.Reason,
		Notes:  req.Notes,
	})
	respond(w, r, h.logger, http.StatusOK, toAppointmentView(appt), err)
}

func (h *Handler) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	appt, err := h.appointments.Confirm(r.Context(), p, r.PathValue("id"))
	respond(w, r, h.logger, http.StatusOK, toAppointmentView(appt), err)
}

func (h *Handler) completeAppointment(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	appt, err := h.appointments.Complete(r.Context(), p, r.PathValue("id"))
	respond(w, r, h.logger, http.StatusOK, toAppointmentView(appt), err)
}

// cancellationReasons lists the reason codes offered to ?actor=USER|PROVIDER.
func (h *Handler) cancellationReasons(w http.ResponseWriter, r *http.Request) {
	role, err := model.ParseRole(r.URL.Query().Get("actor"))
	if err != nil {
		fail(w, r, h.logger, apperr.Invalid("actor must be USER or PROVIDER"))
		return
	}
	reasons := lifecycle.Reasons(role)
	if reasons == nil {
		reasons = []lifecycle.Reason{}
	}
	respond(w, r, h.logger, http.StatusOK, reasons, nil)
}
