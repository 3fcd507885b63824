// Package handlers exposes the scheduling core over JSON HTTP. Every body is
// a {success, data} or {success, error} envelope.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/himsog/himsog/libs/auth"
	"github.com/himsog/himsog/libs/httpx"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/providers"
)

type Handler struct {
	appointments *lifecycle.Service
	providers    *providers.Service
	logger       *slog.Logger
	now          func() time.Time
}

func New(appointments *lifecycle.Service, providerSvc *providers.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{appointments: appointments, providers: providerSvc, logger: logger, now: time.Now}
}

// Routes wires the API onto mux. authn must attach an auth.Identity; writes,
// when non-nil, wraps every state-changing route (rate limiting).
func (h *Handler) Routes(mux *http.ServeMux, authn, writes httpx.Middleware) {
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, fn)
	}
	read := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpx.Chain(fn, authn))
	}
	write := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpx.Chain(fn, authn, writes))
	}
	manage := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpx.Chain(fn, authn, auth.RequireRole("PROVIDER", "ADMIN"), writes))
	}

	public("GET /v1/providers/{providerID}/window", h.window)
	public("GET /v1/providers/{providerID}/slots", h.slots)
	public("GET /v1/providers/{providerID}/services", h.listServices)
	public("GET /v1/providers/{providerID}/conflicts", h.conflicts)
	public("GET /v1/cancellation-reasons", h.cancellationReasons)

	read("GET /v1/me", h.me)
	read("GET /v1/appointments", h.listAppointments)
	read("GET /v1/appointments/{id}", h.getAppointment)
	write("POST /v1/appointments", h.createAppointment)
	write("POST /v1/appointments/{id}/cancel", h.cancelAppointment)
	write("POST /v1/appointments/{id}/confirm", h.confirmAppointment)
	write("POST /v1/appointments/{id}/complete", h.completeAppointment)

	mux.Handle("GET /v1/providers/{providerID}/calendar",
		httpx.Chain(http.HandlerFunc(h.calendar), authn, auth.RequireRole("PROVIDER", "ADMIN")))
	manage("PUT /v1/providers/{providerID}/settings", h.updateSettings)
	manage("PUT /v1/providers/{providerID}/hours", h.replaceHours)
	manage("PUT /v1/providers/{providerID}/breaks", h.replaceBreaks)
	manage("POST /v1/providers/{providerID}/services", h.addService)
	manage("DELETE /v1/providers/{providerID}/services/{serviceID}", h.retireService)
}
