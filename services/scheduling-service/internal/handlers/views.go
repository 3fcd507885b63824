package handlers

import (
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/availability"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
	"github.com/shopspring/decimal"
)

type intervalView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type windowView struct {
	Date      wallclock.Date `json:"date"`
	IsOpen    bool           `json:"isOpen"`
	OpenTime  *time.Time     `json:"openTime,omitempty"`
	CloseTime *time.Time     `json:"closeTime,omitempty"`
	Breaks    []intervalView `json:"breaks"`
}

func toWindowView(w availability.Window) windowView {
	v := windowView{Date: w.Date, IsOpen: w.IsOpen, Breaks: []intervalView{}}
	if w.IsOpen {
		open, closing := w.Open, w.Close
		v.OpenTime, v.CloseTime = &open, &closing
	}
	for _, b := range w.Breaks {
		v.Breaks = append(v.Breaks, intervalView{Start: b.Start, End: b.End})
	}
	return v
}

type slotView struct {
	Start time.Time          `json:"start"`
	End   time.Time          `json:"end"`
	Time  wallclock.Clock    `json:"time"`
	State availability.State `json:"state"`
}

type slotsView struct {
	Window      windowView `json:"window"`
	SlotMinutes int        `json:"slotMinutes"`
	Slots       []slotView `json:"slots"`
}

func toSlotsView(date wallclock.Date, w availability.Window, minutes int, slots []availability.Slot, loc *time.Location) slotsView {
	v := slotsView{Window: toWindowView(w), SlotMinutes: minutes, Slots: make([]slotView, 0, len(slots))}
	v.Window.Date = date
	for _, s := range slots {
		local := s.Start.In(loc)
		v.Slots = append(v.Slots, slotView{
			Start: s.Start,
			End:   s.End,
			Time:  wallclock.Clock{Hour: local.Hour(), Minute: local.Minute()},
			State: s.State,
		})
	}
	return v
}

type bookedServiceView struct {
	ServiceID       string          `json:"serviceId"`
	Name            string          `json:"name"`
	PriceAtBooking  decimal.Decimal `json:"priceAtBooking"`
	DurationMinutes int             `json:"durationMinutes"`
}

type appointmentView struct {
	ID                 string              `json:"id"`
	AppointmentNumber  string              `json:"appointmentNumber"`
	UserID             string              `json:"userId"`
	ProviderID         string              `json:"providerId"`
	StartTime          time.Time           `json:"startTime"`
	EndTime            time.Time           `json:"endTime"`
	Status             model.Status        `json:"status"`
	Services           []bookedServiceView `json:"services"`
	TotalPrice         decimal.Decimal     `json:"totalPrice"`
	Patient            model.Patient       `json:"patient"`
	Notes              string              `json:"notes,omitempty"`
	CancellationReason string              `json:"cancellationReason,omitempty"`
	CancelledBy        string              `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time          `json:"cancelledAt,omitempty"`
	ConfirmedAt        *time.Time          `json:"confirmedAt,omitempty"`
	CompletedAt        *time.Time          `json:"completedAt,omitempty"`
	ReviewID           string              `json:"reviewId,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

func toAppointmentView(a model.Appointment) appointmentView {
	v := appointmentView{
		ID:                 a.ID,
		AppointmentNumber:  a.Number,
		UserID:             a.UserID,
		ProviderID:         a.ProviderID,
		StartTime:          a.StartTime.UTC(),
		EndTime:            a.EndTime.UTC(),
		Status:             a.Status,
		Services:           make([]bookedServiceView, 0, len(a.Services)),
		TotalPrice:         a.TotalPrice,
		Patient:            a.Patient,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CancelledBy:        a.CancelledBy,
		CancelledAt:        a.CancelledAt,
		ConfirmedAt:        a.ConfirmedAt,
		CompletedAt:        a.CompletedAt,
		ReviewID:           a.ReviewID,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	for _, s := range a.Services {
		v.Services = append(v.Services, bookedServiceView(s))
	}
	return v
}

func toAppointmentViews(appts []model.Appointment) []appointmentView {
	out := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentView(a))
	}
	return out
}

type serviceView struct {
	ID              string          `json:"id"`
	ProviderID      string          `json:"providerId"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"durationMinutes"`
	Active          bool            `json:"active"`
}

func toServiceView(s model.Service) serviceView {
	return serviceView{
		ID:              s.ID,
		ProviderID:      s.ProviderID,
		Name:            s.Name,
		Price:           s.Price,
		DurationMinutes: s.DurationMinutes,
		Active:          s.Active,
	}
}

type settingsView struct {
	ProviderID          string    `json:"providerId"`
	OwnerUserID         string    `json:"ownerUserId"`
	DisplayName         string    `json:"displayName"`
	SlotDurationMinutes int       `json:"slotDurationMinutes"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func toSettingsView(s model.ProviderSettings) settingsView {
	return settingsView(s)
}

type hoursView struct {
	Weekday  int    `json:"weekday"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	IsClosed bool   `json:"isClosed"`
}

type breakView struct {
	ID      string `json:"id,omitempty"`
	Weekday *int   `json:"weekday,omitempty"`
	Date    string `json:"date,omitempty"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Label   string `json:"label,omitempty"`
}

type calendarView struct {
	Hours  []hoursView `json:"hours"`
	Breaks []breakView `json:"breaks"`
}

func toCalendarView(cal availability.Calendar) calendarView {
	v := calendarView{Hours: []hoursView{}, Breaks: []breakView{}}
	for _, h := range cal.Hours {
		hv := hoursView{Weekday: int(h.Weekday), IsClosed: h.IsClosed}
		if !h.IsClosed {
			hv.Start, hv.End = h.Start.String(), h.End.String()
		}
		v.Hours = append(v.Hours, hv)
	}
	for _, b := range cal.Breaks {
		day := int(b.Weekday)
		bv := breakView{ID: b.ID, Weekday: &day, Start: b.Start.String(), End: b.End.String(), Label: b.Label}
		if b.Date != nil {
			bv.Date = b.Date.String()
		}
		v.Breaks = append(v.Breaks, bv)
	}
	return v
}

func (v hoursView) toModel() (model.OperatingHours, error) {
	h := model.OperatingHours{Weekday: time.Weekday(v.Weekday), IsClosed: v.IsClosed}
	if v.IsClosed {
		return h, nil
	}
	var err error
	if h.Start, err = wallclock.ParseClock(v.Start); err != nil {
		return h, apperr.Invalid("weekday %d start: %v", v.Weekday, err)
	}
	if h.End, err = wallclock.ParseClock(v.End); err != nil {
		return h, apperr.Invalid("weekday %d end: %v", v.Weekday, err)
	}
	return h, nil
}

// toModel reads a break row. A dated break may omit its weekday.
func (v breakView) toModel() (model.BreakTime, error) {
	var b model.BreakTime
	b.Label = v.Label
	if v.Date != "" {
		d, err := wallclock.ParseDate(v.Date)
		if err != nil {
			return b, apperr.Invalid("break date: %v", err)
		}
		b.Date = &d
		b.Weekday = d.Weekday()
	}
	switch {
	case v.Weekday != nil:
		if *v.Weekday < 0 || *v.Weekday > 6 {
			return b, apperr.Invalid("weekday %d out of range", *v.Weekday)
		}
		b.Weekday = time.Weekday(*v.Weekday)
	case v.Date == "":
		return b, apperr.Invalid("break needs a weekday or a date")
	}
	var err error
	if b.Start, err = wallclock.ParseClock(v.Start); err != nil {
		return b, apperr.Invalid("break start: %v", err)
	}
	if b.End, err = wallclock.ParseClock(v.End); err != nil {
		return b, apperr.Invalid("break end: %v", err)
	}
	return b, nil
}
