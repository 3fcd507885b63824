package providers_test

import (
	"context"
	"testing"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/memstore"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/providers"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
	"github.com/shopspring/decimal"
)

var (
	owner    = model.Principal{UserID: "u-prov", Role: model.RoleProvider, ProviderID: "prov-1"}
	stranger = model.Principal{UserID: "u-other", Role: model.RoleProvider, ProviderID: "prov-2"}
	patient  = model.Principal{UserID: "u-pat", Role: model.RoleUser}
	admin    = model.Principal{UserID: "u-admin", Role: model.RoleAdmin}
)

func hm(h, m int) wallclock.Clock { return wallclock.Clock{Hour: h, Minute: m} }

func newService(t *testing.T) *providers.Service {
	t.Helper()
	svc := providers.NewService(memstore.New())
	if _, err := svc.UpdateSettings(context.Background(), owner, "prov-1", providers.SettingsInput{DisplayName: "Clinica Uno"}); err != nil {
		t.Fatalf("create provider: %v", err)
	}
	return svc
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	got, err := svc.UpdateSettings(ctx, owner, "prov-1", providers.SettingsInput{SlotDurationMinutes: 20})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.SlotDurationMinutes != 20 || got.DisplayName != "Clinica Uno" || got.OwnerUserID != "u-prov" {
		t.Fatalf("unexpected settings %+v", got)
	}

	if _, err := svc.UpdateSettings(ctx, owner, "prov-1", providers.SettingsInput{SlotDurationMinutes: 3}); apperr.KindOf(err) != apperr.InvalidRequest {
		t.Fatalf("expected InvalidRequest for 3 minute slots, got %v", err)
	}
	if _, err := svc.UpdateSettings(ctx, stranger, "prov-1", providers.SettingsInput{DisplayName: "x"}); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("expected Forbidden for another provider, got %v", err)
	}
	if _, err := svc.UpdateSettings(ctx, patient, "prov-1", providers.SettingsInput{DisplayName: "x"}); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("expected Forbidden for a patient, got %v", err)
	}
	if _, err := svc.UpdateSettings(ctx, admin, "prov-1", providers.SettingsInput{DisplayName: "Clinica Dos"}); err != nil {
		t.Fatalf("admin update: %v", err)
	}
}

func TestReplaceHoursAndBreaks(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	hours := []model.OperatingHours{
		{Weekday: time.Monday, Start: hm(9, 0), End: hm(17, 0)},
		{Weekday: time.Sunday, IsClosed: true},
	}
	cal, err := svc.ReplaceHours(ctx, owner, "prov-1", hours)
	if err != nil {
		t.Fatalf("replace hours: %v", err)
	}
	if len(cal.Hours) != 2 || cal.Hours[0].Weekday != time.Sunday {
		t.Fatalf("expected sorted hours, got %+v", cal.Hours)
	}

	breaks := []model.BreakTime{{Weekday: time.Monday, Start: hm(12, 0), End: hm(13, 0), Label: " Lunch "}}
	cal, err = svc.ReplaceBreaks(ctx, owner, "prov-1", breaks)
	if err != nil {
		t.Fatalf("replace breaks: %v", err)
	}
	if len(cal.Breaks) != 1 || cal.Breaks[0].Label != "Lunch" || cal.Breaks[0].ID == "" {
		t.Fatalf("unexpected breaks %+v", cal.Breaks)
	}

	bad := []model.BreakTime{{Weekday: time.Monday, Start: hm(16, 30), End: hm(17, 30)}}
	if _, err := svc.ReplaceBreaks(ctx, owner, "prov-1", bad); apperr.KindOf(err) != apperr.InvalidRequest {
		t.Fatalf("expected InvalidRequest for break past closing, got %v", err)
	}

	shorter := []model.OperatingHours{{Weekday: time.Monday, Start: hm(9, 0), End: hm(12, 30)}}
	if _, err := svc.ReplaceHours(ctx, owner, "prov-1", shorter); apperr.KindOf(err) != apperr.InvalidRequest {
		t.Fatalf("expected InvalidRequest when lunch no longer fits, got %v", err)
	}

	cal, err = svc.Calendar(ctx, owner, "prov-1")
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if len(cal.Hours) != 2 || len(cal.Breaks) != 1 {
		t.Fatalf("rejected updates must not be stored, got %+v", cal)
	}
}

func TestUnknownProvider(t *testing.T) {
	svc := providers.NewService(memstore.New())
	_, err := svc.Services(context.Background(), "nope")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestServiceCatalog(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	created, err := svc.AddService(ctx, owner, "prov-1", providers.ServiceInput{Name: "Consultation", Price: decimal.RequireFromString("500.00"), DurationMinutes: 30})
	if err != nil {
		t.Fatalf("add service: %v", err)
	}
	if created.ID == "" || !created.Active {
		t.Fatalf("unexpected service %+v", created)
	}
	if _, err := svc.AddService(ctx, owner, "prov-1", providers.ServiceInput{Name: "Zero", DurationMinutes: 0}); apperr.KindOf(err) != apperr.InvalidRequest {
		t.Fatalf("expected InvalidRequest for zero duration, got %v", err)
	}
	if _, err := svc.AddService(ctx, owner, "prov-1", providers.ServiceInput{Name: "Refund", Price: decimal.NewFromInt(-1), DurationMinutes: 10}); apperr.KindOf(err) != apperr.InvalidRequest {
		t.Fatalf("expected InvalidRequest for negative price, got %v", err)
	}

	list, err := svc.Services(ctx, "prov-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one service, got %v %v", list, err)
	}

	if err := svc.RetireService(ctx, owner, "prov-1", created.ID); err != nil {
		t.Fatalf("retire: %v", err)
	}
	list, err = svc.Services(ctx, "prov-1")
	if err != nil || len(list) != 0 {
		t.Fatalf("retired service still listed: %v %v", list, err)
	}
	if err := svc.RetireService(ctx, owner, "prov-1", "missing"); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
