package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/himsog/himsog/libs/auth"
	"github.com/himsog/himsog/libs/httpx"
	"github.com/himsog/himsog/services/scheduling-service/internal/apperr"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/memstore"
	"github.com/himsog/himsog/services/scheduling-service/internal/providers"
)

const (
	testSecret = "test-secret"
	testIssuer = "himsog-test"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	store   *memstore.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	now := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	store := memstore.New()
	store.Now = func() time.Time { return now }

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := lifecycle.NewService(store, lifecycle.Options{
		Location: time.FixedZone("UTC+08:00", 8*3600),
		Now:      func() time.Time { return now },
		Logger:   logger,
	})
	h := New(svc, providers.NewService(store), logger)
	h.now = func() time.Time { return now }

	mux := http.NewServeMux()
	h.Routes(mux, auth.RequireAuth(auth.NewVerifier(testSecret, nil, testIssuer)), nil)
	return &testAPI{t: t, handler: httpx.Chain(mux, httpx.WithRequestID), store: store}
}

func token(t *testing.T, subject, role, providerID string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		Role:       role,
		ProviderID: providerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (a *testAPI) do(method, path, tok string, body any, headers ...string) (int, envelope) {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rw := httptest.NewRecorder()
	a.handler.ServeHTTP(rw, req)

	var env envelope
	if err := json.Unmarshal(rw.Body.Bytes(), &env); err != nil {
		a.t.Fatalf("%s %s: undecodable body %q: %v", method, path, rw.Body.String(), err)
	}
	return rw.Code, env
}

func (a *testAPI) mustDo(want int, method, path, tok string, body any, out any, headers ...string) {
	a.t.Helper()
	code, env := a.do(method, path, tok, body, headers...)
	if code != want || !env.Success {
		a.t.Fatalf("%s %s: expected %d success, got %d %+v", method, path, want, code, env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			a.t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
}

func (a *testAPI) expectFailure(want int, kind apperr.Kind, method, path, tok string, body any) {
	a.t.Helper()
	code, env := a.do(method, path, tok, body)
	if code != want || env.Success || env.Error == nil || env.Error.Kind != string(kind) {
		a.t.Fatalf("%s %s: expected %d %s, got %d %+v", method, path, want, kind, code, env.Error)
	}
	if len(env.Data) != 0 {
		a.t.Fatalf("%s %s: failure envelope carries data %s", method, path, env.Data)
	}
}

type slotsResponse struct {
	SlotMinutes int `json:"slotMinutes"`
	Slots       []struct {
		Start time.Time `json:"start"`
		Time  string    `json:"time"`
		State string    `json:"state"`
	} `json:"slots"`
}

func (s slotsResponse) count(state string) int {
	n := 0
	for _, slot := range s.Slots {
		if slot.State == state {
			n++
		}
	}
	return n
}

func (s slotsResponse) stateAt(clock string) string {
	for _, slot := range s.Slots {
		if slot.Time == clock {
			return slot.State
		}
	}
	return ""
}

type appointmentResponse struct {
	ID                 string    `json:"id"`
	AppointmentNumber  string    `json:"appointmentNumber"`
	StartTime          time.Time `json:"startTime"`
	EndTime            time.Time `json:"endTime"`
	Status             string    `json:"status"`
	TotalPrice         string    `json:"totalPrice"`
	CancellationReason string    `json:"cancellationReason"`
	CancelledBy        string    `json:"cancelledBy"`
}

// configure sets up prov-1 over the API and returns the consultation id.
func (a *testAPI) configure(providerTok string) string {
	a.t.Helper()
	a.mustDo(http.StatusOK, http.MethodPut, "/v1/providers/prov-1/settings", providerTok,
		map[string]any{"displayName": "Clinica Uno", "slotDurationMinutes": 30}, nil)
	a.mustDo(http.StatusOK, http.MethodPut, "/v1/providers/prov-1/hours", providerTok, map[string]any{
		"hours": []map[string]any{
			{"weekday": 1, "start": "09:00", "end": "17:00"},
			{"weekday": 0, "isClosed": true},
		},
	}, nil)
	a.mustDo(http.StatusOK, http.MethodPut, "/v1/providers/prov-1/breaks", providerTok, map[string]any{
		"breaks": []map[string]any{{"weekday": 1, "start": "12:00", "end": "13:00", "label": "Lunch"}},
	}, nil)

	var svc struct {
		ID string `json:"id"`
	}
	a.mustDo(http.StatusCreated, http.MethodPost, "/v1/providers/prov-1/services", providerTok,
		map[string]any{"name": "Consultation", "price": "500.00", "durationMinutes": 30}, &svc)
	return svc.ID
}

func TestHTTPBookingFlow(t *testing.T) {
	a := newTestAPI(t)
	providerTok := token(t, "u-prov", "provider", "prov-1")
	aliceTok := token(t, "u-alice", "user", "")
	bobTok := token(t, "u-bob", "user", "")
	consult := a.configure(providerTok)

	var before slotsResponse
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/providers/prov-1/slots?date=2025-03-10", "", nil, &before)
	if len(before.Slots) != 16 || before.count("OPEN") != 14 || before.count("BREAK") != 2 {
		t.Fatalf("expected 16 slots with 14 open and 2 break, got %d/%d/%d",
			len(before.Slots), before.count("OPEN"), before.count("BREAK"))
	}
	if before.Slots[0].Time != "09:00" || before.SlotMinutes != 30 {
		t.Fatalf("unexpected first slot %+v", before.Slots[0])
	}

	draft := map[string]any{
		"providerId": "prov-1",
		"date":       "2025-03-10",
		"time":       "10:00",
		"serviceIds": []string{consult},
		"patient":    map[string]any{"name": "Juan Dela Cruz"},
	}
	var created appointmentResponse
	a.mustDo(http.StatusCreated, http.MethodPost, "/v1/appointments", aliceTok, draft, &created, "Idempotency-Key", "k-1")
	if created.AppointmentNumber != "HIM-00000001" || created.Status != "PENDING" || created.TotalPrice != "500" {
		t.Fatalf("unexpected appointment %+v", created)
	}
	if want := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC); !created.StartTime.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, created.StartTime)
	}

	var replay appointmentResponse
	a.mustDo(http.StatusCreated, http.MethodPost, "/v1/appointments", aliceTok, draft, &replay, "Idempotency-Key", "k-1")
	if replay.ID != created.ID {
		t.Fatalf("idempotent replay created %s, want %s", replay.ID, created.ID)
	}

	a.expectFailure(http.StatusConflict, apperr.SlotUnavailable, http.MethodPost, "/v1/appointments", bobTok, draft)

	var after slotsResponse
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/providers/prov-1/slots?date=2025-03-10", "", nil, &after)
	if after.stateAt("10:00") != "BOOKED" || after.count("OPEN") != 13 {
		t.Fatalf("expected 10:00 booked and 13 open, got %s/%d", after.stateAt("10:00"), after.count("OPEN"))
	}

	var conflict struct {
		Conflict bool `json:"conflict"`
	}
	a.mustDo(http.StatusOK, http.MethodGet,
		"/v1/providers/prov-1/conflicts?start=2025-03-10T02:15:00Z&end=2025-03-10T02:45:00Z", "", nil, &conflict)
	if !conflict.Conflict {
		t.Fatal("expected overlap with the 10:00 booking")
	}

	var confirmed appointmentResponse
	a.mustDo(http.StatusOK, http.MethodPost, "/v1/appointments/"+created.ID+"/confirm", providerTok, nil, &confirmed)
	if confirmed.Status != "CONFIRMED" {
		t.Fatalf("expected CONFIRMED, got %s", confirmed.Status)
	}

	a.expectFailure(http.StatusForbidden, apperr.Forbidden, http.MethodGet, "/v1/appointments/"+created.ID, bobTok, nil)

	var cancelled appointmentResponse
	a.mustDo(http.StatusOK, http.MethodPost, "/v1/appointments/"+created.ID+"/cancel", aliceTok,
		map[string]string{"reason": "SCHEDULE_CONFLICT", "notes": "work trip"}, &cancelled)
	if cancelled.Status != "CANCELLED" || cancelled.CancelledBy != "USER" || cancelled.CancellationReason == "" {
		t.Fatalf("unexpected cancelled appointment %+v", cancelled)
	}
	a.expectFailure(http.StatusConflict, apperr.AlreadyTerminal, http.MethodPost, "/v1/appointments/"+created.ID+"/cancel", aliceTok, nil)

	var mine []appointmentResponse
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/appointments?status=cancelled", aliceTok, nil, &mine)
	if len(mine) != 1 || mine[0].ID != created.ID {
		t.Fatalf("expected alice's cancelled appointment, got %+v", mine)
	}
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/appointments", bobTok, nil, &mine)
	if len(mine) != 0 {
		t.Fatalf("bob sees %d appointments", len(mine))
	}

	if n := len(a.store.Events()); n != 3 {
		t.Fatalf("expected created, confirmed and cancelled events, got %d", n)
	}
}

func TestHTTPAccessControl(t *testing.T) {
	a := newTestAPI(t)
	providerTok := token(t, "u-prov", "provider", "prov-1")
	rivalTok := token(t, "u-rival", "provider", "prov-2")
	aliceTok := token(t, "u-alice", "user", "")
	a.configure(providerTok)

	code, _ := a.do(http.MethodPost, "/v1/appointments", "", map[string]any{})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", code)
	}
	code, env := a.do(http.MethodPut, "/v1/providers/prov-1/hours", aliceTok, map[string]any{"hours": []any{}})
	if code != http.StatusForbidden || env.Success {
		t.Fatalf("expected 403 for a user editing hours, got %d", code)
	}

	a.expectFailure(http.StatusForbidden, apperr.Forbidden, http.MethodPut, "/v1/providers/prov-1/breaks", rivalTok,
		map[string]any{"breaks": []any{}})
	a.expectFailure(http.StatusForbidden, apperr.Forbidden, http.MethodPost, "/v1/appointments", providerTok,
		map[string]any{"providerId": "prov-1"})
	a.expectFailure(http.StatusForbidden, apperr.Forbidden, http.MethodGet, "/v1/me", token(t, "u-x", "nurse", ""), nil)
}

func TestHTTPRequestErrors(t *testing.T) {
	a := newTestAPI(t)
	providerTok := token(t, "u-prov", "provider", "prov-1")
	aliceTok := token(t, "u-alice", "user", "")
	consult := a.configure(providerTok)

	cases := []struct {
		name   string
		method string
		path   string
		tok    string
		body   any
		status int
		kind   apperr.Kind
	}{
		{"bad date", http.MethodGet, "/v1/providers/prov-1/slots?date=10-03-2025", "", nil, http.StatusBadRequest, apperr.InvalidRequest},
		{"unknown provider", http.MethodGet, "/v1/providers/nope/slots?date=2025-03-10", "", nil, http.StatusNotFound, apperr.NotFound},
		{"unknown provider services", http.MethodGet, "/v1/providers/nope/services", "", nil, http.StatusNotFound, apperr.NotFound},
		{"bad status filter", http.MethodGet, "/v1/appointments?status=LOST", aliceTok, nil, http.StatusBadRequest, apperr.InvalidRequest},
		{"bad limit", http.MethodGet, "/v1/appointments?limit=-1", aliceTok, nil, http.StatusBadRequest, apperr.InvalidRequest},
		{"empty draft", http.MethodPost, "/v1/appointments", aliceTok, map[string]any{}, http.StatusBadRequest, apperr.InvalidRequest},
		{"draft without time", http.MethodPost, "/v1/appointments", aliceTok, map[string]any{
			"providerId": "prov-1",
			"date":       "2025-03-10",
			"serviceIds": []string{consult},
			"patient":    map[string]any{"name": "Alice"},
		}, http.StatusBadRequest, apperr.InvalidRequest},
		{"bad clock", http.MethodPut, "/v1/providers/prov-1/hours", providerTok,
			map[string]any{"hours": []map[string]any{{"weekday": 1, "start": "9am", "end": "17:00"}}}, http.StatusBadRequest, apperr.InvalidRequest},
		{"break outside hours", http.MethodPut, "/v1/providers/prov-1/breaks", providerTok,
			map[string]any{"breaks": []map[string]any{{"weekday": 1, "start": "18:00", "end": "19:00"}}}, http.StatusBadRequest, apperr.InvalidRequest},
		{"break without day", http.MethodPut, "/v1/providers/prov-1/breaks", providerTok,
			map[string]any{"breaks": []map[string]any{{"start": "12:00", "end": "13:00"}}}, http.StatusBadRequest, apperr.InvalidRequest},
		{"missing appointment", http.MethodPost, "/v1/appointments/00000000-0000-0000-0000-000000000000/confirm", providerTok, nil, http.StatusNotFound, apperr.NotFound},
		{"reversed conflict range", http.MethodGet, "/v1/providers/prov-1/conflicts?start=2025-03-10T03:00:00Z&end=2025-03-10T02:00:00Z", "", nil, http.StatusBadRequest, apperr.InvalidRequest},
		{"unknown actor", http.MethodGet, "/v1/cancellation-reasons?actor=nobody", "", nil, http.StatusBadRequest, apperr.InvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a.t = t
			a.expectFailure(tc.status, tc.kind, tc.method, tc.path, tc.tok, tc.body)
		})
	}
}

func TestHTTPClosedDayAndUnconfigured(t *testing.T) {
	a := newTestAPI(t)
	providerTok := token(t, "u-prov", "provider", "prov-1")
	a.mustDo(http.StatusOK, http.MethodPut, "/v1/providers/prov-1/settings", providerTok,
		map[string]any{"displayName": "Clinica Uno"}, nil)

	a.expectFailure(http.StatusUnprocessableEntity, apperr.ConfigurationMissing, http.MethodGet,
		"/v1/providers/prov-1/window?date=2025-03-10", "", nil)

	a.configure(providerTok)
	var win struct {
		Date   string `json:"date"`
		IsOpen bool   `json:"isOpen"`
	}
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/providers/prov-1/window?date=2025-03-09", "", nil, &win)
	if win.IsOpen || win.Date != "2025-03-09" {
		t.Fatalf("expected closed Sunday, got %+v", win)
	}

	// No date means today in the provider zone: 2025-03-09 08:00 local.
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/providers/prov-1/window", "", nil, &win)
	if win.Date != "2025-03-09" {
		t.Fatalf("expected today's window, got %s", win.Date)
	}
}

func TestHTTPMeAndReasons(t *testing.T) {
	a := newTestAPI(t)

	var me meView
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/me", token(t, "u-prov", "provider", "prov-1"), nil, &me)
	if me.Role != "PROVIDER" || me.ProviderID != "prov-1" || me.HomePath != "/provider/dashboard" {
		t.Fatalf("unexpected identity %+v", me)
	}

	var reasons []lifecycle.Reason
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/cancellation-reasons?actor=provider", "", nil, &reasons)
	if len(reasons) == 0 || reasons[len(reasons)-1].Code != lifecycle.ReasonOther {
		t.Fatalf("expected provider reasons ending with OTHER, got %+v", reasons)
	}
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/cancellation-reasons?actor=admin", "", nil, &reasons)
	if len(reasons) != 0 {
		t.Fatalf("admins cancel nothing, got %+v", reasons)
	}
}

func TestRetireServiceHidesIt(t *testing.T) {
	a := newTestAPI(t)
	providerTok := token(t, "u-prov", "provider", "prov-1")
	consult := a.configure(providerTok)

	a.mustDo(http.StatusOK, http.MethodDelete, "/v1/providers/prov-1/services/"+consult, providerTok, nil, nil)
	var services []serviceView
	a.mustDo(http.StatusOK, http.MethodGet, "/v1/providers/prov-1/services", "", nil, &services)
	if len(services) != 0 {
		t.Fatalf("retired service still listed: %+v", services)
	}
	a.expectFailure(http.StatusNotFound, apperr.NotFound, http.MethodDelete, "/v1/providers/prov-1/services/missing", providerTok, nil)
}

func TestStatusFor(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.InvalidRequest:       http.StatusBadRequest,
		apperr.Forbidden:            http.StatusForbidden,
		apperr.NotFound:             http.StatusNotFound,
		apperr.SlotUnavailable:      http.StatusConflict,
		apperr.AlreadyTerminal:      http.StatusConflict,
		apperr.ConfigurationMissing: http.StatusUnprocessableEntity,
		apperr.Internal:             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Fatalf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	fail(rw, req, slog.New(slog.NewTextHandler(io.Discard, nil)), io.ErrUnexpectedEOF)

	var env envelope
	if err := json.Unmarshal(rw.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rw.Code != http.StatusInternalServerError || env.Error == nil || env.Error.Message != "internal error" {
		t.Fatalf("expected masked internal error, got %d %s", rw.Code, rw.Body.String())
	}
}
