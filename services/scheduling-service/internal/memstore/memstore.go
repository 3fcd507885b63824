// Package memstore is an in-memory implementation of the lifecycle and
// provider stores. Transactions buffer their writes and apply them at commit
// under one lock, where the active-appointment exclusion rule is enforced
// the same way the database constraint does it.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/himsog/himsog/services/scheduling-service/internal/availability"
	"github.com/himsog/himsog/services/scheduling-service/internal/conflict"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/outbox"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
)

var (
	errReadOnly      = errors.New("memstore: write in read-only transaction")
	errSerialization = errors.New("memstore: row changed by a concurrent transaction")
)

type Store struct {
	mu        sync.Mutex
	providers map[string]model.ProviderSettings
	hours     map[string][]model.OperatingHours
	breaks    map[string][]model.BreakTime
	services  map[string]model.Service
	appts     map[string]row
	idem      map[string]string
	events    []outbox.Event
	seq       int

	// BeforeCommit, when set, runs after a read-write transaction's function
	// succeeds and before its writes are applied.
	BeforeCommit func()
	Now          func() time.Time
}

type row struct {
	appt    model.Appointment
	version int
}

func New() *Store {
	return &Store{
		providers: map[string]model.ProviderSettings{},
		hours:     map[string][]model.OperatingHours{},
		breaks:    map[string][]model.BreakTime{},
		services:  map[string]model.Service{},
		appts:     map[string]row{},
		idem:      map[string]string{},
		Now:       time.Now,
	}
}

func (s *Store) ReadOnly(ctx context.Context, fn func(context.Context, lifecycle.Queries) error) error {
	return fn(ctx, &tx{s: s, readOnly: true})
}

func (s *Store) ReadWrite(ctx context.Context, fn func(context.Context, lifecycle.Queries) error) error {
	t := &tx{s: s, updated: map[string]model.Appointment{}, versions: map[string]int{}, idem: map[string]string{}}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.dirty() && s.BeforeCommit != nil {
		s.BeforeCommit()
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, v := range t.versions {
		if s.appts[id].version != v {
			return errSerialization
		}
	}

	pending := make([]model.Appointment, 0, len(t.inserted)+len(t.updated))
	pending = append(pending, t.inserted...)
	for _, a := range t.updated {
		pending = append(pending, a)
	}
	for i, a := range pending {
		if !conflict.Blocks(a.Status) {
			continue
		}
		iv := conflict.Interval{Start: a.StartTime, End: a.EndTime}
		for id, r := range s.appts {
			if id == a.ID || r.appt.ProviderID != a.ProviderID || !conflict.Blocks(r.appt.Status) {
				continue
			}
			if _, replaced := t.updated[id]; replaced {
				continue
			}
			if conflict.Overlaps(iv, conflict.Interval{Start: r.appt.StartTime, End: r.appt.EndTime}) {
				return lifecycle.ErrOverlap
			}
		}
		for _, b := range pending[i+1:] {
			if b.ProviderID == a.ProviderID && conflict.Blocks(b.Status) &&
				conflict.Overlaps(iv, conflict.Interval{Start: b.StartTime, End: b.EndTime}) {
				return lifecycle.ErrOverlap
			}
		}
	}

	for _, a := range pending {
		r := s.appts[a.ID]
		s.appts[a.ID] = row{appt: clone(a), version: r.version + 1}
	}
	for k, id := range t.idem {
		s.idem[k] = id
	}
	s.events = append(s.events, t.events...)
	return nil
}

// Appointments returns a snapshot of every committed appointment ordered by
// start time.
func (s *Store) Appointments() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Appointment, 0, len(s.appts))
	for _, r := range s.appts {
		out = append(out, clone(r.appt))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Events returns the committed outbox events in commit order.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

type tx struct {
	s        *Store
	readOnly bool
	inserted []model.Appointment
	updated  map[string]model.Appointment
	versions map[string]int
	idem     map[string]string
	events   []outbox.Event
}

var _ lifecycle.Queries = (*tx)(nil)

func (t *tx) dirty() bool {
	return len(t.inserted) > 0 || len(t.updated) > 0 || len(t.idem) > 0 || len(t.events) > 0
}

func (t *tx) ProviderSettings(_ context.Context, providerID string) (model.ProviderSettings, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.providers[providerID]
	if !ok {
		return model.ProviderSettings{}, lifecycle.ErrNotFound
	}
	return p, nil
}

func (t *tx) Calendar(_ context.Context, providerID string, date wallclock.Date) (availability.Calendar, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cal := availability.Calendar{Hours: slices.Clone(t.s.hours[providerID])}
	for _, b := range t.s.breaks[providerID] {
		if b.AppliesTo(date) {
			cal.Breaks = append(cal.Breaks, b)
		}
	}
	return cal, nil
}

func (t *tx) ServicesByID(_ context.Context, providerID string, ids []string) ([]model.Service, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []model.Service
	for _, id := range ids {
		if svc, ok := t.s.services[id]; ok && svc.ProviderID == providerID {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (t *tx) ActiveIntervals(_ context.Context, providerID string, from, to time.Time) ([]conflict.Interval, error) {
	window := conflict.Interval{Start: from, End: to}
	var out []conflict.Interval
	for _, a := range t.visible() {
		if a.ProviderID != providerID || !conflict.Blocks(a.Status) {
			continue
		}
		iv := conflict.Interval{Start: a.StartTime, End: a.EndTime}
		if conflict.Overlaps(iv, window) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (t *tx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if t.readOnly {
		return errReadOnly
	}
	t.s.mu.Lock()
	t.s.seq++
	seq := t.s.seq
	now := t.s.Now().UTC()
	t.s.mu.Unlock()

	a.ID = uuid.NewString()
	a.Number = fmt.Sprintf("HIM-%08d", seq)
	a.CreatedAt, a.UpdatedAt = now, now
	t.inserted = append(t.inserted, clone(*a))
	return nil
}

func (t *tx) Appointment(_ context.Context, id string, forUpdate bool) (model.Appointment, error) {
	if a, ok := t.updated[id]; ok {
		return clone(a), nil
	}
	for _, a := range t.inserted {
		if a.ID == id {
			return clone(a), nil
		}
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.appts[id]
	if !ok {
		return model.Appointment{}, lifecycle.ErrNotFound
	}
	if forUpdate && !t.readOnly {
		t.versions[id] = r.version
	}
	return clone(r.appt), nil
}

func (t *tx) UpdateAppointment(_ context.Context, a *model.Appointment) error {
	if t.readOnly {
		return errReadOnly
	}
	for i := range t.inserted {
		if t.inserted[i].ID == a.ID {
			t.inserted[i] = clone(*a)
			return nil
		}
	}
	t.s.mu.Lock()
	r, ok := t.s.appts[a.ID]
	now := t.s.Now().UTC()
	t.s.mu.Unlock()
	if !ok {
		return lifecycle.ErrNotFound
	}
	if _, locked := t.versions[a.ID]; !locked {
		t.versions[a.ID] = r.version
	}
	a.UpdatedAt = now
	t.updated[a.ID] = clone(*a)
	return nil
}

func (t *tx) ListAppointments(_ context.Context, f lifecycle.ListFilter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range t.visible() {
		switch {
		case f.UserID != "" && a.UserID != f.UserID:
		case f.ProviderID != "" && a.ProviderID != f.ProviderID:
		case f.Status != "" && a.Status != f.Status:
		case !f.From.IsZero() && a.EndTime.Before(f.From):
		case !f.To.IsZero() && !a.StartTime.Before(f.To):
		default:
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *tx) DueForSweep(_ context.Context, cutoff time.Time, limit int) ([]model.Appointment, error) {
	if t.readOnly {
		return nil, errReadOnly
	}
	t.s.mu.Lock()
	var out []model.Appointment
	for id, r := range t.s.appts {
		a := r.appt
		if (a.Status == model.StatusPending || a.Status == model.StatusConfirmed) && a.EndTime.Before(cutoff) {
			t.versions[id] = r.version
			out = append(out, clone(a))
		}
	}
	t.s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if limit > 0 && len(out) > limit {
		for _, a := range out[limit:] {
			delete(t.versions, a.ID)
		}
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) LockIdempotencyKey(_ context.Context, userID, key string) (string, error) {
	if t.readOnly {
		return "", errReadOnly
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.idem[idemKey(userID, key)], nil
}

func (t *tx) SaveIdempotencyKey(_ context.Context, userID, key, appointmentID string) error {
	if t.readOnly {
		return errReadOnly
	}
	t.idem[idemKey(userID, key)] = appointmentID
	return nil
}

func (t *tx) InsertEvent(_ context.Context, evt outbox.Event) error {
	if t.readOnly {
		return errReadOnly
	}
	t.events = append(t.events, evt)
	return nil
}

// visible merges committed rows with this transaction's own writes.
func (t *tx) visible() []model.Appointment {
	t.s.mu.Lock()
	out := make([]model.Appointment, 0, len(t.s.appts)+len(t.inserted))
	for id, r := range t.s.appts {
		if a, ok := t.updated[id]; ok {
			out = append(out, clone(a))
			continue
		}
		out = append(out, clone(r.appt))
	}
	t.s.mu.Unlock()
	for _, a := range t.inserted {
		out = append(out, clone(a))
	}
	return out
}

func idemKey(userID, key string) string { return userID + "\x00" + key }

func clone(a model.Appointment) model.Appointment {
	a.Services = slices.Clone(a.Services)
	return a
}
