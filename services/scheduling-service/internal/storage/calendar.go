package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/availability"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// dbtx is satisfied by both pgx.Tx and the pool, so calendar reads run
// inside lifecycle transactions and standalone.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (q *queries) ProviderSettings(ctx context.Context, providerID string) (model.ProviderSettings, error) {
	return selectSettings(ctx, q.tx, providerID)
}

func (q *queries) Calendar(ctx context.Context, providerID string, date wallclock.Date) (availability.Calendar, error) {
	hours, err := selectHours(ctx, q.tx, providerID)
	if err != nil {
		return availability.Calendar{}, err
	}
	breaks, err := selectBreaks(ctx, q.tx, `
		WHERE provider_id = $1
			AND ((specific_date IS NULL AND weekday = $2) OR specific_date = $3::date)
	`, providerID, int(date.Weekday()), date.String())
	if err != nil {
		return availability.Calendar{}, err
	}
	return availability.Calendar{Hours: hours, Breaks: breaks}, nil
}

func (q *queries) ServicesByID(ctx context.Context, providerID string, ids []string) ([]model.Service, error) {
	return selectServices(ctx, q.tx, `WHERE provider_id = $1 AND id::text = ANY($2)`, providerID, ids)
}

func selectSettings(ctx context.Context, conn dbtx, providerID string) (model.ProviderSettings, error) {
	var s model.ProviderSettings
	err := conn.QueryRow(ctx, `
		SELECT id, owner_user_id, display_name, slot_duration_minutes, updated_at
		FROM providers
		WHERE id = $1
	`, providerID).Scan(&s.ProviderID, &s.OwnerUserID, &s.DisplayName, &s.SlotDurationMinutes, &s.UpdatedAt)
	if IsNotFound(err) {
		return model.ProviderSettings{}, lifecycle.ErrNotFound
	}
	return s, err
}

func selectHours(ctx context.Context, conn dbtx, providerID string) ([]model.OperatingHours, error) {
	rows, err := conn.Query(ctx, `
		SELECT weekday, COALESCE(to_char(start_time, 'HH24:MI'), ''), COALESCE(to_char(end_time, 'HH24:MI'), ''), is_closed
		FROM operating_hours
		WHERE provider_id = $1
		ORDER BY weekday
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OperatingHours
	for rows.Next() {
		var (
			weekday    int
			start, end string
			h          = model.OperatingHours{ProviderID: providerID}
		)
		if err := rows.Scan(&weekday, &start, &end, &h.IsClosed); err != nil {
			return nil, err
		}
		h.Weekday = time.Weekday(weekday)
		if !h.IsClosed {
			if h.Start, err = wallclock.ParseClock(start); err != nil {
				return nil, fmt.Errorf("operating_hours start: %w", err)
			}
			if h.End, err = wallclock.ParseClock(end); err != nil {
				return nil, fmt.Errorf("operating_hours end: %w", err)
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func selectBreaks(ctx context.Context, conn dbtx, where string, args ...any) ([]model.BreakTime, error) {
	rows, err := conn.Query(ctx, `
		SELECT id::text, provider_id, weekday, to_char(specific_date, 'YYYY-MM-DD'),
			to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), label
		FROM break_times
		`+where+`
		ORDER BY specific_date NULLS FIRST, weekday, start_time
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BreakTime
	for rows.Next() {
		var (
			b          model.BreakTime
			weekday    int
			date       *string
			start, end string
		)
		if err := rows.Scan(&b.ID, &b.ProviderID, &weekday, &date, &start, &end, &b.Label); err != nil {
			return nil, err
		}
		b.Weekday = time.Weekday(weekday)
		if date != nil {
			d, err := wallclock.ParseDate(*date)
			if err != nil {
				return nil, fmt.Errorf("break_times specific_date: %w", err)
			}
			b.Date = &d
		}
		if b.Start, err = wallclock.ParseClock(start); err != nil {
			return nil, fmt.Errorf("break_times start: %w", err)
		}
		if b.End, err = wallclock.ParseClock(end); err != nil {
			return nil, fmt.Errorf("break_times end: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func selectServices(ctx context.Context, conn dbtx, where string, args ...any) ([]model.Service, error) {
	rows, err := conn.Query(ctx, `
		SELECT id::text, provider_id, name, price::text, duration_minutes, active, created_at
		FROM services
		`+where+`
		ORDER BY created_at, name
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var (
			svc   model.Service
			price string
		)
		if err := rows.Scan(&svc.ID, &svc.ProviderID, &svc.Name, &price, &svc.DurationMinutes, &svc.Active, &svc.CreatedAt); err != nil {
			return nil, err
		}
		if svc.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse service price %q: %w", price, err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}
