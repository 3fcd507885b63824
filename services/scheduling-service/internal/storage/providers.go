package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/himsog/himsog/libs/db"
	"github.com/himsog/himsog/services/scheduling-service/internal/availability"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/himsog/himsog/services/scheduling-service/internal/providers"
	"github.com/jackc/pgx/v5"
)

// ProviderRepository stores provider settings, calendars and catalogs.
type ProviderRepository struct {
	pool *db.Pool
}

var _ providers.Repository = (*ProviderRepository)(nil)

func NewProviderRepository(pool *db.Pool) *ProviderRepository {
	return &ProviderRepository{pool: pool}
}

func (r *ProviderRepository) Settings(ctx context.Context, providerID string) (model.ProviderSettings, error) {
	return selectSettings(ctx, r.pool, providerID)
}

func (r *ProviderRepository) SaveSettings(ctx context.Context, s *model.ProviderSettings) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO providers (id, owner_user_id, display_name, slot_duration_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			updated_at = now()
		RETURNING owner_user_id, updated_at
	`, s.ProviderID, s.OwnerUserID, s.DisplayName, s.SlotDurationMinutes).Scan(&s.OwnerUserID, &s.UpdatedAt)
}

func (r *ProviderRepository) WeeklyCalendar(ctx context.Context, providerID string) (availability.Calendar, error) {
	return weeklyCalendar(ctx, r.pool, providerID)
}

func (r *ProviderRepository) UpdateCalendar(ctx context.Context, providerID string, fn func(*availability.Calendar) error) error {
	return r.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// Serialises calendar edits per provider.
		if _, err := tx.Exec(ctx, `SELECT 1 FROM providers WHERE id = $1 FOR UPDATE`, providerID); err != nil {
			return err
		}
		cal, err := weeklyCalendar(ctx, tx, providerID)
		if err != nil {
			return err
		}
		if err := fn(&cal); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM operating_hours WHERE provider_id = $1`, providerID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM break_times WHERE provider_id = $1`, providerID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, h := range cal.Hours {
			var start, end *string
			if !h.IsClosed {
				s, e := h.Start.String(), h.End.String()
				start, end = &s, &e
			}
			batch.Queue(`
				INSERT INTO operating_hours (provider_id, weekday, start_time, end_time, is_closed)
				VALUES ($1, $2, $3::time, $4::time, $5)
			`, providerID, int(h.Weekday), start, end, h.IsClosed)
		}
		for i := range cal.Breaks {
			b := &cal.Breaks[i]
			if b.ID == "" {
				b.ID = uuid.NewString()
			}
			var date *string
			if b.Date != nil {
				d := b.Date.String()
				date = &d
			}
			batch.Queue(`
				INSERT INTO break_times (id, provider_id, weekday, specific_date, start_time, end_time, label)
				VALUES ($1, $2, $3, $4::date, $5::time, $6::time, $7)
			`, b.ID, providerID, int(b.Weekday), date, b.Start.String(), b.End.String(), b.Label)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (r *ProviderRepository) CreateService(ctx context.Context, svc *model.Service) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO services (provider_id, name, price, duration_minutes, active)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING id::text, created_at
	`, svc.ProviderID, svc.Name, svc.Price.String(), svc.DurationMinutes, svc.Active).Scan(&svc.ID, &svc.CreatedAt)
}

func (r *ProviderRepository) ListServices(ctx context.Context, providerID string) ([]model.Service, error) {
	return selectServices(ctx, r.pool, `WHERE provider_id = $1`, providerID)
}

func (r *ProviderRepository) SetServiceActive(ctx context.Context, providerID, serviceID string, active bool) error {
	if _, err := uuid.Parse(serviceID); err != nil {
		return lifecycle.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE services SET active = $3
		WHERE provider_id = $1 AND id = $2
	`, providerID, serviceID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrNotFound
	}
	return nil
}

func weeklyCalendar(ctx context.Context, conn dbtx, providerID string) (availability.Calendar, error) {
	hours, err := selectHours(ctx, conn, providerID)
	if err != nil {
		return availability.Calendar{}, err
	}
	breaks, err := selectBreaks(ctx, conn, `WHERE provider_id = $1`, providerID)
	if err != nil {
		return availability.Calendar{}, err
	}
	return availability.Calendar{Hours: hours, Breaks: breaks}, nil
}
