package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/himsog/himsog/services/scheduling-service/internal/conflict"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const appointmentColumns = `
	id::text, appointment_number, user_id, provider_id, start_time, end_time, status,
	total_price::text, patient_name, patient_phone, patient_email, notes,
	COALESCE(cancellation_reason, ''), COALESCE(cancelled_by, ''), cancelled_at,
	confirmed_at, completed_at, COALESCE(review_id, ''), created_at, updated_at`

func (q *queries) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	err := q.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(user_id, provider_id, start_time, end_time, status, total_price,
			 patient_name, patient_phone, patient_email, notes)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)
		RETURNING id::text, appointment_number, created_at, updated_at
	`, a.UserID, a.ProviderID, a.StartTime, a.EndTime, string(a.Status), a.TotalPrice.String(),
		a.Patient.Name, a.Patient.Phone, a.Patient.Email, a.Notes,
	).Scan(&a.ID, &a.Number, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if IsConflict(err) {
			return fmt.Errorf("%w: %w", lifecycle.ErrOverlap, err)
		}
		return err
	}

	batch := &pgx.Batch{}
	for i, line := range a.Services {
		batch.Queue(`
			INSERT INTO appointment_services
				(appointment_id, position, service_id, name, price_at_booking, duration_minutes)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)
		`, a.ID, i, line.ServiceID, line.Name, line.PriceAtBooking.String(), line.DurationMinutes)
	}
	if batch.Len() == 0 {
		return nil
	}
	return q.tx.SendBatch(ctx, batch).Close()
}

func (q *queries) Appointment(ctx context.Context, id string, forUpdate bool) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, lifecycle.ErrNotFound
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	appt, err := scanAppointment(q.tx.QueryRow(ctx, query, id))
	if IsNotFound(err) {
		return model.Appointment{}, lifecycle.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	appts := []model.Appointment{appt}
	if err := q.attachServices(ctx, appts); err != nil {
		return model.Appointment{}, err
	}
	return appts[0], nil
}

func (q *queries) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	err := q.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			cancellation_reason = NULLIF($3, ''),
			cancelled_by = NULLIF($4, ''),
			cancelled_at = $5,
			confirmed_at = $6,
			completed_at = $7,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, string(a.Status), a.CancellationReason, a.CancelledBy, a.CancelledAt, a.ConfirmedAt, a.CompletedAt,
	).Scan(&a.UpdatedAt)
	if IsNotFound(err) {
		return lifecycle.ErrNotFound
	}
	return err
}

func (q *queries) ListAppointments(ctx context.Context, f lifecycle.ListFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.ProviderID != "" {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("end_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_time < $%d", f.To)
	}
	if len(where) == 0 {
		where = append(where, "TRUE")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE %s ORDER BY start_time DESC LIMIT $%d`,
		appointmentColumns, strings.Join(where, " AND "), len(args))
	return q.selectAppointments(ctx, query, args...)
}

func (q *queries) DueForSweep(ctx context.Context, cutoff time.Time, limit int) ([]model.Appointment, error) {
	return q.selectAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('PENDING', 'CONFIRMED')
			AND end_time < $1
		ORDER BY end_time
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, cutoff, limit)
}

func (q *queries) ActiveIntervals(ctx context.Context, providerID string, from, to time.Time) ([]conflict.Interval, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE provider_id = $1
			AND status = ANY($4)
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, providerID, from, to, statusNames(conflict.BlockingStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []conflict.Interval
	for rows.Next() {
		var iv conflict.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func statusNames(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (q *queries) selectAppointments(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := q.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	rows.Close()

	if err := q.attachServices(ctx, appts); err != nil {
		return nil, err
	}
	return appts, nil
}

// attachServices loads the line items of appts in one query.
func (q *queries) attachServices(ctx context.Context, appts []model.Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	index := make(map[string]int, len(appts))
	ids := make([]string, 0, len(appts))
	for i, a := range appts {
		index[a.ID] = i
		ids = append(ids, a.ID)
	}

	rows, err := q.tx.Query(ctx, `
		SELECT appointment_id::text, service_id::text, name, price_at_booking::text, duration_minutes
		FROM appointment_services
		WHERE appointment_id::text = ANY($1)
		ORDER BY appointment_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			apptID string
			price  string
			line   model.BookedService
		)
		if err := rows.Scan(&apptID, &line.ServiceID, &line.Name, &price, &line.DurationMinutes); err != nil {
			return err
		}
		if line.PriceAtBooking, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("parse price_at_booking %q: %w", price, err)
		}
		i := index[apptID]
		appts[i].Services = append(appts[i].Services, line)
	}
	return rows.Err()
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		status string
		total  string
	)
	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.UserID,
		&a.ProviderID,
		&a.StartTime,
		&a.EndTime,
		&status,
		&total,
		&a.Patient.Name,
		&a.Patient.Phone,
		&a.Patient.Email,
		&a.Notes,
		&a.CancellationReason,
		&a.CancelledBy,
		&a.CancelledAt,
		&a.ConfirmedAt,
		&a.CompletedAt,
		&a.ReviewID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	if a.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return model.Appointment{}, fmt.Errorf("parse total_price %q: %w", total, err)
	}
	return a, nil
}
