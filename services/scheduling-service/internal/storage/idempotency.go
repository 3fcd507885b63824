package storage

import "context"

func (q *queries) LockIdempotencyKey(ctx context.Context, userID, key string) (string, error) {
	id, err := q.selectIdempotencyForUpdate(ctx, userID, key)
	if err == nil {
		return id, nil
	}
	if !IsNotFound(err) {
		return "", err
	}

	_, err = q.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (user_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
	`, userID, key)
	if err != nil {
		return "", err
	}
	return q.selectIdempotencyForUpdate(ctx, userID, key)
}

func (q *queries) SaveIdempotencyKey(ctx context.Context, userID, key, appointmentID string) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			updated_at = now()
		WHERE user_id = $1 AND idempotency_key = $2
	`, userID, key, appointmentID)
	return err
}

func (q *queries) selectIdempotencyForUpdate(ctx context.Context, userID, key string) (string, error) {
	var id string
	err := q.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE user_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, userID, key).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

