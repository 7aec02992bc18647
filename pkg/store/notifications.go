package store

import (
	"context"

	"github.com/execdash/alert-engine/pkg/models"
)

// InsertNotification appends an immutable dispatch audit record.
// Records are never updated or deleted by the engine.
func (s *Postgres) InsertNotification(ctx context.Context, record *models.NotificationRecord) error {
	query := `
		INSERT INTO notification_log (id, alert_id, channel, recipient, status, error, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		record.ID, record.AlertID, record.Channel, record.Recipient,
		record.Status, record.Error, record.Attempts, record.CreatedAt,
	)
	return err
}

// ListNotifications returns the dispatch audit trail for an alert
func (s *Postgres) ListNotifications(ctx context.Context, alertID string) ([]models.NotificationRecord, error) {
	query := `
		SELECT id, alert_id, channel, recipient, status, error, attempts, created_at
		FROM notification_log
		WHERE alert_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, query, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.NotificationRecord{}
	for rows.Next() {
		var r models.NotificationRecord
		if err := rows.Scan(&r.ID, &r.AlertID, &r.Channel, &r.Recipient, &r.Status, &r.Error, &r.Attempts, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
