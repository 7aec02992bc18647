package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/execdash/alert-engine/pkg/models"
)

const alertColumns = `id, alert_type, severity, status, title, description, recommendation,
	ticket_key, project_key, assignee, client, context, dedup_key, auto_resolve,
	first_detected, last_updated, acknowledged_at, acknowledged_by, resolved_at, resolved_by`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	err := row.Scan(
		&a.ID, &a.AlertType, &a.Severity, &a.Status, &a.Title, &a.Description, &a.Recommendation,
		&a.TicketKey, &a.ProjectKey, &a.Assignee, &a.Client, &a.Context, &a.DedupKey, &a.AutoResolve,
		&a.FirstDetected, &a.LastUpdated, &a.AcknowledgedAt, &a.AcknowledgedBy, &a.ResolvedAt, &a.ResolvedBy,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAlert persists a new alert. The partial unique index on
// dedup_key rejects a second active alert for the same key, which
// closes the race between concurrent reconciliation passes.
func (s *Postgres) InsertAlert(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err := s.pool.Exec(ctx, query,
		alert.ID, alert.AlertType, alert.Severity, alert.Status, alert.Title, alert.Description, alert.Recommendation,
		alert.TicketKey, alert.ProjectKey, alert.Assignee, alert.Client, alert.Context, alert.DedupKey, alert.AutoResolve,
		alert.FirstDetected, alert.LastUpdated, alert.AcknowledgedAt, alert.AcknowledgedBy, alert.ResolvedAt, alert.ResolvedBy,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", models.ErrDuplicateActiveAlert, alert.DedupKey)
	}
	return err
}

// ListAlertsSince returns every alert first detected within the
// lookback window, newest first
func (s *Postgres) ListAlertsSince(ctx context.Context, daysBack int) ([]models.Alert, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysBack)
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE first_detected >= $1
		ORDER BY first_detected DESC
	`
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// GetAlert returns an alert by id
func (s *Postgres) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	alert, err := scanAlert(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// GetOpenAlertByKey returns the active or acknowledged alert holding
// the dedup key, or nil if none does
func (s *Postgres) GetOpenAlertByKey(ctx context.Context, dedupKey string) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE dedup_key = $1 AND status IN ('active', 'acknowledged')
		ORDER BY first_detected DESC
		LIMIT 1
	`
	alert, err := scanAlert(s.pool.QueryRow(ctx, query, dedupKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ListAlerts returns one page of alerts matching the filter plus the
// total match count
func (s *Postgres) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.DaysBack > 0 {
		args = append(args, time.Now().UTC().AddDate(0, 0, -filter.DaysBack))
		where = append(where, fmt.Sprintf("first_detected >= $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		where = append(where, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AlertType != "" {
		args = append(args, filter.AlertType)
		where = append(where, fmt.Sprintf("alert_type = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT count(*) FROM alerts WHERE ` + whereClause
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT `+alertColumns+` FROM alerts
		WHERE `+whereClause+`
		ORDER BY first_detected DESC
		LIMIT $%d OFFSET $%d
	`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, total, rows.Err()
}

// ListUnresolvedAlerts returns all active and acknowledged alerts
func (s *Postgres) ListUnresolvedAlerts(ctx context.Context) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE status IN ('active', 'acknowledged')
		ORDER BY first_detected DESC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// TouchAlert records a re-detection on an open alert
func (s *Postgres) TouchAlert(ctx context.Context, id string, severity models.AlertSeverity, context map[string]string, at time.Time) error {
	query := `
		UPDATE alerts
		SET severity = $2, context = $3, last_updated = $4
		WHERE id = $1 AND status IN ('active', 'acknowledged')
	`
	tag, err := s.pool.Exec(ctx, query, id, severity, context, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAlertNotFound
	}
	return nil
}

// TransitionAlert atomically moves an alert between lifecycle states.
// The status predicate in the UPDATE is the compare-and-set: a racing
// transition that lands first wins and the loser sees
// ErrInvalidTransition, so resolved always beats a late acknowledge.
func (s *Postgres) TransitionAlert(ctx context.Context, id string, from []models.AlertStatus, to models.AlertStatus, actor string, at time.Time) error {
	fromStatuses := make([]string, len(from))
	for i, st := range from {
		fromStatuses[i] = string(st)
	}

	query := `
		UPDATE alerts
		SET status = $2,
			last_updated = $3,
			acknowledged_at = CASE WHEN $2 = 'acknowledged' THEN $3 ELSE acknowledged_at END,
			acknowledged_by = CASE WHEN $2 = 'acknowledged' THEN $4 ELSE acknowledged_by END,
			resolved_at     = CASE WHEN $2 = 'resolved'     THEN $3 ELSE resolved_at END,
			resolved_by     = CASE WHEN $2 = 'resolved'     THEN $4 ELSE resolved_by END
		WHERE id = $1 AND status = ANY($5)
	`
	tag, err := s.pool.Exec(ctx, query, id, to, at, actor, fromStatuses)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish a missing alert from an illegal transition
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM alerts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return models.ErrAlertNotFound
	}
	return models.ErrInvalidTransition
}
