package store

import (
	"context"
	"time"

	"github.com/execdash/alert-engine/pkg/models"
)

// GetSnapshot reads the current entity state written by the ingestion
// collaborator. Tickets and utilization are read in full; deployments
// are limited to the lookback window used by the quality rules.
func (s *Postgres) GetSnapshot(ctx context.Context, lookbackDays int) (*models.Snapshot, error) {
	snap := &models.Snapshot{CollectedAt: time.Now().UTC()}

	rows, err := s.pool.Query(ctx, `
		SELECT ticket_key, project_key, assignee, client, status, days_in_status, due_date, review_failed
		FROM tickets
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t models.TicketSnapshot
		if err := rows.Scan(&t.Key, &t.ProjectKey, &t.Assignee, &t.Client, &t.Status, &t.DaysInStatus, &t.DueDate, &t.ReviewFailed); err != nil {
			return nil, err
		}
		snap.Tickets = append(snap.Tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cutoff := snap.CollectedAt.AddDate(0, 0, -lookbackDays)
	depRows, err := s.pool.Query(ctx, `
		SELECT id, project_key, client, failed, detail, deployed_at
		FROM deployments
		WHERE deployed_at >= $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer depRows.Close()
	for depRows.Next() {
		var d models.DeploymentSnapshot
		if err := depRows.Scan(&d.ID, &d.ProjectKey, &d.Client, &d.Failed, &d.Detail, &d.DeployedAt); err != nil {
			return nil, err
		}
		snap.Deployments = append(snap.Deployments, d)
	}
	if err := depRows.Err(); err != nil {
		return nil, err
	}

	utilRows, err := s.pool.Query(ctx, `SELECT member, utilization FROM team_utilization`)
	if err != nil {
		return nil, err
	}
	defer utilRows.Close()
	for utilRows.Next() {
		var u models.UtilizationSnapshot
		if err := utilRows.Scan(&u.Member, &u.Utilization); err != nil {
			return nil, err
		}
		snap.Utilization = append(snap.Utilization, u)
	}
	return snap, utilRows.Err()
}
