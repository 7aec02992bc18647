package store

import "context"

// ensureSchema creates the tables the engine owns. The partial unique
// index on dedup_key is what makes the one-active-alert-per-key
// invariant hold across concurrent reconciliation passes; everything
// else is query-before-insert convenience.
//
// The tickets, deployments and team_utilization tables belong to the
// ingestion collaborator and are not created here.
func (s *Postgres) ensureSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			recommendation TEXT NOT NULL DEFAULT '',
			ticket_key TEXT NOT NULL DEFAULT '',
			project_key TEXT NOT NULL DEFAULT '',
			assignee TEXT NOT NULL DEFAULT '',
			client TEXT NOT NULL DEFAULT '',
			context JSONB NOT NULL DEFAULT '{}',
			dedup_key TEXT NOT NULL,
			auto_resolve BOOLEAN NOT NULL DEFAULT TRUE,
			first_detected TIMESTAMPTZ NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL,
			acknowledged_at TIMESTAMPTZ,
			acknowledged_by TEXT NOT NULL DEFAULT '',
			resolved_at TIMESTAMPTZ,
			resolved_by TEXT NOT NULL DEFAULT ''
		)
		`,
		`CREATE UNIQUE INDEX IF NOT EXISTS alerts_active_dedup_idx ON alerts(dedup_key) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS alerts_status_idx ON alerts(status)`,
		`CREATE INDEX IF NOT EXISTS alerts_first_detected_idx ON alerts(first_detected DESC)`,
		`
		CREATE TABLE IF NOT EXISTS notification_log (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			attempts INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS notification_log_alert_idx ON notification_log(alert_id)`,
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
