package store

import (
	"context"
	"time"

	"github.com/execdash/alert-engine/pkg/models"
)

// AlertStore is the persistence boundary for alert state. It is the
// single shared mutable resource: every alert mutation goes through it,
// risk scoring and notification dispatch only read.
//
// Defined as an interface so services can be tested against the
// in-memory implementation.
type AlertStore interface {
	// InsertAlert persists a new alert. The store enforces the
	// one-active-alert-per-dedup-key invariant and returns an error if
	// an active alert already holds the key.
	InsertAlert(ctx context.Context, alert *models.Alert) error

	// GetAlert returns an alert by id, or models.ErrAlertNotFound
	GetAlert(ctx context.Context, id string) (*models.Alert, error)

	// GetOpenAlertByKey returns the active or acknowledged alert
	// holding the dedup key, or nil if none does. Acknowledged alerts
	// still match so re-detection never shadows an alert a user has
	// already seen.
	GetOpenAlertByKey(ctx context.Context, dedupKey string) (*models.Alert, error)

	// ListAlerts returns one page of alerts matching the filter plus
	// the total match count
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int, error)

	// ListUnresolvedAlerts returns all alerts in active or acknowledged
	// status, the set auto-resolution scans
	ListUnresolvedAlerts(ctx context.Context) ([]models.Alert, error)

	// ListAlertsSince returns every alert first detected within the
	// lookback window, newest first
	ListAlertsSince(ctx context.Context, daysBack int) ([]models.Alert, error)

	// TouchAlert records a re-detection: advances last_updated and
	// refreshes the context snapshot and severity
	TouchAlert(ctx context.Context, id string, severity models.AlertSeverity, context map[string]string, at time.Time) error

	// TransitionAlert atomically moves an alert from one of the
	// expected statuses to the target status, stamping the actor and
	// time. Returns models.ErrAlertNotFound if the id is unknown and
	// models.ErrInvalidTransition if the current status is not in from.
	TransitionAlert(ctx context.Context, id string, from []models.AlertStatus, to models.AlertStatus, actor string, at time.Time) error

	// InsertNotification appends an immutable dispatch audit record
	InsertNotification(ctx context.Context, record *models.NotificationRecord) error

	// ListNotifications returns the dispatch audit trail for an alert,
	// newest first
	ListNotifications(ctx context.Context, alertID string) ([]models.NotificationRecord, error)
}

// SnapshotSource supplies the entity state a reconciliation pass
// evaluates. The ingestion collaborator owns the underlying tables;
// the engine only reads them.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, lookbackDays int) (*models.Snapshot, error)
}
