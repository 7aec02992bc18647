package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/execdash/alert-engine/pkg/models"
)

// Memory is an in-process AlertStore used by tests and local
// development runs without a database. Semantics mirror the postgres
// implementation, including the one-active-alert-per-key check.
type Memory struct {
	mu            sync.RWMutex
	alerts        map[string]*models.Alert
	notifications []models.NotificationRecord
	snapshot      *models.Snapshot
}

var (
	_ AlertStore     = (*Memory)(nil)
	_ SnapshotSource = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{alerts: make(map[string]*models.Alert)}
}

// SetSnapshot sets the entity state GetSnapshot returns
func (s *Memory) SetSnapshot(snap *models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

// GetSnapshot implements SnapshotSource
func (s *Memory) GetSnapshot(ctx context.Context, lookbackDays int) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return &models.Snapshot{CollectedAt: time.Now().UTC()}, nil
	}
	return s.snapshot, nil
}

func copyAlert(a *models.Alert) *models.Alert {
	dup := *a
	if a.Context != nil {
		dup.Context = make(map[string]string, len(a.Context))
		for k, v := range a.Context {
			dup.Context[k] = v
		}
	}
	return &dup
}

// InsertAlert implements AlertStore
func (s *Memory) InsertAlert(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.alerts {
		if existing.DedupKey == alert.DedupKey && existing.Status == models.StatusActive {
			return fmt.Errorf("%w: %s", models.ErrDuplicateActiveAlert, alert.DedupKey)
		}
	}
	s.alerts[alert.ID] = copyAlert(alert)
	return nil
}

// GetAlert implements AlertStore
func (s *Memory) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, models.ErrAlertNotFound
	}
	return copyAlert(alert), nil
}

// GetOpenAlertByKey implements AlertStore
func (s *Memory) GetOpenAlertByKey(ctx context.Context, dedupKey string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, alert := range s.alerts {
		if alert.DedupKey == dedupKey &&
			(alert.Status == models.StatusActive || alert.Status == models.StatusAcknowledged) {
			return copyAlert(alert), nil
		}
	}
	return nil, nil
}

func sortNewestFirst(alerts []models.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].FirstDetected.Equal(alerts[j].FirstDetected) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].FirstDetected.After(alerts[j].FirstDetected)
	})
}

// ListAlerts implements AlertStore
func (s *Memory) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if filter.DaysBack > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -filter.DaysBack)
	}

	matched := []models.Alert{}
	for _, alert := range s.alerts {
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && alert.Status != filter.Status {
			continue
		}
		if filter.AlertType != "" && alert.AlertType != filter.AlertType {
			continue
		}
		if !cutoff.IsZero() && alert.FirstDetected.Before(cutoff) {
			continue
		}
		matched = append(matched, *copyAlert(alert))
	}
	sortNewestFirst(matched)

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if filter.Offset >= len(matched) {
		return []models.Alert{}, total, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// ListUnresolvedAlerts implements AlertStore
func (s *Memory) ListUnresolvedAlerts(ctx context.Context) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unresolved := []models.Alert{}
	for _, alert := range s.alerts {
		if alert.Status == models.StatusActive || alert.Status == models.StatusAcknowledged {
			unresolved = append(unresolved, *copyAlert(alert))
		}
	}
	sortNewestFirst(unresolved)
	return unresolved, nil
}

// ListAlertsSince implements AlertStore
func (s *Memory) ListAlertsSince(ctx context.Context, daysBack int) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -daysBack)
	matched := []models.Alert{}
	for _, alert := range s.alerts {
		if !alert.FirstDetected.Before(cutoff) {
			matched = append(matched, *copyAlert(alert))
		}
	}
	sortNewestFirst(matched)
	return matched, nil
}

// TouchAlert implements AlertStore
func (s *Memory) TouchAlert(ctx context.Context, id string, severity models.AlertSeverity, context map[string]string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok || alert.Status.IsTerminal() {
		return models.ErrAlertNotFound
	}
	alert.Severity = severity
	alert.Context = context
	alert.LastUpdated = at
	return nil
}

// TransitionAlert implements AlertStore
func (s *Memory) TransitionAlert(ctx context.Context, id string, from []models.AlertStatus, to models.AlertStatus, actor string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return models.ErrAlertNotFound
	}

	allowed := false
	for _, st := range from {
		if alert.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return models.ErrInvalidTransition
	}

	alert.Status = to
	alert.LastUpdated = at
	switch to {
	case models.StatusAcknowledged:
		ackAt := at
		alert.AcknowledgedAt = &ackAt
		alert.AcknowledgedBy = actor
	case models.StatusResolved:
		resAt := at
		alert.ResolvedAt = &resAt
		alert.ResolvedBy = actor
	}
	return nil
}

// InsertNotification implements AlertStore
func (s *Memory) InsertNotification(ctx context.Context, record *models.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, *record)
	return nil
}

// ListNotifications implements AlertStore
func (s *Memory) ListNotifications(ctx context.Context, alertID string) ([]models.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := []models.NotificationRecord{}
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].AlertID == alertID {
			records = append(records, s.notifications[i])
		}
	}
	return records, nil
}
