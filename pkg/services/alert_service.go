package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/execdash/alert-engine/pkg/models"
	"github.com/execdash/alert-engine/pkg/store"
)

// AlertService owns the alert lifecycle: it reconciles detection
// candidates against stored alert state, applies the status state
// machine, and answers the query surface. All alert mutation goes
// through this service.
type AlertService struct {
	store    store.AlertStore
	notifier *Notifier

	// Per-dedup-key locks serialize reconciliation against concurrent
	// passes within this process; unrelated keys proceed independently.
	// The store's partial unique index is the cross-process backstop.
	keyMutex sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewAlertService creates an alert service. The notifier may be nil
// when dispatch is disabled (tests, local runs).
func NewAlertService(alertStore store.AlertStore, notifier *Notifier) *AlertService {
	return &AlertService{
		store:    alertStore,
		notifier: notifier,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// lockKey acquires the mutex for one dedup key and returns its unlock
func (s *AlertService) lockKey(key string) func() {
	s.keyMutex.Lock()
	mu, ok := s.keyLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.keyLocks[key] = mu
	}
	s.keyMutex.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Reconcile applies one detection pass to the alert store. Each
// candidate is reconciled atomically: create on first observation,
// touch on re-detection, and afterwards auto-resolve any open
// auto_resolve alert whose key is absent from the candidate set.
//
// Idempotent per candidate: re-running the same pass converges on the
// same alert state. A store outage aborts the pass with
// models.ErrStoreUnavailable; rule-level errors are collected in the
// summary and never abort the pass.
func (s *AlertService) Reconcile(ctx context.Context, candidates []models.Candidate) (models.PassSummary, error) {
	summary := models.PassSummary{StartedAt: time.Now().UTC()}
	seen := make(map[string]bool, len(candidates))

	for _, cand := range candidates {
		summary.Candidates++
		seen[cand.DedupKey()] = true

		outcome, err := s.reconcileCandidate(ctx, cand)
		if errors.Is(err, models.ErrStoreUnavailable) {
			summary.FinishedAt = time.Now().UTC()
			return summary, err
		}
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		switch outcome {
		case outcomeCreated:
			summary.Created++
		case outcomeUpdated:
			summary.Updated++
		}
	}

	resolved, err := s.autoResolveAbsent(ctx, seen)
	summary.Resolved = resolved
	summary.FinishedAt = time.Now().UTC()
	if err != nil {
		return summary, err
	}

	logrus.Infof("Reconciliation pass complete: %d candidates, %d created, %d updated, %d resolved, %d errors",
		summary.Candidates, summary.Created, summary.Updated, summary.Resolved, len(summary.Errors))
	return summary, nil
}

type reconcileOutcome int

const (
	outcomeCreated reconcileOutcome = iota
	outcomeUpdated
)

func (s *AlertService) reconcileCandidate(ctx context.Context, cand models.Candidate) (reconcileOutcome, error) {
	key := cand.DedupKey()
	unlock := s.lockKey(key)
	defer unlock()

	existing, err := s.store.GetOpenAlertByKey(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	now := time.Now().UTC()
	if existing == nil {
		alert := newAlertFromCandidate(cand, now)
		if err := s.store.InsertAlert(ctx, alert); err != nil {
			if errors.Is(err, models.ErrDuplicateActiveAlert) {
				// Another pass created it between lookup and insert;
				// re-running the pass will touch it instead.
				return outcomeUpdated, nil
			}
			return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		logrus.Infof("Alert created: %s %s (%s)", alert.AlertType, alert.ID, alert.Severity)
		s.dispatch(alert)
		return outcomeCreated, nil
	}

	escalated := models.SeverityRank(cand.Severity) > models.SeverityRank(existing.Severity)
	if err := s.store.TouchAlert(ctx, existing.ID, cand.Severity, cand.Context, now); err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			// Resolved between lookup and touch; the condition will be
			// re-detected next pass if it persists.
			return outcomeUpdated, nil
		}
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if escalated {
		existing.Severity = cand.Severity
		logrus.Infof("Alert %s escalated to %s", existing.ID, cand.Severity)
		s.dispatch(existing)
	}
	return outcomeUpdated, nil
}

// autoResolveAbsent resolves every open auto_resolve alert whose
// condition is absent from the latest candidate set. Manual alerts
// never appear in a candidate set and are excluded from the scan.
func (s *AlertService) autoResolveAbsent(ctx context.Context, seen map[string]bool) (int, error) {
	open, err := s.store.ListUnresolvedAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	resolved := 0
	for _, alert := range open {
		if !alert.AutoResolve || alert.AlertType == models.AlertTypeManual || seen[alert.DedupKey] {
			continue
		}

		unlock := s.lockKey(alert.DedupKey)
		err := s.store.TransitionAlert(ctx, alert.ID,
			[]models.AlertStatus{models.StatusActive, models.StatusAcknowledged},
			models.StatusResolved, "system", time.Now().UTC())
		unlock()

		if err == nil {
			logrus.Infof("Alert auto-resolved: %s %s", alert.AlertType, alert.ID)
			resolved++
			continue
		}
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrAlertNotFound) {
			// Already resolved by a racing writer
			continue
		}
		return resolved, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return resolved, nil
}

func newAlertFromCandidate(cand models.Candidate, now time.Time) *models.Alert {
	return &models.Alert{
		ID:             uuid.New().String(),
		AlertType:      cand.AlertType,
		Severity:       cand.Severity,
		Status:         models.StatusActive,
		Title:          cand.Title,
		Description:    cand.Description,
		Recommendation: cand.Recommendation,
		TicketKey:      cand.TicketKey,
		ProjectKey:     cand.ProjectKey,
		Assignee:       cand.Assignee,
		Client:         cand.Client,
		Context:        cand.Context,
		DedupKey:       cand.DedupKey(),
		AutoResolve:    cand.AutoResolve,
		FirstDetected:  now,
		LastUpdated:    now,
	}
}

// dispatch hands an alert to the notifier without blocking
// reconciliation; delivery failures are recorded in the audit trail,
// never surfaced here.
func (s *AlertService) dispatch(alert *models.Alert) {
	if s.notifier == nil {
		return
	}
	go s.notifier.Dispatch(context.Background(), alert)
}

// Acknowledge transitions an active alert to acknowledged. Returns
// models.ErrAlertNotFound for an unknown id and
// models.ErrInvalidTransition when the alert is not active.
func (s *AlertService) Acknowledge(ctx context.Context, id, actor string) (*models.Alert, error) {
	err := s.store.TransitionAlert(ctx, id,
		[]models.AlertStatus{models.StatusActive},
		models.StatusAcknowledged, actor, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	logrus.Infof("Alert %s acknowledged by %s", id, actor)
	return s.store.GetAlert(ctx, id)
}

// Create manually creates an alert, bypassing detection rules but
// honoring the same dedup invariant. A duplicate open alert for the
// same key is returned instead of a new one.
func (s *AlertService) Create(ctx context.Context, req models.CreateAlertRequest) (*models.Alert, error) {
	alertType := models.AlertTypeManual
	if req.AlertType != "" {
		parsed, err := models.ParseAlertType(req.AlertType)
		if err != nil {
			return nil, err
		}
		alertType = parsed
	}
	severity, err := models.ParseSeverity(req.Severity)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	entityKey := req.TicketKey
	if entityKey == "" {
		entityKey = strings.ToLower(strings.ReplaceAll(req.Title, " ", "-"))
	}
	cand := models.Candidate{
		AlertType:      alertType,
		Severity:       severity,
		Title:          req.Title,
		Description:    req.Description,
		Recommendation: req.Recommendation,
		EntityKey:      entityKey,
		TicketKey:      req.TicketKey,
		ProjectKey:     req.ProjectKey,
		Assignee:       req.Assignee,
		Client:         req.Client,
		Context:        req.Context,
		AutoResolve:    req.AutoResolve,
	}

	key := cand.DedupKey()
	unlock := s.lockKey(key)
	defer unlock()

	existing, err := s.store.GetOpenAlertByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if existing != nil {
		logrus.Infof("Duplicate alert suppressed for key %s", key)
		return existing, nil
	}

	alert := newAlertFromCandidate(cand, time.Now().UTC())
	if err := s.store.InsertAlert(ctx, alert); err != nil {
		return nil, err
	}
	logrus.Infof("Alert created manually: %s %s", alert.AlertType, alert.ID)
	s.dispatch(alert)
	return alert, nil
}

// Get returns one alert by id
func (s *AlertService) Get(ctx context.Context, id string) (*models.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// Notifications returns the dispatch audit trail for an alert
func (s *AlertService) Notifications(ctx context.Context, alertID string) ([]models.NotificationRecord, error) {
	return s.store.ListNotifications(ctx, alertID)
}

// Active returns all alerts currently in active status
func (s *AlertService) Active(ctx context.Context) ([]models.Alert, error) {
	open, err := s.store.ListUnresolvedAlerts(ctx)
	if err != nil {
		return nil, err
	}
	active := []models.Alert{}
	for _, alert := range open {
		if alert.Status == models.StatusActive {
			active = append(active, alert)
		}
	}
	return active, nil
}

// List returns one page of alerts plus the summary block for the page
func (s *AlertService) List(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int, models.AlertListSummary, error) {
	alerts, total, err := s.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, 0, models.AlertListSummary{}, err
	}
	return alerts, total, summarizeAlerts(alerts), nil
}

func summarizeAlerts(alerts []models.Alert) models.AlertListSummary {
	summary := models.AlertListSummary{TotalAlerts: len(alerts)}
	resolved := 0
	for _, alert := range alerts {
		if alert.Severity == models.SeverityCritical {
			summary.CriticalAlerts++
		}
		if models.SeverityRank(alert.Severity) >= models.SeverityRank(models.SeverityHigh) {
			summary.HighPriority++
		}
		switch alert.Status {
		case models.StatusActive, models.StatusAcknowledged:
			summary.UnresolvedAlerts++
		case models.StatusResolved:
			resolved++
		}
	}
	summary.ResolutionRate = resolutionRate(resolved, summary.UnresolvedAlerts)
	return summary
}

// resolutionRate is resolved/(resolved+unresolved) as a percentage.
// No alerts in the window means there was nothing to resolve: 100%.
func resolutionRate(resolved, unresolved int) float64 {
	total := resolved + unresolved
	if total == 0 {
		return 100
	}
	return float64(resolved) / float64(total) * 100
}

// Summary aggregates current alert state for the dashboard header
func (s *AlertService) Summary(ctx context.Context) (*models.AlertSummary, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	window, err := s.store.ListAlertsSince(ctx, 30)
	if err != nil {
		return nil, err
	}

	summary := &models.AlertSummary{
		ActiveAlerts: len(active),
		BySeverity:   map[models.AlertSeverity]int{},
		ByType:       map[models.AlertType]int{},
	}
	for _, alert := range active {
		summary.BySeverity[alert.Severity]++
		summary.ByType[alert.AlertType]++
		if alert.Severity == models.SeverityCritical {
			summary.CriticalAlerts++
		}
	}

	dayAgo := time.Now().UTC().Add(-24 * time.Hour)
	var resolutionHours float64
	resolvedCount := 0
	for _, alert := range window {
		if alert.FirstDetected.After(dayAgo) {
			summary.Last24Hours++
		}
		if alert.Status == models.StatusResolved && alert.ResolvedAt != nil {
			resolutionHours += alert.ResolvedAt.Sub(alert.FirstDetected).Hours()
			resolvedCount++
		}
	}
	if resolvedCount > 0 {
		summary.AvgResolutionHours = resolutionHours / float64(resolvedCount)
	}
	return summary, nil
}

// Statistics reports resolution-rate and volume statistics over a window
func (s *AlertService) Statistics(ctx context.Context, daysBack int) (*models.AlertStatistics, error) {
	window, err := s.store.ListAlertsSince(ctx, daysBack)
	if err != nil {
		return nil, err
	}

	stats := &models.AlertStatistics{
		PeriodDays:  daysBack,
		TotalAlerts: len(window),
		BySeverity: map[models.AlertSeverity]int{
			models.SeverityCritical: 0, models.SeverityHigh: 0, models.SeverityMedium: 0,
			models.SeverityLow: 0, models.SeverityInfo: 0,
		},
		ByStatus: map[models.AlertStatus]int{
			models.StatusActive: 0, models.StatusAcknowledged: 0,
			models.StatusResolved: 0, models.StatusSuppressed: 0,
		},
		ByType:    map[models.AlertType]int{},
		Timestamp: time.Now().UTC(),
	}

	var resolutionHours float64
	timedResolutions := 0
	for _, alert := range window {
		stats.BySeverity[alert.Severity]++
		stats.ByStatus[alert.Status]++
		stats.ByType[alert.AlertType]++
		if alert.Status == models.StatusResolved {
			stats.TotalResolved++
			if alert.ResolvedAt != nil {
				resolutionHours += alert.ResolvedAt.Sub(alert.FirstDetected).Hours()
				timedResolutions++
			}
		}
	}

	unresolved := stats.ByStatus[models.StatusActive] + stats.ByStatus[models.StatusAcknowledged]
	stats.ResolutionRate = resolutionRate(stats.TotalResolved, unresolved)
	stats.CurrentActive = stats.ByStatus[models.StatusActive]
	if timedResolutions > 0 {
		stats.AvgResolutionHours = resolutionHours / float64(timedResolutions)
	}
	return stats, nil
}
