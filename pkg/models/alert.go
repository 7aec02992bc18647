package models

import (
	"fmt"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityLow      AlertSeverity = "low"
	SeverityInfo     AlertSeverity = "info"
)

// SeverityRank orders severities from info (0) to critical (4).
// Used for escalation checks and dispatch policy.
func SeverityRank(s AlertSeverity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	}
	return -1
}

// ParseSeverity validates a severity string
func ParseSeverity(s string) (AlertSeverity, error) {
	sev := AlertSeverity(s)
	if SeverityRank(sev) < 0 {
		return "", fmt.Errorf("invalid severity: %q", s)
	}
	return sev, nil
}

// AlertType represents the kind of risk condition an alert reports
type AlertType string

const (
	AlertTypeStalledTicket     AlertType = "stalled_ticket"
	AlertTypeOverdueTicket     AlertType = "overdue_ticket"
	AlertTypeDeploymentFailure AlertType = "deployment_failure"
	AlertTypeQualityRisk       AlertType = "quality_risk"
	AlertTypeTeamOverload      AlertType = "team_overload"
	AlertTypeManual            AlertType = "manual"
)

// ParseAlertType validates an alert type string
func ParseAlertType(s string) (AlertType, error) {
	switch t := AlertType(s); t {
	case AlertTypeStalledTicket, AlertTypeOverdueTicket, AlertTypeDeploymentFailure,
		AlertTypeQualityRisk, AlertTypeTeamOverload, AlertTypeManual:
		return t, nil
	}
	return "", fmt.Errorf("invalid alert type: %q", s)
}

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
	StatusSuppressed   AlertStatus = "suppressed"
)

// ParseAlertStatus validates an alert status string
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch st := AlertStatus(s); st {
	case StatusActive, StatusAcknowledged, StatusResolved, StatusSuppressed:
		return st, nil
	}
	return "", fmt.Errorf("invalid alert status: %q", s)
}

// IsTerminal reports whether the status admits no further transitions
func (s AlertStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusSuppressed
}

// Alert represents a detected risk condition.
// At most one active alert exists per dedup key; re-detection updates
// LastUpdated instead of creating a duplicate. Resolved and suppressed
// alerts are retained for audit and resolution-rate metrics.
type Alert struct {
	ID             string            `json:"id"`
	AlertType      AlertType         `json:"alert_type"`
	Severity       AlertSeverity     `json:"severity"`
	Status         AlertStatus       `json:"status"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Recommendation string            `json:"recommendation,omitempty"`
	TicketKey      string            `json:"ticket_key,omitempty"`
	ProjectKey     string            `json:"project_key,omitempty"`
	Assignee       string            `json:"assignee,omitempty"`
	Client         string            `json:"client,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	DedupKey       string            `json:"dedup_key"`
	AutoResolve    bool              `json:"auto_resolve"`
	FirstDetected  time.Time         `json:"first_detected"`
	LastUpdated    time.Time         `json:"last_updated"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string            `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy     string            `json:"resolved_by,omitempty"`
}

// Candidate is a detection rule observation that may become an alert.
// Carries enough context to build the alert's context snapshot.
type Candidate struct {
	AlertType      AlertType
	Severity       AlertSeverity
	Title          string
	Description    string
	Recommendation string
	EntityKey      string
	TicketKey      string
	ProjectKey     string
	Assignee       string
	Client         string
	Context        map[string]string
	AutoResolve    bool
}

// DedupKey identifies the (alert type, source entity) pair the
// one-active-alert invariant is keyed on.
func (c Candidate) DedupKey() string {
	return string(c.AlertType) + ":" + c.EntityKey
}

// CreateAlertRequest is the payload for manual alert creation
type CreateAlertRequest struct {
	AlertType      string            `json:"alert_type"`
	Severity       string            `json:"severity"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Recommendation string            `json:"recommendation,omitempty"`
	TicketKey      string            `json:"ticket_key,omitempty"`
	ProjectKey     string            `json:"project_key,omitempty"`
	Assignee       string            `json:"assignee,omitempty"`
	Client         string            `json:"client,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	AutoResolve    bool              `json:"auto_resolve"`
}

// AlertFilter narrows alert queries
type AlertFilter struct {
	Severity  AlertSeverity
	Status    AlertStatus
	AlertType AlertType
	DaysBack  int
	Limit     int
	Offset    int
}

// AlertListSummary is the summary block returned alongside a filtered page
type AlertListSummary struct {
	TotalAlerts      int     `json:"total_alerts"`
	CriticalAlerts   int     `json:"critical_alerts"`
	HighPriority     int     `json:"high_priority_alerts"`
	UnresolvedAlerts int     `json:"unresolved_alerts"`
	ResolutionRate   float64 `json:"resolution_rate"`
}

// AlertSummary aggregates current alert state for the dashboard header
type AlertSummary struct {
	ActiveAlerts       int                   `json:"active_alerts"`
	CriticalAlerts     int                   `json:"critical_alerts"`
	Last24Hours        int                   `json:"last_24h_alerts"`
	AvgResolutionHours float64               `json:"avg_resolution_hours"`
	BySeverity         map[AlertSeverity]int `json:"by_severity"`
	ByType             map[AlertType]int     `json:"by_type"`
}

// AlertStatistics reports resolution-rate and volume statistics over a window
type AlertStatistics struct {
	PeriodDays         int                   `json:"period_days"`
	TotalAlerts        int                   `json:"total_alerts"`
	BySeverity         map[AlertSeverity]int `json:"by_severity"`
	ByStatus           map[AlertStatus]int   `json:"by_status"`
	ByType             map[AlertType]int     `json:"by_type"`
	TotalResolved      int                   `json:"total_resolved"`
	ResolutionRate     float64               `json:"resolution_rate"`
	AvgResolutionHours float64               `json:"avg_resolution_hours"`
	CurrentActive      int                   `json:"current_active"`
	Timestamp          time.Time             `json:"timestamp"`
}

// PassSummary reports the outcome of one reconciliation pass
type PassSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Candidates int       `json:"candidates"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Resolved   int       `json:"resolved"`
	Errors     []string  `json:"errors,omitempty"`
}

// NotificationRecord is an immutable audit entry of a dispatch attempt
type NotificationRecord struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alert_id"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"` // sent or failed
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification delivery outcomes
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)
