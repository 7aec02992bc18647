package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/execdash/alert-engine/pkg/config"
	"github.com/execdash/alert-engine/pkg/models"
)

// Detector evaluates the detection rules against an entity snapshot.
// Every rule is a pure function of (snapshot, thresholds): given the
// same snapshot and configuration it always emits the same candidates,
// and rules never depend on each other's output.
type Detector struct {
	cfg config.AlertsConfig
}

// NewDetector creates a detector with explicit thresholds
func NewDetector(cfg config.AlertsConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Evaluate runs all detection rules over the snapshot. A rule that
// cannot evaluate one entity is skipped for that entity and reported;
// it never aborts evaluation of other entities or rules.
func (d *Detector) Evaluate(snap *models.Snapshot) ([]models.Candidate, []*models.RuleEvaluationError) {
	candidates := []models.Candidate{}
	evalErrors := []*models.RuleEvaluationError{}

	record := func(err *models.RuleEvaluationError) {
		logrus.Warnf("Detection rule skipped entity: %v", err)
		evalErrors = append(evalErrors, err)
	}

	for _, ticket := range snap.Tickets {
		if ticket.Key == "" {
			record(&models.RuleEvaluationError{Rule: "ticket_rules", Entity: ticket.ProjectKey, Reason: "missing ticket key"})
			continue
		}
		if cand := d.evaluateStalled(ticket); cand != nil {
			candidates = append(candidates, *cand)
		}
		if cand := d.evaluateOverdue(ticket, snap); cand != nil {
			candidates = append(candidates, *cand)
		}
		if cand := d.evaluateQuality(ticket); cand != nil {
			candidates = append(candidates, *cand)
		}
	}

	for _, dep := range snap.Deployments {
		if dep.ID == "" {
			record(&models.RuleEvaluationError{Rule: "deployment_failure", Entity: dep.ProjectKey, Reason: "missing deployment id"})
			continue
		}
		if cand := d.evaluateDeployment(dep); cand != nil {
			candidates = append(candidates, *cand)
		}
	}

	for _, util := range snap.Utilization {
		if util.Member == "" {
			record(&models.RuleEvaluationError{Rule: "team_overload", Entity: "utilization", Reason: "missing member name"})
			continue
		}
		if cand := d.evaluateOverload(util); cand != nil {
			candidates = append(candidates, *cand)
		}
	}

	return candidates, evalErrors
}

// stalledSeverity scales with how far past the threshold the ticket sits
func stalledSeverity(daysOver int) models.AlertSeverity {
	switch {
	case daysOver >= 7:
		return models.SeverityCritical
	case daysOver >= 3:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

func (d *Detector) evaluateStalled(t models.TicketSnapshot) *models.Candidate {
	if d.cfg.IsTerminalStatus(t.Status) || t.DaysInStatus <= d.cfg.StalledDays {
		return nil
	}
	daysOver := t.DaysInStatus - d.cfg.StalledDays
	return &models.Candidate{
		AlertType:      models.AlertTypeStalledTicket,
		Severity:       stalledSeverity(daysOver),
		Title:          fmt.Sprintf("Ticket %s stalled for %d days", t.Key, t.DaysInStatus),
		Description:    fmt.Sprintf("Ticket %s has been in status %q for %d days (threshold %d)", t.Key, t.Status, t.DaysInStatus, d.cfg.StalledDays),
		Recommendation: "Review the ticket for blockers and reassign if the owner is unavailable",
		EntityKey:      t.Key,
		TicketKey:      t.Key,
		ProjectKey:     t.ProjectKey,
		Assignee:       t.Assignee,
		Client:         t.Client,
		AutoResolve:    true,
		Context: map[string]string{
			"status":         t.Status,
			"days_in_status": fmt.Sprintf("%d", t.DaysInStatus),
			"threshold_days": fmt.Sprintf("%d", d.cfg.StalledDays),
		},
	}
}

func overdueSeverity(daysOverdue int) models.AlertSeverity {
	switch {
	case daysOverdue >= 7:
		return models.SeverityCritical
	case daysOverdue >= 3:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

// evaluateOverdue compares due dates against the snapshot collection
// time rather than the wall clock so a pass is reproducible.
func (d *Detector) evaluateOverdue(t models.TicketSnapshot, snap *models.Snapshot) *models.Candidate {
	if t.DueDate == nil || d.cfg.IsTerminalStatus(t.Status) || !t.DueDate.Before(snap.CollectedAt) {
		return nil
	}
	daysOverdue := int(snap.CollectedAt.Sub(*t.DueDate).Hours() / 24)
	return &models.Candidate{
		AlertType:      models.AlertTypeOverdueTicket,
		Severity:       overdueSeverity(daysOverdue),
		Title:          fmt.Sprintf("Ticket %s is overdue", t.Key),
		Description:    fmt.Sprintf("Ticket %s was due on %s and is still in status %q", t.Key, t.DueDate.Format("2006-01-02"), t.Status),
		Recommendation: "Prioritize the overdue work and communicate the delay to the client",
		EntityKey:      t.Key,
		TicketKey:      t.Key,
		ProjectKey:     t.ProjectKey,
		Assignee:       t.Assignee,
		Client:         t.Client,
		AutoResolve:    true,
		Context: map[string]string{
			"due_date":     t.DueDate.Format("2006-01-02"),
			"days_overdue": fmt.Sprintf("%d", daysOverdue),
			"status":       t.Status,
		},
	}
}

func (d *Detector) evaluateQuality(t models.TicketSnapshot) *models.Candidate {
	if !t.ReviewFailed {
		return nil
	}
	return &models.Candidate{
		AlertType:      models.AlertTypeQualityRisk,
		Severity:       models.SeverityHigh,
		Title:          fmt.Sprintf("Ticket %s failed secondary review", t.Key),
		Description:    fmt.Sprintf("Ticket %s did not pass the secondary review gate and needs rework", t.Key),
		Recommendation: "Review the failure causes with the assignee before the next review cycle",
		EntityKey:      t.Key,
		TicketKey:      t.Key,
		ProjectKey:     t.ProjectKey,
		Assignee:       t.Assignee,
		Client:         t.Client,
		AutoResolve:    true,
		Context: map[string]string{
			"status": t.Status,
		},
	}
}

func (d *Detector) evaluateDeployment(dep models.DeploymentSnapshot) *models.Candidate {
	if !dep.Failed {
		return nil
	}
	// Client-linked failures are visible to the customer, so they page
	severity := models.SeverityHigh
	if dep.Client != "" {
		severity = models.SeverityCritical
	}
	return &models.Candidate{
		AlertType:      models.AlertTypeDeploymentFailure,
		Severity:       severity,
		Title:          fmt.Sprintf("Deployment %s failed", dep.ID),
		Description:    fmt.Sprintf("Deployment %s for project %s failed on %s. %s", dep.ID, dep.ProjectKey, dep.DeployedAt.Format("2006-01-02"), dep.Detail),
		Recommendation: "Inspect the deployment log and schedule a fix or rollback",
		EntityKey:      dep.ID,
		ProjectKey:     dep.ProjectKey,
		Client:         dep.Client,
		AutoResolve:    true,
		Context: map[string]string{
			"deployed_at": dep.DeployedAt.Format("2006-01-02"),
			"detail":      dep.Detail,
		},
	}
}

func (d *Detector) evaluateOverload(u models.UtilizationSnapshot) *models.Candidate {
	if u.Utilization <= d.cfg.UtilizationCeiling {
		return nil
	}
	severity := models.SeverityMedium
	if u.Utilization >= d.cfg.OverloadCritical {
		severity = models.SeverityHigh
	}
	return &models.Candidate{
		AlertType:      models.AlertTypeTeamOverload,
		Severity:       severity,
		Title:          fmt.Sprintf("%s is overloaded at %.0f%% utilization", u.Member, u.Utilization),
		Description:    fmt.Sprintf("%s logged %.0f%% utilization, above the %.0f%% ceiling", u.Member, u.Utilization, d.cfg.UtilizationCeiling),
		Recommendation: "Rebalance assignments before burnout or delivery slippage",
		EntityKey:      u.Member,
		Assignee:       u.Member,
		AutoResolve:    true,
		Context: map[string]string{
			"utilization": fmt.Sprintf("%.1f", u.Utilization),
			"ceiling":     fmt.Sprintf("%.0f", d.cfg.UtilizationCeiling),
		},
	}
}
