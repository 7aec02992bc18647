package services

import (
	"context"
	"math"

	"github.com/execdash/alert-engine/pkg/config"
	"github.com/execdash/alert-engine/pkg/models"
	"github.com/execdash/alert-engine/pkg/store"
)

// RiskService computes the 1-10 business risk score. Scores are never
// stored; every read recomputes from the current snapshot and active
// alert set, so two reads against the same state return the same score.
type RiskService struct {
	cfg      config.AlertsConfig
	weights  config.ScoringConfig
	alerts   store.AlertStore
	snapshot store.SnapshotSource
}

// NewRiskService creates a risk service
func NewRiskService(cfg config.AlertsConfig, weights config.ScoringConfig, alerts store.AlertStore, snapshot store.SnapshotSource) *RiskService {
	return &RiskService{cfg: cfg, weights: weights, alerts: alerts, snapshot: snapshot}
}

// Scores loads the current snapshot and active alerts and computes the
// risk score from them
func (s *RiskService) Scores(ctx context.Context) (*models.RiskScore, error) {
	snap, err := s.snapshot.GetSnapshot(ctx, s.cfg.DeploymentLookbackDays)
	if err != nil {
		return nil, err
	}
	open, err := s.alerts.ListUnresolvedAlerts(ctx)
	if err != nil {
		return nil, err
	}
	active := []models.Alert{}
	for _, alert := range open {
		if alert.Status == models.StatusActive {
			active = append(active, alert)
		}
	}
	return s.Compute(snap, active), nil
}

// Compute is a pure function of the snapshot and the active alert set.
// Each dimension is clamped to [1, 10]; the overall score is the
// weighted average of the three dimensions.
func (s *RiskService) Compute(snap *models.Snapshot, active []models.Alert) *models.RiskScore {
	score := &models.RiskScore{ComputedAt: snap.CollectedAt}

	for _, t := range snap.Tickets {
		if s.cfg.IsTerminalStatus(t.Status) {
			continue
		}
		score.OpenTickets++
		if t.DaysInStatus > s.cfg.StalledDays {
			score.StalledTickets++
		}
		if t.DueDate != nil && t.DueDate.Before(snap.CollectedAt) {
			score.OverdueTickets++
		}
	}

	failed := 0
	for _, dep := range snap.Deployments {
		if dep.Failed {
			failed++
		}
	}
	if len(snap.Deployments) > 0 {
		score.DeploymentFailureRate = float64(failed) / float64(len(snap.Deployments))
	}

	for _, alert := range active {
		if alert.AlertType == models.AlertTypeQualityRisk {
			score.QualityAlerts++
		}
	}

	score.TeamSize = len(snap.Utilization)
	for _, u := range snap.Utilization {
		if u.Utilization < s.cfg.UtilizationFloor || u.Utilization > s.cfg.UtilizationCeiling {
			score.MembersOutsideBand++
		}
	}

	score.Delivery = s.deliveryScore(score)
	score.Quality = s.qualityScore(score)
	score.Resource = s.resourceScore(score)
	score.Overall = s.overallScore(score)
	return score
}

// deliveryScore scales with the fraction of open tickets that are
// stalled or overdue. No open tickets means no delivery exposure.
func (s *RiskService) deliveryScore(sc *models.RiskScore) float64 {
	if sc.OpenTickets == 0 {
		return 1
	}
	atRisk := float64(sc.StalledTickets + sc.OverdueTickets)
	return clampScore(1 + 9*atRisk/float64(sc.OpenTickets))
}

// qualityScore blends the deployment failure rate with the volume of
// open quality alerts
func (s *RiskService) qualityScore(sc *models.RiskScore) float64 {
	alertLoad := math.Min(float64(sc.QualityAlerts), 10) / 10
	return clampScore(1 + 9*(0.7*sc.DeploymentFailureRate+0.3*alertLoad))
}

// resourceScore scales with the fraction of the team outside the
// healthy utilization band
func (s *RiskService) resourceScore(sc *models.RiskScore) float64 {
	if sc.TeamSize == 0 {
		return 1
	}
	return clampScore(1 + 9*float64(sc.MembersOutsideBand)/float64(sc.TeamSize))
}

func (s *RiskService) overallScore(sc *models.RiskScore) float64 {
	totalWeight := s.weights.DeliveryWeight + s.weights.QualityWeight + s.weights.ResourceWeight
	if totalWeight == 0 {
		return 1
	}
	weighted := sc.Delivery*s.weights.DeliveryWeight +
		sc.Quality*s.weights.QualityWeight +
		sc.Resource*s.weights.ResourceWeight
	return round1(weighted / totalWeight)
}

func clampScore(v float64) float64 {
	if v < 1 {
		v = 1
	}
	if v > 10 {
		v = 10
	}
	return round1(v)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
