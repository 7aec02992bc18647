package models

import "time"

// RiskScore is the normalized 1-10 business risk assessment, recomputed
// on every read from current alert and entity state
type RiskScore struct {
	Delivery   float64   `json:"delivery_score"`
	Quality    float64   `json:"quality_score"`
	Resource   float64   `json:"resource_score"`
	Overall    float64   `json:"overall_score"`
	ComputedAt time.Time `json:"computed_at"`

	// Inputs echoed back for the dashboard drill-down
	StalledTickets        int     `json:"stalled_tickets"`
	OverdueTickets        int     `json:"overdue_tickets"`
	OpenTickets           int     `json:"open_tickets"`
	DeploymentFailureRate float64 `json:"deployment_failure_rate"`
	QualityAlerts         int     `json:"quality_alerts"`
	MembersOutsideBand    int     `json:"members_outside_band"`
	TeamSize              int     `json:"team_size"`
}
