package models

import "time"

// TicketSnapshot is the ingested state of a work item at detection time
type TicketSnapshot struct {
	Key          string     `json:"key"`
	ProjectKey   string     `json:"project_key"`
	Assignee     string     `json:"assignee"`
	Client       string     `json:"client"`
	Status       string     `json:"status"`
	DaysInStatus int        `json:"days_in_status"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ReviewFailed bool       `json:"review_failed"`
}

// DeploymentSnapshot is the ingested state of a deployment record
type DeploymentSnapshot struct {
	ID         string    `json:"id"`
	ProjectKey string    `json:"project_key"`
	Client     string    `json:"client"`
	Failed     bool      `json:"failed"`
	Detail     string    `json:"detail,omitempty"`
	DeployedAt time.Time `json:"deployed_at"`
}

// UtilizationSnapshot is one team member's logged utilization percentage
// over the tracking window
type UtilizationSnapshot struct {
	Member      string  `json:"member"`
	Utilization float64 `json:"utilization"`
}

// Snapshot bundles the entity state one reconciliation pass evaluates.
// Produced by the ingestion collaborator; detection rules never reach
// past it.
type Snapshot struct {
	Tickets     []TicketSnapshot      `json:"tickets"`
	Deployments []DeploymentSnapshot  `json:"deployments"`
	Utilization []UtilizationSnapshot `json:"utilization"`
	CollectedAt time.Time             `json:"collected_at"`
}
