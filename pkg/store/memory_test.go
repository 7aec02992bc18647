package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execdash/alert-engine/pkg/models"
)

func seedAlert(t *testing.T, mem *Memory, id, dedupKey string, status models.AlertStatus, firstDetected time.Time) {
	t.Helper()
	err := mem.InsertAlert(context.Background(), &models.Alert{
		ID:            id,
		AlertType:     models.AlertTypeStalledTicket,
		Severity:      models.SeverityMedium,
		Status:        status,
		Title:         "seeded",
		DedupKey:      dedupKey,
		FirstDetected: firstDetected,
		LastUpdated:   firstDetected,
	})
	require.NoError(t, err)
}

func TestTransitionAlertEnforcesStateMachine(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedAlert(t, mem, "a-1", "stalled_ticket:PROJ-1", models.StatusActive, now)

	// active -> acknowledged stamps actor and time
	err := mem.TransitionAlert(ctx, "a-1",
		[]models.AlertStatus{models.StatusActive}, models.StatusAcknowledged, "alex", now)
	require.NoError(t, err)

	alert, err := mem.GetAlert(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, alert.Status)
	assert.Equal(t, "alex", alert.AcknowledgedBy)
	require.NotNil(t, alert.AcknowledgedAt)

	// acknowledged is not in the expected set for another acknowledge
	err = mem.TransitionAlert(ctx, "a-1",
		[]models.AlertStatus{models.StatusActive}, models.StatusAcknowledged, "sam", now)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// acknowledged -> resolved is allowed
	err = mem.TransitionAlert(ctx, "a-1",
		[]models.AlertStatus{models.StatusActive, models.StatusAcknowledged}, models.StatusResolved, "system", now)
	require.NoError(t, err)

	alert, err = mem.GetAlert(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, alert.Status)
	assert.Equal(t, "system", alert.ResolvedBy)

	// resolved is terminal
	err = mem.TransitionAlert(ctx, "a-1",
		[]models.AlertStatus{models.StatusActive}, models.StatusAcknowledged, "alex", now)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	err = mem.TransitionAlert(ctx, "missing",
		[]models.AlertStatus{models.StatusActive}, models.StatusAcknowledged, "alex", now)
	assert.ErrorIs(t, err, models.ErrAlertNotFound)
}

func TestGetOpenAlertByKeyMatchesAcknowledged(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedAlert(t, mem, "a-1", "stalled_ticket:PROJ-1", models.StatusAcknowledged, now)

	alert, err := mem.GetOpenAlertByKey(ctx, "stalled_ticket:PROJ-1")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "a-1", alert.ID)

	missing, err := mem.GetOpenAlertByKey(ctx, "stalled_ticket:PROJ-9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDedupKeyFreedAfterResolution(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedAlert(t, mem, "a-1", "stalled_ticket:PROJ-1", models.StatusActive, now)

	err := mem.TransitionAlert(ctx, "a-1",
		[]models.AlertStatus{models.StatusActive}, models.StatusResolved, "system", now)
	require.NoError(t, err)

	// A new active alert may reuse the key once the old one resolved
	seedAlert(t, mem, "a-2", "stalled_ticket:PROJ-1", models.StatusActive, now)

	alert, err := mem.GetOpenAlertByKey(ctx, "stalled_ticket:PROJ-1")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "a-2", alert.ID)
}

func TestListAlertsOrderingAndWindow(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedAlert(t, mem, "old", "stalled_ticket:OLD-1", models.StatusActive, now.AddDate(0, 0, -40))
	seedAlert(t, mem, "mid", "stalled_ticket:MID-1", models.StatusActive, now.AddDate(0, 0, -10))
	seedAlert(t, mem, "new", "stalled_ticket:NEW-1", models.StatusActive, now)

	alerts, total, err := mem.ListAlerts(ctx, models.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, alerts, 3)
	assert.Equal(t, "new", alerts[0].ID)
	assert.Equal(t, "old", alerts[2].ID)

	recent, err := mem.ListAlertsSince(ctx, 30)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].ID)
}

func TestTouchAlertRefreshesOpenAlertsOnly(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	seedAlert(t, mem, "a-1", "stalled_ticket:PROJ-1", models.StatusActive, now.Add(-time.Hour))

	later := now.Add(time.Minute)
	err := mem.TouchAlert(ctx, "a-1", models.SeverityHigh, map[string]string{"days_in_status": "9"}, later)
	require.NoError(t, err)

	alert, err := mem.GetAlert(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, later, alert.LastUpdated)

	require.NoError(t, mem.TransitionAlert(ctx, "a-1",
		[]models.AlertStatus{models.StatusActive}, models.StatusResolved, "system", later))
	err = mem.TouchAlert(ctx, "a-1", models.SeverityLow, nil, later)
	assert.ErrorIs(t, err, models.ErrAlertNotFound)
}
