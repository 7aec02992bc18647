package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execdash/alert-engine/pkg/config"
	"github.com/execdash/alert-engine/pkg/models"
	"github.com/execdash/alert-engine/pkg/services"
	"github.com/execdash/alert-engine/pkg/store"
)

// setupTestRouter wires the full service stack over the in-memory store
func setupTestRouter() (*echo.Echo, *store.Memory) {
	mem := store.NewMemory()
	cfg := config.AlertsConfig{
		StalledDays:            5,
		TerminalStatuses:       []string{"Done", "Closed", "Resolved", "Cancelled"},
		DeploymentLookbackDays: 30,
		UtilizationFloor:       80,
		UtilizationCeiling:     110,
		OverloadCritical:       130,
	}
	weights := config.ScoringConfig{DeliveryWeight: 1, QualityWeight: 1, ResourceWeight: 1}

	notifier := services.NewNotifier(config.NotificationsConfig{}, mem)
	alertService := services.NewAlertService(mem, nil)
	riskService := services.NewRiskService(cfg, weights, mem, mem)
	monitor := services.NewMonitor(cfg, mem, services.NewDetector(cfg), alertService)

	e := echo.New()
	handler := NewAPIHandler(alertService, riskService, notifier, monitor)
	handler.SetupRoutes(e)
	return e, mem
}

func createTestAlert(t *testing.T, router *echo.Echo, title, severity string) models.Alert {
	t.Helper()
	body, err := json.Marshal(models.CreateAlertRequest{
		Severity:    severity,
		Title:       title,
		Description: "test alert",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/create", bytes.NewBuffer(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var alert models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alert))
	return alert
}

func TestHealth(t *testing.T) {
	router, _ := setupTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAlert(t *testing.T) {
	router, _ := setupTestRouter()

	tests := []struct {
		name       string
		request    models.CreateAlertRequest
		wantStatus int
	}{
		{
			name: "valid alert",
			request: models.CreateAlertRequest{
				Severity:    "high",
				Title:       "Client escalation",
				Description: "Acme raised a delivery concern",
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "invalid severity",
			request: models.CreateAlertRequest{
				Severity: "urgent",
				Title:    "Client escalation",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing title",
			request: models.CreateAlertRequest{
				Severity: "high",
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(tt.request)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/api/alerts/create", bytes.NewBuffer(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusCreated {
				var alert models.Alert
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alert))
				assert.NotEmpty(t, alert.ID)
				assert.Equal(t, models.StatusActive, alert.Status)
				assert.Equal(t, models.AlertTypeManual, alert.AlertType)
			}
		})
	}
}

func TestGetAlerts(t *testing.T) {
	router, _ := setupTestRouter()
	createTestAlert(t, router, "First alert", "critical")
	createTestAlert(t, router, "Second alert", "medium")

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Alerts     []models.Alert `json:"alerts"`
		Pagination struct {
			TotalCount int  `json:"total_count"`
			HasMore    bool `json:"has_more"`
		} `json:"pagination"`
		Summary models.AlertListSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Len(t, response.Alerts, 2)
	assert.Equal(t, 2, response.Pagination.TotalCount)
	assert.False(t, response.Pagination.HasMore)
	assert.Equal(t, 1, response.Summary.CriticalAlerts)
	assert.Equal(t, 2, response.Summary.UnresolvedAlerts)
}

func TestGetAlertsFilterValidation(t *testing.T) {
	router, _ := setupTestRouter()

	tests := []struct {
		name  string
		query string
	}{
		{name: "invalid severity", query: "severity=urgent"},
		{name: "invalid status", query: "status=open"},
		{name: "invalid alert type", query: "alert_type=mystery"},
		{name: "invalid days_back", query: "days_back=soon"},
		{name: "invalid limit", query: "limit=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/alerts?"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetAlertsPagination(t *testing.T) {
	router, _ := setupTestRouter()
	createTestAlert(t, router, "First alert", "high")
	createTestAlert(t, router, "Second alert", "high")
	createTestAlert(t, router, "Third alert", "high")

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?limit=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Alerts     []models.Alert `json:"alerts"`
		Pagination struct {
			TotalCount int  `json:"total_count"`
			HasMore    bool `json:"has_more"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Len(t, response.Alerts, 2)
	assert.Equal(t, 3, response.Pagination.TotalCount)
	assert.True(t, response.Pagination.HasMore)
}

func TestGetAlertsDefaultWindow(t *testing.T) {
	router, mem := setupTestRouter()

	// An alert outside the default 7-day window
	require.NoError(t, mem.InsertAlert(context.Background(), &models.Alert{
		ID:            "old-alert",
		AlertType:     models.AlertTypeStalledTicket,
		Severity:      models.SeverityMedium,
		Status:        models.StatusResolved,
		Title:         "Old alert",
		DedupKey:      "stalled_ticket:OLD-1",
		FirstDetected: time.Now().UTC().AddDate(0, 0, -10),
		LastUpdated:   time.Now().UTC().AddDate(0, 0, -10),
	}))
	createTestAlert(t, router, "Recent alert", "high")

	var response struct {
		Alerts     []models.Alert `json:"alerts"`
		Pagination struct {
			TotalCount int `json:"total_count"`
		} `json:"pagination"`
	}

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Alerts, 1)
	assert.Equal(t, "Recent alert", response.Alerts[0].Title)

	// days_back=0 disables the window
	req = httptest.NewRequest(http.MethodGet, "/api/alerts?days_back=0", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Pagination.TotalCount)
}

func TestGetAlert(t *testing.T) {
	router, _ := setupTestRouter()
	alert := createTestAlert(t, router, "Lookup target", "high")

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/"+alert.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, alert.ID, got.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/alerts/no-such-id", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcknowledgeAlert(t *testing.T) {
	router, _ := setupTestRouter()
	alert := createTestAlert(t, router, "Needs attention", "high")

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/"+alert.ID+"/acknowledge?acknowledged_by=alex", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Alert models.Alert `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, models.StatusAcknowledged, response.Alert.Status)
	assert.Equal(t, "alex", response.Alert.AcknowledgedBy)

	// Acknowledging twice conflicts with the current state
	req = httptest.NewRequest(http.MethodPost, "/api/alerts/"+alert.ID+"/acknowledge?acknowledged_by=sam", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown ids map to not found
	req = httptest.NewRequest(http.MethodPost, "/api/alerts/no-such-id/acknowledge?acknowledged_by=alex", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcknowledgeAlertRequiresActor(t *testing.T) {
	router, _ := setupTestRouter()
	alert := createTestAlert(t, router, "Needs an owner", "high")

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/"+alert.ID+"/acknowledge", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The alert stays active when the request is rejected
	req = httptest.NewRequest(http.MethodGet, "/api/alerts/"+alert.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestGetActiveAlerts(t *testing.T) {
	router, _ := setupTestRouter()
	alert := createTestAlert(t, router, "Active one", "high")
	createTestAlert(t, router, "Active two", "medium")

	// Acknowledge one; only the other remains active
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/"+alert.ID+"/acknowledge?acknowledged_by=alex", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/alerts/active", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Alerts []models.Alert `json:"alerts"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
	require.Len(t, response.Alerts, 1)
	assert.Equal(t, "Active two", response.Alerts[0].Title)
}

func TestGetAlertSummary(t *testing.T) {
	router, _ := setupTestRouter()
	createTestAlert(t, router, "Critical issue", "critical")
	createTestAlert(t, router, "Minor issue", "low")

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/summary", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.AlertSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.ActiveAlerts)
	assert.Equal(t, 1, summary.CriticalAlerts)
}

func TestGetAlertStatistics(t *testing.T) {
	router, _ := setupTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/statistics/overview", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.AlertStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 30, stats.PeriodDays)
	assert.Equal(t, float64(100), stats.ResolutionRate)

	req = httptest.NewRequest(http.MethodGet, "/api/alerts/statistics/overview?days_back=bad", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRiskScores(t *testing.T) {
	router, mem := setupTestRouter()
	mem.SetSnapshot(&models.Snapshot{
		Tickets: []models.TicketSnapshot{
			{Key: "PROJ-1", Status: "In Progress", DaysInStatus: 8},
			{Key: "PROJ-2", Status: "In Progress", DaysInStatus: 1},
		},
		CollectedAt: time.Now().UTC(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/risk/scores", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var score models.RiskScore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &score))
	assert.Equal(t, 1, score.StalledTickets)
	assert.Equal(t, 2, score.OpenTickets)
	assert.InDelta(t, 5.5, score.Delivery, 0.001)
}

func TestTriggerReconcile(t *testing.T) {
	router, mem := setupTestRouter()
	mem.SetSnapshot(&models.Snapshot{
		Tickets: []models.TicketSnapshot{
			{Key: "PROJ-1", Status: "In Progress", DaysInStatus: 9},
		},
		CollectedAt: time.Now().UTC(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/reconcile", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.PassSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Created)

	// The alert is now queryable through the REST surface
	req = httptest.NewRequest(http.MethodGet, "/api/alerts/active", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
}

func TestGetAlertNotifications(t *testing.T) {
	router, _ := setupTestRouter()
	alert := createTestAlert(t, router, "Audited alert", "high")

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/"+alert.ID+"/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		AlertID       string                      `json:"alert_id"`
		Notifications []models.NotificationRecord `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, alert.ID, response.AlertID)

	req = httptest.NewRequest(http.MethodGet, "/api/alerts/no-such-id/notifications", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestNotificationRequiresChannel(t *testing.T) {
	router, _ := setupTestRouter()

	body := bytes.NewBufferString(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/test-notification", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestNotificationAcceptsQueryParams(t *testing.T) {
	router, _ := setupTestRouter()

	// The channel argument is read from the query string; with no
	// channel enabled the request reaches the notifier and fails there,
	// not at validation
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/test-notification?channel=webhook&recipient=ops@example.com", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTestNotificationAcceptsBodyFallback(t *testing.T) {
	router, _ := setupTestRouter()

	body := bytes.NewBufferString(`{"channel": "webhook", "recipient": "ops@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/test-notification", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
