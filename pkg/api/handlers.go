package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/execdash/alert-engine/pkg/models"
	"github.com/execdash/alert-engine/pkg/services"
)

// APIHandler handles HTTP API requests
type APIHandler struct {
	alertService *services.AlertService
	riskService  *services.RiskService
	notifier     *services.Notifier
	monitor      *services.Monitor
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(alertService *services.AlertService, riskService *services.RiskService, notifier *services.Notifier, monitor *services.Monitor) *APIHandler {
	return &APIHandler{
		alertService: alertService,
		riskService:  riskService,
		notifier:     notifier,
		monitor:      monitor,
	}
}

// errorResponse maps service errors onto HTTP statuses. The error kind
// decides the status; the message carries the detail.
func errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrAlertNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Alert not found"})
	case errors.Is(err, models.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, map[string]string{"error": "Alert is not in a state that allows this transition"})
	case errors.Is(err, models.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Alert store is unavailable"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("Internal error: %v", err)})
	}
}

// GetAlerts returns a filtered page of alerts with pagination metadata
// and a summary block. The listing is windowed to the last 7 days
// unless days_back says otherwise; days_back=0 disables the window.
func (h *APIHandler) GetAlerts(c echo.Context) error {
	filter := models.AlertFilter{Limit: 50, DaysBack: 7}

	if sev := c.QueryParam("severity"); sev != "" {
		parsed, err := models.ParseSeverity(sev)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		filter.Severity = parsed
	}
	if status := c.QueryParam("status"); status != "" {
		parsed, err := models.ParseAlertStatus(status)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		filter.Status = parsed
	}
	if alertType := c.QueryParam("alert_type"); alertType != "" {
		parsed, err := models.ParseAlertType(alertType)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		filter.AlertType = parsed
	}
	if days := c.QueryParam("days_back"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid days_back"})
		}
		filter.DaysBack = n
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		filter.Limit = n
	}
	if offset := c.QueryParam("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid offset"})
		}
		filter.Offset = n
	}

	alerts, total, summary, err := h.alertService.List(c.Request().Context(), filter)
	if err != nil {
		logrus.Errorf("Error listing alerts: %v", err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"pagination": map[string]interface{}{
			"total_count": total,
			"limit":       filter.Limit,
			"offset":      filter.Offset,
			"has_more":    filter.Offset+len(alerts) < total,
		},
		"summary": summary,
		"filters_applied": map[string]interface{}{
			"severity":   filter.Severity,
			"status":     filter.Status,
			"alert_type": filter.AlertType,
			"days_back":  filter.DaysBack,
		},
	})
}

// GetActiveAlerts returns all alerts currently in active status
func (h *APIHandler) GetActiveAlerts(c echo.Context) error {
	alerts, err := h.alertService.Active(c.Request().Context())
	if err != nil {
		logrus.Errorf("Error getting active alerts: %v", err)
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetAlertSummary returns the dashboard-header aggregate of alert state
func (h *APIHandler) GetAlertSummary(c echo.Context) error {
	summary, err := h.alertService.Summary(c.Request().Context())
	if err != nil {
		logrus.Errorf("Error getting alert summary: %v", err)
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// GetAlertStatistics returns resolution statistics over a lookback window
func (h *APIHandler) GetAlertStatistics(c echo.Context) error {
	daysBack := 30
	if days := c.QueryParam("days_back"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid days_back"})
		}
		daysBack = n
	}

	stats, err := h.alertService.Statistics(c.Request().Context(), daysBack)
	if err != nil {
		logrus.Errorf("Error getting alert statistics: %v", err)
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// GetAlert returns an alert by ID
func (h *APIHandler) GetAlert(c echo.Context) error {
	id := c.Param("id")
	alert, err := h.alertService.Get(c.Request().Context(), id)
	if err != nil {
		logrus.Errorf("Error getting alert %s: %v", id, err)
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, alert)
}

// GetAlertNotifications returns the dispatch audit trail for an alert
func (h *APIHandler) GetAlertNotifications(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.alertService.Get(c.Request().Context(), id); err != nil {
		return errorResponse(c, err)
	}
	records, err := h.alertService.Notifications(c.Request().Context(), id)
	if err != nil {
		logrus.Errorf("Error getting notifications for alert %s: %v", id, err)
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"alert_id":      id,
		"notifications": records,
	})
}

// AcknowledgeAlert acknowledges an active alert
func (h *APIHandler) AcknowledgeAlert(c echo.Context) error {
	id := c.Param("id")

	actor := c.QueryParam("acknowledged_by")
	if actor == "" {
		var req struct {
			AcknowledgedBy string `json:"acknowledged_by"`
		}
		if err := c.Bind(&req); err == nil {
			actor = req.AcknowledgedBy
		}
	}
	if actor == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "acknowledged_by is required"})
	}

	alert, err := h.alertService.Acknowledge(c.Request().Context(), id, actor)
	if err != nil {
		logrus.Errorf("Error acknowledging alert %s: %v", id, err)
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Alert acknowledged successfully",
		"alert":   alert,
	})
}

// CreateAlert manually creates an alert
func (h *APIHandler) CreateAlert(c echo.Context) error {
	var req models.CreateAlertRequest
	if err := c.Bind(&req); err != nil {
		logrus.Errorf("Error binding create alert request: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}

	alert, err := h.alertService.Create(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) || errors.Is(err, models.ErrDuplicateActiveAlert) {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, alert)
}

// TestNotification sends a test notification through one channel.
// Channel and recipient arrive as query parameters, with a JSON body
// accepted as a fallback.
func (h *APIHandler) TestNotification(c echo.Context) error {
	channel := c.QueryParam("channel")
	recipient := c.QueryParam("recipient")
	if channel == "" {
		var req struct {
			Channel   string `json:"channel"`
			Recipient string `json:"recipient"`
		}
		if err := c.Bind(&req); err == nil {
			channel = req.Channel
			if recipient == "" {
				recipient = req.Recipient
			}
		}
	}
	if channel == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "channel is required"})
	}

	if err := h.notifier.Test(c.Request().Context(), channel, recipient); err != nil {
		logrus.Errorf("Test notification via %s failed: %v", channel, err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": fmt.Sprintf("Test notification failed: %v", err)})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Test notification sent successfully"})
}

// GetRiskScores computes the current risk score from live state
func (h *APIHandler) GetRiskScores(c echo.Context) error {
	score, err := h.riskService.Scores(c.Request().Context())
	if err != nil {
		logrus.Errorf("Error computing risk scores: %v", err)
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, score)
}

// TriggerReconcile runs a reconciliation pass on demand
func (h *APIHandler) TriggerReconcile(c echo.Context) error {
	summary, err := h.monitor.RunOnce(c.Request().Context())
	if err != nil {
		logrus.Errorf("Manual reconciliation failed: %v", err)
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// Health reports service liveness
func (h *APIHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// SetupRoutes sets up the API routes
func (h *APIHandler) SetupRoutes(e *echo.Echo) {
	// Alert endpoints
	e.GET("/api/alerts", h.GetAlerts)
	e.GET("/api/alerts/active", h.GetActiveAlerts)
	e.GET("/api/alerts/summary", h.GetAlertSummary)
	e.GET("/api/alerts/statistics/overview", h.GetAlertStatistics)
	e.GET("/api/alerts/:id", h.GetAlert)
	e.GET("/api/alerts/:id/notifications", h.GetAlertNotifications)
	e.POST("/api/alerts/:id/acknowledge", h.AcknowledgeAlert)
	e.POST("/api/alerts/create", h.CreateAlert)
	e.POST("/api/alerts/test-notification", h.TestNotification)

	// Risk scoring
	e.GET("/api/risk/scores", h.GetRiskScores)

	// Reconciliation
	e.POST("/api/reconcile", h.TriggerReconcile)

	// Health
	e.GET("/health", h.Health)
}
