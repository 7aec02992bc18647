package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/execdash/alert-engine/pkg/config"
	"github.com/execdash/alert-engine/pkg/models"
	"github.com/execdash/alert-engine/pkg/store"
)

// Channel delivers one alert to one destination. Implementations must
// be safe for concurrent use.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *models.Alert, recipient string) error
}

// Notifier fans an alert out to the configured channels and records
// every attempt in the audit trail. Delivery failures never propagate
// into the alert lifecycle; the alert exists whether or not anyone was
// told about it.
type Notifier struct {
	cfg      config.NotificationsConfig
	store    store.AlertStore
	channels []Channel
}

// NewNotifier builds a notifier with the channels enabled in config
func NewNotifier(cfg config.NotificationsConfig, alertStore store.AlertStore) *Notifier {
	n := &Notifier{cfg: cfg, store: alertStore}
	if cfg.Email.Enabled {
		n.channels = append(n.channels, &EmailChannel{cfg: cfg.Email})
	}
	if cfg.Webhook.Enabled {
		n.channels = append(n.channels, NewWebhookChannel(cfg.Webhook))
	}
	return n
}

// Dispatch delivers an alert to every enabled channel. Only critical
// and high alerts page; lower severities are dashboard-only.
func (n *Notifier) Dispatch(ctx context.Context, alert *models.Alert) {
	if models.SeverityRank(alert.Severity) < models.SeverityRank(models.SeverityHigh) {
		return
	}
	for _, ch := range n.channels {
		recipients := n.recipientsFor(ch)
		for _, recipient := range recipients {
			n.deliver(ctx, ch, alert, recipient)
		}
	}
}

// Test sends a test notification through one named channel
func (n *Notifier) Test(ctx context.Context, channelName, recipient string) error {
	alert := &models.Alert{
		ID:          uuid.New().String(),
		AlertType:   models.AlertTypeManual,
		Severity:    models.SeverityInfo,
		Status:      models.StatusActive,
		Title:       "Test notification",
		Description: "This is a test notification from the alert engine",
	}
	for _, ch := range n.channels {
		if ch.Name() == channelName {
			return ch.Send(ctx, alert, recipient)
		}
	}
	return fmt.Errorf("channel %q is not enabled", channelName)
}

func (n *Notifier) recipientsFor(ch Channel) []string {
	if ch.Name() == "webhook" {
		// The webhook destination is the configured URL itself
		return []string{""}
	}
	return n.cfg.EscalationRecipients
}

// deliver retries transient failures with a linear backoff, then writes
// one audit record for the final outcome
func (n *Notifier) deliver(ctx context.Context, ch Channel, alert *models.Alert, recipient string) {
	attempts := 0
	var lastErr error
	for attempts <= n.cfg.MaxRetries {
		attempts++
		lastErr = ch.Send(ctx, alert, recipient)
		if lastErr == nil {
			break
		}
		logrus.Warnf("Notification attempt %d via %s failed: %v", attempts, ch.Name(), lastErr)
		if attempts <= n.cfg.MaxRetries {
			time.Sleep(time.Duration(n.cfg.BackoffSeconds) * time.Second)
		}
	}

	record := &models.NotificationRecord{
		ID:        uuid.New().String(),
		AlertID:   alert.ID,
		Channel:   ch.Name(),
		Recipient: recipient,
		Status:    models.NotificationSent,
		Attempts:  attempts,
		CreatedAt: time.Now().UTC(),
	}
	if lastErr != nil {
		record.Status = models.NotificationFailed
		record.Error = (&models.DeliveryError{Channel: ch.Name(), Recipient: recipient, Err: lastErr}).Error()
	}
	if err := n.store.InsertNotification(ctx, record); err != nil {
		logrus.Errorf("Failed to record notification for alert %s: %v", alert.ID, err)
	}
}

// EmailChannel delivers alerts over SMTP
type EmailChannel struct {
	cfg config.EmailConfig
}

// Name implements Channel
func (c *EmailChannel) Name() string { return "email" }

// Send implements Channel
func (c *EmailChannel) Send(ctx context.Context, alert *models.Alert, recipient string) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	body := alert.Description
	if alert.Recommendation != "" {
		body += "\r\n\r\nRecommended action: " + alert.Recommendation
	}
	msg := strings.Join([]string{
		"From: " + c.cfg.From,
		"To: " + recipient,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}
	return smtp.SendMail(addr, auth, c.cfg.From, []string{recipient}, []byte(msg))
}

// WebhookChannel posts alerts to a chat webhook (Slack-compatible payload)
type WebhookChannel struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates a webhook channel with a bounded timeout
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Name implements Channel
func (c *WebhookChannel) Name() string { return "webhook" }

var severityColors = map[models.AlertSeverity]string{
	models.SeverityCritical: "#dc2626",
	models.SeverityHigh:     "#ea580c",
	models.SeverityMedium:   "#d97706",
	models.SeverityLow:      "#65a30d",
	models.SeverityInfo:     "#2563eb",
}

// Send implements Channel
func (c *WebhookChannel) Send(ctx context.Context, alert *models.Alert, recipient string) error {
	url := c.cfg.URL
	if recipient != "" {
		url = recipient
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title),
		"attachments": []map[string]interface{}{
			{
				"color": severityColors[alert.Severity],
				"text":  alert.Description,
				"fields": []map[string]interface{}{
					{"title": "Type", "value": string(alert.AlertType), "short": true},
					{"title": "Severity", "value": string(alert.Severity), "short": true},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
