package config

import (
	"fmt"
	"net"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Scoring       ScoringConfig       `mapstructure:"scoring"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	AllowedOrigins  string `mapstructure:"allowedOrigins"`
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"`
}

// PostgresConfig holds the alert store connection configuration
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the connection string, preferring an explicit URL
func (c PostgresConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   c.Database,
	}
	if c.Password == "" {
		u.User = url.User(c.User)
	} else {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// AlertsConfig holds detection thresholds and the reconciliation schedule.
// Passed explicitly into the detector so rule evaluation stays a pure
// function of (snapshot, thresholds).
type AlertsConfig struct {
	StalledDays            int      `mapstructure:"stalledDays"`
	TerminalStatuses       []string `mapstructure:"terminalStatuses"`
	DeploymentLookbackDays int      `mapstructure:"deploymentLookbackDays"`
	UtilizationFloor       float64  `mapstructure:"utilizationFloor"`
	UtilizationCeiling     float64  `mapstructure:"utilizationCeiling"`
	OverloadCritical       float64  `mapstructure:"overloadCritical"`
	ReconcileMinutes       int      `mapstructure:"reconcileMinutes"`
}

// IsTerminalStatus reports whether a ticket status counts as closed
// for stalled/overdue detection
func (c AlertsConfig) IsTerminalStatus(status string) bool {
	for _, s := range c.TerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ScoringConfig holds the risk dimension weights
type ScoringConfig struct {
	DeliveryWeight float64 `mapstructure:"deliveryWeight"`
	QualityWeight  float64 `mapstructure:"qualityWeight"`
	ResourceWeight float64 `mapstructure:"resourceWeight"`
}

// NotificationsConfig holds channel settings and the dispatch policy
type NotificationsConfig struct {
	Email   EmailConfig   `mapstructure:"email"`
	Webhook WebhookConfig `mapstructure:"webhook"`

	// Recipients paged for critical/high alerts
	EscalationRecipients []string `mapstructure:"escalationRecipients"`

	MaxRetries     int `mapstructure:"maxRetries"`
	BackoffSeconds int `mapstructure:"backoffSeconds"`
}

// EmailConfig holds the SMTP channel configuration
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// WebhookConfig holds the chat webhook channel configuration
type WebhookConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

// LoadConfig loads the application configuration from file or environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowedOrigins", "*")
	viper.SetDefault("server.shutdownTimeout", 10)

	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", "5432")
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.database", "alert_engine")
	viper.SetDefault("postgres.sslmode", "disable")

	viper.SetDefault("alerts.stalledDays", 5)
	viper.SetDefault("alerts.terminalStatuses", []string{"Done", "Closed", "Resolved", "Cancelled"})
	viper.SetDefault("alerts.deploymentLookbackDays", 30)
	viper.SetDefault("alerts.utilizationFloor", 80)
	viper.SetDefault("alerts.utilizationCeiling", 110)
	viper.SetDefault("alerts.overloadCritical", 130)
	viper.SetDefault("alerts.reconcileMinutes", 60)

	viper.SetDefault("scoring.deliveryWeight", 1.0)
	viper.SetDefault("scoring.qualityWeight", 1.0)
	viper.SetDefault("scoring.resourceWeight", 1.0)

	viper.SetDefault("notifications.maxRetries", 2)
	viper.SetDefault("notifications.backoffSeconds", 2)
	viper.SetDefault("notifications.email.port", 587)
	viper.SetDefault("notifications.webhook.timeoutSeconds", 10)

	// Allow environment variables to override config file
	viper.SetEnvPrefix("ALERT_ENGINE")
	viper.AutomaticEnv()

	// If config file is provided, read it
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			logrus.Warnf("Error reading config file: %v", err)
		}
	}

	// Unmarshal config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
