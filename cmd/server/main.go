package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/execdash/alert-engine/pkg/api"
	"github.com/execdash/alert-engine/pkg/config"
	"github.com/execdash/alert-engine/pkg/services"
	"github.com/execdash/alert-engine/pkg/store"
)

// @title Alert Engine API
// @version 1.0
// @description Detection, lifecycle and risk scoring API for the executive dashboard
// @BasePath /api

func main() {
	// Configure Log Level from Environment Variable
	logLevelStr := os.Getenv("LOG_LEVEL")
	switch strings.ToLower(logLevelStr) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.Infof("Log level set to: %s", logrus.GetLevel().String())

	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Connect the alert store
	ctx := context.Background()
	pg, err := store.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		logrus.Fatalf("Failed to connect alert store: %v", err)
	}
	defer pg.Close()

	// Initialize services
	notifier := services.NewNotifier(cfg.Notifications, pg)
	alertService := services.NewAlertService(pg, notifier)
	riskService := services.NewRiskService(cfg.Alerts, cfg.Scoring, pg, pg)
	detector := services.NewDetector(cfg.Alerts)
	monitor := services.NewMonitor(cfg.Alerts, pg, detector, alertService)

	// Start the reconciliation loop
	monitor.Start()
	logrus.Info("Alert monitoring started")

	// Set up the Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// API routes
	apiHandler := api.NewAPIHandler(alertService, riskService, notifier, monitor)
	apiHandler.SetupRoutes(e)

	// Swagger documentation
	e.GET("/swagger/*", echo.WrapHandler(httpSwagger.Handler()))

	// Create HTTP server
	// Use PORT environment variable if available, otherwise use config
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logrus.Infof("Starting server on port %s", port)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Stop the reconciliation loop
	monitor.Stop()
	logrus.Info("Alert monitoring stopped")

	// Create a deadline for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	// Shutdown the server
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited properly")
}
