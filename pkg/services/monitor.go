package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/execdash/alert-engine/pkg/config"
	"github.com/execdash/alert-engine/pkg/models"
	"github.com/execdash/alert-engine/pkg/store"
)

// Monitor runs the periodic reconciliation loop: load a snapshot,
// evaluate the detection rules, reconcile the candidates. The same path
// backs the manual trigger endpoint.
type Monitor struct {
	cfg      config.AlertsConfig
	snapshot store.SnapshotSource
	detector *Detector
	alerts   *AlertService

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewMonitor creates a monitor
func NewMonitor(cfg config.AlertsConfig, snapshot store.SnapshotSource, detector *Detector, alerts *AlertService) *Monitor {
	return &Monitor{
		cfg:      cfg,
		snapshot: snapshot,
		detector: detector,
		alerts:   alerts,
		done:     make(chan struct{}),
	}
}

// RunOnce executes a single reconciliation pass
func (m *Monitor) RunOnce(ctx context.Context) (models.PassSummary, error) {
	snap, err := m.snapshot.GetSnapshot(ctx, m.cfg.DeploymentLookbackDays)
	if err != nil {
		return models.PassSummary{}, err
	}

	candidates, evalErrors := m.detector.Evaluate(snap)
	summary, err := m.alerts.Reconcile(ctx, candidates)
	for _, evalErr := range evalErrors {
		summary.Errors = append(summary.Errors, evalErr.Error())
	}
	return summary, err
}

// Start launches the periodic loop. A pass runs immediately, then on
// every tick until Stop is called.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	interval := time.Duration(m.cfg.ReconcileMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		defer close(m.done)
		logrus.Infof("Monitoring started, reconciling every %s", interval)

		m.pass(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logrus.Info("Monitoring stopped")
				return
			case <-ticker.C:
				m.pass(ctx)
			}
		}
	}()
}

func (m *Monitor) pass(ctx context.Context) {
	if _, err := m.RunOnce(ctx); err != nil {
		logrus.Errorf("Reconciliation pass failed: %v", err)
	}
}

// Stop halts the loop and waits for an in-flight pass to finish
func (m *Monitor) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
	})
}
