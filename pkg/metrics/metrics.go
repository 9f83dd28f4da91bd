// Package metrics collects per-run batch metrics and pushes them to a
// Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Record outcomes.
const (
	OutcomeInserted  = "inserted"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
	OutcomeLoaded    = "loaded"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the collectors for one batch run on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	cfg      Config

	records       *prometheus.CounterVec
	services      *prometheus.CounterVec
	taskDuration  *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
	qualityIssues *prometheus.GaugeVec
}

// New creates the run collectors and registers them.
func New(cfg Config) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cfg:      cfg,

		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hpdw_records_total",
			Help: "Plan documents processed by the warehouse writer, by outcome",
		}, []string{"outcome"}),

		services: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hpdw_services_total",
			Help: "Linked services processed by the warehouse writer, by outcome",
		}, []string{"outcome"}),

		taskDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hpdw_task_duration_seconds",
			Help: "Wall time of the last execution of each pipeline task",
		}, []string{"task"}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hpdw_run_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without a fatal error",
		}),

		qualityIssues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hpdw_quality_issues",
			Help: "Rows flagged by each post-load data quality check",
		}, []string{"check"}),
	}

	m.registry.MustRegister(m.records, m.services, m.taskDuration, m.lastSuccess, m.qualityIssues)
	return m
}

// Registry exposes the run registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AddRecords adds n to the record counter for outcome.
func (m *Metrics) AddRecords(outcome string, n int) {
	m.records.WithLabelValues(outcome).Add(float64(n))
}

// AddServices adds n to the service counter for outcome.
func (m *Metrics) AddServices(outcome string, n int) {
	m.services.WithLabelValues(outcome).Add(float64(n))
}

// ObserveTask records the duration of task.
func (m *Metrics) ObserveTask(task string, d time.Duration) {
	m.taskDuration.WithLabelValues(task).Set(d.Seconds())
}

// SetQualityIssues records the row count flagged by check.
func (m *Metrics) SetQualityIssues(check string, n int64) {
	m.qualityIssues.WithLabelValues(check).Set(float64(n))
}

// MarkSuccess stamps the last-success gauge with t.
func (m *Metrics) MarkSuccess(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// Enabled reports whether a Pushgateway is configured.
func (m *Metrics) Enabled() bool {
	return m.cfg.PushURL != ""
}

// Push sends the registry to the configured Pushgateway, replacing the
// job's previous group. It is a no-op when no gateway is configured.
func (m *Metrics) Push(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.TimeoutDuration())
	defer cancel()

	err := push.New(m.cfg.PushURL, m.cfg.Job).
		Gatherer(m.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
