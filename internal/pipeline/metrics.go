//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

const defaultPushTimeout = 5 * time.Second

// Metrics holds the gauges describing the last run. A batch process has
// no scrape endpoint, so the registry is pushed to a Pushgateway.
type Metrics struct {
	registry *prometheus.Registry

	extracted  *prometheus.GaugeVec
	reconciled *prometheus.GaugeVec
	dimensions *prometheus.GaugeVec
	screens    *prometheus.GaugeVec
	stages     *prometheus.GaugeVec
	facts      prometheus.Gauge
	skipped    prometheus.Gauge
	duration   prometheus.Gauge
	success    prometheus.Gauge
	lastRun    prometheus.Gauge
}

// NewMetrics creates the run metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		extracted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "salesdw_rows_extracted",
			Help: "Rows read from each extract in the last run.",
		}, []string{"source"}),
		reconciled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "salesdw_rows_reconciled",
			Help: "Rows of each extract that differed from the previous snapshot.",
		}, []string{"source"}),
		dimensions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "salesdw_dimension_resolutions",
			Help: "Dimension resolutions in the last run by outcome.",
		}, []string{"dimension", "outcome"}),
		screens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "salesdw_screen_findings",
			Help: "Data quality screen findings in the last run.",
		}, []string{"screen"}),
		stages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "salesdw_stage_duration_seconds",
			Help: "Duration of each stage in the last run.",
		}, []string{"stage"}),
		facts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesdw_facts_inserted",
			Help: "Fact rows inserted in the last run.",
		}),
		skipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesdw_sales_skipped",
			Help: "Sales rows skipped because their store is unknown.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesdw_run_duration_seconds",
			Help: "Duration of the last run.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesdw_run_success",
			Help: "1 if the last run succeeded, 0 otherwise.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesdw_last_run_timestamp_seconds",
			Help: "Unix time at which the last run finished.",
		}),
	}

	m.registry.MustRegister(
		m.extracted, m.reconciled, m.dimensions, m.screens, m.stages,
		m.facts, m.skipped, m.duration, m.success, m.lastRun,
	)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Record sets the gauges from a run result.
func (m *Metrics) Record(res *Result, success bool) {
	c := res.Counts
	m.extracted.WithLabelValues(model.SourceStore).Set(float64(c.StoresExtracted))
	m.extracted.WithLabelValues(model.SourceSales).Set(float64(c.SalesExtracted))
	m.reconciled.WithLabelValues(model.SourceStore).Set(float64(c.StoresReconciled))
	m.reconciled.WithLabelValues(model.SourceSales).Set(float64(c.SalesReconciled))

	m.dimensions.Reset()
	for name, s := range res.Dimensions {
		m.dimensions.WithLabelValues(name, "created").Set(float64(s.Created))
		m.dimensions.WithLabelValues(name, "reused").Set(float64(s.Reused))
	}

	m.screens.Reset()
	for name, n := range res.Screens {
		m.screens.WithLabelValues(name).Set(float64(n))
	}

	m.stages.Reset()
	for _, s := range res.Stages {
		m.stages.WithLabelValues(s.Name).Set(s.Duration.Seconds())
	}

	m.facts.Set(float64(c.FactsInserted))
	m.skipped.Set(float64(c.SalesSkipped))
	m.duration.Set(res.Duration.Seconds())
	if success {
		m.success.Set(1)
	} else {
		m.success.Set(0)
	}
	m.lastRun.SetToCurrentTime()
}

// Pusher sends the run metrics to a Prometheus Pushgateway.
type Pusher struct {
	endpoint string
	job      string
}

// NewPusher returns a pusher, or nil when no Pushgateway is configured.
func NewPusher(cfg config.MetricsConfig) *Pusher {
	endpoint := strings.TrimSpace(cfg.PushgatewayURL)
	if endpoint == "" {
		return nil
	}
	return &Pusher{endpoint: endpoint, job: strings.TrimSpace(cfg.Job)}
}

// Push replaces the metrics of the job on the Pushgateway. A nil Pusher
// does nothing.
func (p *Pusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	return push.New(p.endpoint, p.job).Gatherer(registry).PushContext(ctx)
}
