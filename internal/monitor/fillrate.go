// Package monitor implements C11: the FillRateMonitor. Grounded on the
// teacher's makerRatio Prometheus gauge (execution_service.go), which
// tracked a single rolling maker ratio; this package generalizes that
// into one bounded window per confidence band with health bands and a
// critical audit event, per §4.11.
package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/audit"
	"github.com/autovant/perp-core/internal/types"
)

// HealthBand classifies a confidence band's current fill rate.
type HealthBand string

const (
	HealthHealthy  HealthBand = "healthy"
	HealthDegraded HealthBand = "degraded"
	HealthCritical HealthBand = "critical"
)

// Thresholds holds the healthy/degraded cutoffs for one confidence
// band, per §4.11's defaults (HIGH: 0.80/0.60, MEDIUM: 0.75/0.60).
type Thresholds struct {
	Healthy  float64
	Degraded float64
}

// Config maps each confidence band to its window capacity and health
// thresholds.
type Config struct {
	WindowCapacity int
	High           Thresholds
	Medium         Thresholds
}

func (c Config) withDefaults() Config {
	if c.WindowCapacity <= 0 {
		c.WindowCapacity = 100
	}
	if c.High.Healthy == 0 {
		c.High = Thresholds{Healthy: 0.80, Degraded: 0.60}
	}
	if c.Medium.Healthy == 0 {
		c.Medium = Thresholds{Healthy: 0.75, Degraded: 0.60}
	}
	return c
}

// FillRateMonitor maintains a fixed-capacity ring of attempt outcomes
// per confidence band and classifies the band's current health.
type FillRateMonitor struct {
	cfg    Config
	logger *zap.Logger
	sink   audit.Writer

	mu      sync.Mutex
	windows map[types.Confidence]*types.FillRateWindow

	rateGauge *prometheus.GaugeVec
}

func NewFillRateMonitor(cfg Config, logger *zap.Logger, sink audit.Writer, registerer prometheus.Registerer) *FillRateMonitor {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = audit.NopSink{}
	}
	m := &FillRateMonitor{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		windows: map[types.Confidence]*types.FillRateWindow{
			types.ConfidenceHigh:   types.NewFillRateWindow(cfg.WindowCapacity),
			types.ConfidenceMedium: types.NewFillRateWindow(cfg.WindowCapacity),
			types.ConfidenceLow:    types.NewFillRateWindow(cfg.WindowCapacity),
		},
		rateGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "execution_fill_rate",
			Help: "Rolling maker fill rate by confidence band.",
		}, []string{"confidence"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.rateGauge)
	}
	return m
}

// Record appends one attempt outcome for confidence, per §4.10's
// convention: filled means the maker order was FILLED (fully) within
// its window; a partial counts as not-filled.
func (m *FillRateMonitor) Record(confidence types.Confidence, filled bool) {
	m.mu.Lock()
	window, ok := m.windows[confidence]
	if !ok {
		m.mu.Unlock()
		return
	}
	window.Record(filled)
	rate := window.Rate()
	length := window.Len()
	m.mu.Unlock()

	m.rateGauge.WithLabelValues(string(confidence)).Set(rate)

	health := m.classify(confidence, rate)
	if health == HealthCritical && length >= m.cfg.WindowCapacity/2 {
		m.reportCritical(confidence, rate)
	}
}

// FillRate returns the current rate for confidence, or 0 if no attempts
// have been recorded.
func (m *FillRateMonitor) FillRate(confidence types.Confidence) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[confidence]
	if !ok {
		return 0
	}
	return w.Rate()
}

// Health returns the current health classification for confidence.
func (m *FillRateMonitor) Health(confidence types.Confidence) HealthBand {
	return m.classify(confidence, m.FillRate(confidence))
}

func (m *FillRateMonitor) classify(confidence types.Confidence, rate float64) HealthBand {
	var t Thresholds
	switch confidence {
	case types.ConfidenceHigh:
		t = m.cfg.High
	case types.ConfidenceMedium:
		t = m.cfg.Medium
	default:
		return HealthHealthy
	}
	switch {
	case rate >= t.Healthy:
		return HealthHealthy
	case rate >= t.Degraded:
		return HealthDegraded
	default:
		return HealthCritical
	}
}

// reportCritical emits an audit event. The recommendation (raise
// classifier thresholds) is advisory: this monitor does not itself
// recalibrate the classifier, it only surfaces the signal the
// recalibration scheduler acts on.
func (m *FillRateMonitor) reportCritical(confidence types.Confidence, rate float64) {
	if m.logger != nil {
		m.logger.Warn("fill rate critical", zap.String("confidence", string(confidence)), zap.Float64("rate", rate))
	}
	m.sink.Write(audit.Event{
		Kind: audit.EventFillRateCritical,
		Fields: map[string]interface{}{
			"confidence":     string(confidence),
			"rate":           rate,
			"recommendation": "raise_classifier_thresholds",
		},
	})
}
