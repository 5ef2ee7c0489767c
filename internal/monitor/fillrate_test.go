package monitor

import (
	"testing"

	"github.com/autovant/perp-core/internal/audit"
	"github.com/autovant/perp-core/internal/types"
)

func TestFillRateMonitor_RateComputation(t *testing.T) {
	m := NewFillRateMonitor(Config{WindowCapacity: 10}, nil, audit.NopSink{}, nil)
	for i := 0; i < 8; i++ {
		m.Record(types.ConfidenceHigh, true)
	}
	for i := 0; i < 2; i++ {
		m.Record(types.ConfidenceHigh, false)
	}
	if rate := m.FillRate(types.ConfidenceHigh); rate != 0.8 {
		t.Fatalf("expected fill rate 0.8, got %v", rate)
	}
	if health := m.Health(types.ConfidenceHigh); health != HealthHealthy {
		t.Fatalf("expected healthy band at 0.8 for HIGH, got %v", health)
	}
}

func TestFillRateMonitor_CriticalBand(t *testing.T) {
	m := NewFillRateMonitor(Config{WindowCapacity: 10}, nil, audit.NopSink{}, nil)
	for i := 0; i < 10; i++ {
		m.Record(types.ConfidenceHigh, i < 3) // 30% fill rate
	}
	if health := m.Health(types.ConfidenceHigh); health != HealthCritical {
		t.Fatalf("expected critical band at 0.3 for HIGH, got %v", health)
	}
}

func TestFillRateMonitor_BandsAreIndependent(t *testing.T) {
	m := NewFillRateMonitor(Config{WindowCapacity: 10}, nil, audit.NopSink{}, nil)
	for i := 0; i < 10; i++ {
		m.Record(types.ConfidenceHigh, true)
		m.Record(types.ConfidenceMedium, false)
	}
	if m.FillRate(types.ConfidenceHigh) != 1.0 {
		t.Fatalf("expected HIGH rate 1.0, got %v", m.FillRate(types.ConfidenceHigh))
	}
	if m.FillRate(types.ConfidenceMedium) != 0.0 {
		t.Fatalf("expected MEDIUM rate 0.0, got %v", m.FillRate(types.ConfidenceMedium))
	}
}
