// Command riskmonitor exposes the risk gate's published state as
// Prometheus metrics and tracks halt transitions as circuit-breaker
// events. Adapted from the teacher's risk_state.go, which synthesized
// a random RiskState and published it on a timer; this binary instead
// subscribes to the real risk.state snapshots the execution process
// publishes off internal/risk.Gate and turns them into the
// risk_trading_halted gauge and the risk_circuit_breakers_total counter
// (one increment per transition into halted).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/bus"
	"github.com/autovant/perp-core/internal/config"
	"github.com/autovant/perp-core/internal/obslog"
	"github.com/autovant/perp-core/internal/types"
)

const riskStateSubject = "risk.state"

var (
	tradingHalted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "risk_trading_halted",
		Help: "1 if the risk gate is currently halted, 0 otherwise.",
	})
	circuitBreakers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_circuit_breakers_total",
		Help: "Total number of times the risk gate has tripped to halted.",
	})
	nav = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "risk_nav",
		Help: "Net asset value last reported by the risk gate.",
	})
	dailyPnL = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "risk_daily_pnl",
		Help: "Sum of attributed fill PnL recorded by the risk gate for the current trading day.",
	})
)

// tracker holds the last observed snapshot so halt transitions (rather
// than every halted=true message) increment the circuit breaker
// counter exactly once per trip, mirroring the teacher's
// CrisisMode-flip-triggers-increment logic in risk_state.go.
type tracker struct {
	mu          sync.Mutex
	wasHalted   bool
	lastReason  string
	lastUpdated time.Time
}

func (t *tracker) observe(logger *zap.Logger, snap types.RiskStateSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	navF, _ := snap.NAV.Float64()
	pnlF, _ := snap.DailyPnL.Float64()
	nav.Set(navF)
	dailyPnL.Set(pnlF)

	if snap.Halted {
		tradingHalted.Set(1)
		if !t.wasHalted {
			circuitBreakers.Inc()
			logger.Warn("risk gate tripped", zap.String("reason", snap.HaltReason))
		}
	} else {
		tradingHalted.Set(0)
	}
	t.wasHalted = snap.Halted
	t.lastReason = snap.HaltReason
	t.lastUpdated = time.Now()
}

func init() {
	prometheus.MustRegister(tradingHalted, circuitBreakers, nav, dailyPnL)
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	checkConfig := flag.Bool("check-config", false, "parse config and exit")
	metricsAddr := flag.String("metrics-addr", ":8084", "address to serve /metrics on")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *checkConfig {
		return
	}

	logger, err := obslog.New(obslog.Config{Service: "riskmonitor"})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	conn, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("nats connect failed", zap.Error(err))
	}
	defer conn.Close()

	t := &tracker{}
	if _, err := bus.SubscribeJSON[types.RiskStateSnapshot](conn, riskStateSubject, func(snap types.RiskStateSnapshot) {
		t.observe(logger, snap)
	}, func(err error) {
		logger.Warn("risk state decode failed", zap.Error(err))
	}); err != nil {
		logger.Fatal("risk state subscribe failed", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	logger.Info("riskmonitor starting")
	<-ctx.Done()
	logger.Info("riskmonitor shutting down")
}
