// Command reporter aggregates the PnL attribution events execution
// publishes into a rolling PerformanceReport. Adapted from the
// teacher's reporter.go, which subscribed to a performance-metrics
// subject and generated a hardcoded, unconnected PerformanceReport on
// a timer ("In a real implementation, this would gather actual
// performance metrics"); this binary replaces the stub with real
// aggregation over internal/pnl.Attribution events carried on
// pnl.attribution.*.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/bus"
	"github.com/autovant/perp-core/internal/config"
	"github.com/autovant/perp-core/internal/obslog"
	"github.com/autovant/perp-core/internal/types"
)

const attributionSubject = "pnl.attribution.*"

// PerformanceReport mirrors the teacher's PerformanceReport shape,
// populated from real attribution history instead of constants.
type PerformanceReport struct {
	TotalTrades int             `json:"total_trades"`
	WinRate     float64         `json:"win_rate"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	TotalAlpha  decimal.Decimal `json:"total_alpha"`
	TotalFees   decimal.Decimal `json:"total_fees"`
	MaxDrawdown decimal.Decimal `json:"max_drawdown"`
	SharpeRatio float64         `json:"sharpe_ratio"`
	Timestamp   time.Time       `json:"timestamp"`
}

var (
	totalPnLGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reporter_total_pnl",
		Help: "Cumulative realized PnL across all attributed fills.",
	})
	winRateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reporter_win_rate",
		Help: "Fraction of attributed fills with positive total PnL.",
	})
	tradeCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reporter_trades_total",
		Help: "Total attributed fills observed.",
	})
)

func init() {
	prometheus.MustRegister(totalPnLGauge, winRateGauge, tradeCounter)
}

// aggregator accumulates attribution events into running totals and an
// equity curve used for max drawdown and a simple Sharpe estimate.
type aggregator struct {
	mu        sync.Mutex
	trades    int
	wins      int
	totalPnL  decimal.Decimal
	totalAlpha decimal.Decimal
	totalFees decimal.Decimal
	equity    decimal.Decimal
	peak      decimal.Decimal
	maxDD     decimal.Decimal
	returns   []float64
}

func (a *aggregator) observe(attr types.Attribution) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.trades++
	if attr.Total.IsPositive() {
		a.wins++
	}
	a.totalPnL = a.totalPnL.Add(attr.Total)
	a.totalAlpha = a.totalAlpha.Add(attr.Alpha)
	a.totalFees = a.totalFees.Add(attr.Fee)

	a.equity = a.equity.Add(attr.Total)
	if a.equity.GreaterThan(a.peak) {
		a.peak = a.equity
	}
	drawdown := a.peak.Sub(a.equity)
	if drawdown.GreaterThan(a.maxDD) {
		a.maxDD = drawdown
	}

	f, _ := attr.Total.Float64()
	a.returns = append(a.returns, f)
	if len(a.returns) > 500 {
		a.returns = a.returns[len(a.returns)-500:]
	}

	pnlF, _ := a.totalPnL.Float64()
	totalPnLGauge.Set(pnlF)
	tradeCounter.Inc()
}

func (a *aggregator) report() PerformanceReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	winRate := 0.0
	if a.trades > 0 {
		winRate = float64(a.wins) / float64(a.trades)
	}
	winRateGauge.Set(winRate)

	return PerformanceReport{
		TotalTrades: a.trades,
		WinRate:     winRate,
		TotalPnL:    a.totalPnL,
		TotalAlpha:  a.totalAlpha,
		TotalFees:   a.totalFees,
		MaxDrawdown: a.maxDD,
		SharpeRatio: sharpe(a.returns),
		Timestamp:   time.Now(),
	}
}

// sharpe is a simple mean/stdev ratio over the observed per-fill PnL
// series; not annualized, informational only.
func sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(n - 1)
	if variance <= 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	checkConfig := flag.Bool("check-config", false, "parse config and exit")
	metricsAddr := flag.String("metrics-addr", ":8083", "address to serve /metrics and /report on")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *checkConfig {
		return
	}

	logger, err := obslog.New(obslog.Config{Service: "reporter"})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	conn, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("nats connect failed", zap.Error(err))
	}
	defer conn.Close()

	agg := &aggregator{}
	if _, err := bus.SubscribeJSON[types.Attribution](conn, attributionSubject, agg.observe, func(err error) {
		logger.Warn("attribution decode failed", zap.Error(err))
	}); err != nil {
		logger.Fatal("attribution subscribe failed", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(agg.report())
		})
		server := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("reporter server exited", zap.Error(err))
		}
	}()

	logger.Info("reporter starting")
	<-ctx.Done()
	logger.Info("reporter shutting down")
}
