// Command execution runs the hybrid maker/taker execution coordinator:
// one TradingLoop per configured symbol, wired to the signal,
// cost-estimation, risk-gate and fill-rate-monitoring components. It
// consumes ticks published by the feedhandler process over NATS and
// drives order placement through the exchange adapter. Adapted from
// the teacher's execution_service.go, which combined signal ack,
// PaperBroker order handling and metrics in one file; this binary
// keeps the same process shape (NATS subscribe, Prometheus registry,
// signal handling) but delegates all decision logic to internal/loop.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	sigctx "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/adapter"
	"github.com/autovant/perp-core/internal/audit"
	"github.com/autovant/perp-core/internal/bus"
	"github.com/autovant/perp-core/internal/config"
	"github.com/autovant/perp-core/internal/cost"
	"github.com/autovant/perp-core/internal/execution"
	"github.com/autovant/perp-core/internal/loop"
	"github.com/autovant/perp-core/internal/marketdata"
	"github.com/autovant/perp-core/internal/monitor"
	"github.com/autovant/perp-core/internal/obslog"
	"github.com/autovant/perp-core/internal/pnl"
	"github.com/autovant/perp-core/internal/risk"
	sig "github.com/autovant/perp-core/internal/signal"
	"github.com/autovant/perp-core/internal/types"
)

const (
	tickSubjectPrefix      = "marketdata.tick."
	riskStateSubject       = "risk.state"
	riskResetSubject       = "risk.control.reset"
	attributionSubjectPfx  = "pnl.attribution."
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dryRun := flag.Bool("dry-run", false, "do not submit orders; exercise all other paths")
	checkConfig := flag.Bool("check-config", false, "parse config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *checkConfig {
		return
	}

	logger, err := obslog.New(obslog.Config{Service: "execution"})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()

	conn, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("nats connect failed", zap.Error(err))
	}
	defer conn.Close()

	var sink audit.Writer = audit.NopSink{}
	if !cfg.DryRun {
		s, err := audit.Open("audit.log")
		if err != nil {
			logger.Warn("audit log open failed, continuing without persistence", zap.Error(err))
		} else {
			sink = s
			defer s.Close()
		}
	}

	fees := types.FeeSchedule{
		MakerFeeBps: cfg.Cost.MakerFeeDecimal(),
		TakerFeeBps: cfg.Cost.TakerFeeDecimal(),
	}
	gate := risk.NewGate(risk.Config{
		MaxSingleLossPct:    decimal.NewFromFloat(cfg.Risk.MaxSingleLossPct),
		MaxDailyDrawdownPct: decimal.NewFromFloat(cfg.Risk.MaxDailyDrawdownPct),
		MaxPositionUSD:      decimal.NewFromFloat(cfg.Risk.MaxPositionUSD),
		WorstAdverseMoveBps: decimal.NewFromFloat(cfg.Risk.WorstAdverseMoveBps),
	}, decimal.NewFromFloat(cfg.Trading.NAV), logger, sink)

	if _, err := conn.Raw().Subscribe(riskResetSubject, func(*nats.Msg) {
		gate.Reset()
		logger.Info("risk gate reset via control subject")
	}); err != nil {
		logger.Warn("risk reset subscribe failed", zap.Error(err))
	}

	fillRateMonitor := monitor.NewFillRateMonitor(monitor.Config{
		WindowCapacity: cfg.Monitoring.FillRate.WindowSize,
		High:           monitor.Thresholds{Healthy: cfg.Monitoring.FillRate.AlertThresholdHigh, Degraded: cfg.Monitoring.FillRate.CriticalThreshold},
		Medium:         monitor.Thresholds{Healthy: cfg.Monitoring.FillRate.AlertThresholdMedium, Degraded: cfg.Monitoring.FillRate.CriticalThreshold},
	}, logger, sink, registry)

	sim := adapter.NewSimulated(adapter.SimulatedConfig{}, cfg.Symbols)
	var orderAdapter marketdata.OrderAdapter = sim

	cache := marketdata.NewNATSCache()
	for _, symbol := range cfg.Symbols {
		if _, err := bus.SubscribeJSON[types.MarketData](conn, tickSubjectPrefix+symbol, cache.Ingest, func(err error) {
			logger.Warn("tick decode failed", zap.Error(err))
		}); err != nil {
			logger.Fatal("tick subscribe failed", zap.Error(err), zap.String("symbol", symbol))
		}
	}

	ctx, cancel := sigctx.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loopMetrics := loop.NewMetrics(registry)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.PublishJSON(riskStateSubject, gate.Snapshot()); err != nil {
					logger.Warn("risk state publish failed", zap.Error(err))
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for _, symbol := range cfg.Symbols {
		symbolSpec := types.SymbolSpec{Symbol: symbol, TickSize: decimal.NewFromFloat(0.1), LotSize: decimal.NewFromFloat(0.001)}

		slip := cost.NewSlippageEstimator(1000, 1.5)
		estimator := cost.NewEstimator(fees, slip, cost.ImpactConfig{DepthK: cfg.Signals.OBIDepth}, logger)
		positions := risk.NewPositionManager()
		attributor := pnl.NewAttributor(estimator, gate, 500)

		aggregator := sig.NewAggregator(sig.Weights{
			OBI:        cfg.Signals.Weights.OBI,
			Microprice: cfg.Signals.Weights.Microprice,
			Impact:     cfg.Signals.Weights.Impact,
			OBIDepthK:  cfg.Signals.OBIDepth,
		})
		classifier := sig.NewClassifier(cfg.Signals.Thresholds.Theta1, cfg.Signals.Thresholds.Theta2)

		maker := execution.NewShallowMaker(orderAdapter, symbolSpec, logger,
			time.Duration(cfg.Execution.ShallowMaker.TimeoutHighSeconds*float64(time.Second)),
			time.Duration(cfg.Execution.ShallowMaker.TimeoutMediumSeconds*float64(time.Second)),
			cfg.Execution.ShallowMaker.TickOffset, cfg.Execution.ShallowMaker.PostOnly)
		ioc := execution.NewIOC(orderAdapter, logger, decimal.NewFromFloat(cfg.Execution.IOC.MaxCrossBps))
		hybrid := execution.NewHybrid(maker, ioc, fillRateMonitor, logger)

		tradingLoop := loop.New(loop.Config{
			Symbol:       symbol,
			MaxStaleness: time.Duration(cfg.Trading.MaxStalenessMs) * time.Millisecond,
			Sizing: loop.SizingConfig{
				BaseSize: decimal.NewFromFloat(cfg.Trading.BaseSize),
				K:        decimal.NewFromFloat(cfg.Trading.SizingK),
				NAV:      decimal.NewFromFloat(cfg.Trading.NAV),
			},
		}, loop.Deps{
			Source:     cache,
			Aggregator: aggregator,
			Classifier: classifier,
			Gate:       gate,
			Positions:  positions,
			Hybrid:     hybrid,
			Estimator:  estimator,
			Attributor: attributor,
			Logger:     logger,
			Metrics:    loopMetrics,
			OnFill: func(sym string, attribution types.Attribution) {
				if err := conn.PublishJSON(attributionSubjectPfx+sym, attribution); err != nil {
					logger.Warn("attribution publish failed", zap.Error(err), zap.String("symbol", sym))
				}
			},
			// reporter subscribes with a wildcard (pnl.attribution.*);
			// the payload itself carries no symbol field, it aggregates
			// across the fleet the way the teacher's flat
			// PerformanceReport did.
		})

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			tradingLoop.Run(ctx)
		}(symbol)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	logger.Info("execution service starting", zap.Strings("symbols", cfg.Symbols), zap.Bool("dry_run", cfg.DryRun))
	<-ctx.Done()
	logger.Info("execution service shutting down")
	wg.Wait()
}
