// Command feedhandler runs the MarketDataHub (C2) as its own process:
// it owns the exchange adapter connection, demultiplexes streams into
// per-symbol books, and republishes coalesced ticks over NATS for the
// execution process to consume. Adapted from the teacher's
// feed_handler.go, which generated mock ticks and published them
// directly; this binary instead drives internal/marketdata.Hub and
// republishes its decimal snapshots.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/adapter"
	"github.com/autovant/perp-core/internal/bus"
	"github.com/autovant/perp-core/internal/config"
	"github.com/autovant/perp-core/internal/marketdata"
	"github.com/autovant/perp-core/internal/obslog"
)

const tickSubjectPrefix = "marketdata.tick."

func main() {
	configPath := flag.String("config", "", "path to config file")
	checkConfig := flag.Bool("check-config", false, "parse config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *checkConfig {
		return
	}

	logger, err := obslog.New(obslog.Config{Service: "feedhandler"})
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

	sim := adapter.NewSimulated(adapter.SimulatedConfig{}, cfg.Symbols)
	hub := marketdata.New(marketdata.Config{Symbols: cfg.Symbols}, sim, logger, registry)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		for tick := range hub.Ticks() {
			if err := conn.PublishJSON(tickSubjectPrefix+tick.Symbol, tick); err != nil {
				logger.Warn("tick publish failed", zap.Error(err))
			}
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	logger.Info("feedhandler starting", zap.Strings("symbols", cfg.Symbols))
	if err := hub.Run(ctx); err != nil {
		logger.Error("hub run exited with error", zap.Error(err))
	}
	logger.Info("feedhandler shutting down")
}
