// Command ops serves the operator-facing HTTP surface: health checks,
// trading mode, paper-trading adapter configuration, the last known
// risk state, and a halt-reset control. Adapted from the teacher's
// ops_api.go, extended with a risk state cache fed from risk.state and
// a /api/risk/reset endpoint that publishes onto the same
// risk.control.reset subject the execution process listens on, rather
// than reaching into its Gate directly across a process boundary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/autovant/perp-core/internal/bus"
	"github.com/autovant/perp-core/internal/config"
	"github.com/autovant/perp-core/internal/obslog"
	"github.com/autovant/perp-core/internal/types"
)

const (
	riskStateSubject = "risk.state"
	riskResetSubject = "risk.control.reset"
)

// LatencyConfig mirrors the teacher's simulated-adapter latency knobs.
type LatencyConfig struct {
	Mean float64 `json:"mean"`
	P95  float64 `json:"p95"`
}

type PartialFillConfig struct {
	Enabled     bool    `json:"enabled"`
	MinSlicePct float64 `json:"min_slice_pct"`
	MaxSlices   int     `json:"max_slices"`
}

// PaperConfig mirrors the teacher's PaperConfig, describing the
// simulated adapter's fee/slippage/latency model rather than a real
// venue connection.
type PaperConfig struct {
	FeeBps         float64           `json:"fee_bps"`
	MakerRebateBps float64           `json:"maker_rebate_bps"`
	SlippageBps    float64           `json:"slippage_bps"`
	MaxSlippageBps float64           `json:"max_slippage_bps"`
	Latency        LatencyConfig     `json:"latency_ms"`
	PartialFill    PartialFillConfig `json:"partial_fill"`
}

// HealthResponse matches the teacher's health check shape.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ModeResponse matches the teacher's mode response shape.
type ModeResponse struct {
	Mode   string `json:"mode"`
	Shadow bool   `json:"shadow"`
}

// APIServer is the ops HTTP service.
type APIServer struct {
	server *http.Server
	conn   *bus.Conn
	logger *zap.Logger

	mu    sync.RWMutex
	mode  string
	paper PaperConfig

	riskMu    sync.RWMutex
	riskState types.RiskStateSnapshot
	haveState bool
}

func (api *APIServer) onRiskState(snap types.RiskStateSnapshot) {
	api.riskMu.Lock()
	defer api.riskMu.Unlock()
	api.riskState = snap
	api.haveState = true
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	checkConfig := flag.Bool("check-config", false, "parse config and exit")
	httpAddr := flag.String("http-addr", ":8082", "address to serve the ops API on")
	flag.Parse()

	appMode := os.Getenv("APP_MODE")
	if appMode == "" {
		appMode = "paper"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *checkConfig {
		return
	}

	logger, err := obslog.New(obslog.Config{Service: "ops"})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	conn, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("nats connect failed", zap.Error(err))
	}
	defer conn.Close()

	api := &APIServer{
		conn:   conn,
		logger: logger,
		mode:   appMode,
		paper: PaperConfig{
			FeeBps:         cfg.Cost.TakerFeeBps,
			MakerRebateBps: -0.2,
			SlippageBps:    1.5,
			MaxSlippageBps: cfg.Execution.IOC.MaxCrossBps,
			Latency:        LatencyConfig{Mean: 40, P95: 120},
			PartialFill:    PartialFillConfig{Enabled: true, MinSlicePct: 0.1, MaxSlices: 4},
		},
	}

	if _, err := bus.SubscribeJSON[types.RiskStateSnapshot](conn, riskStateSubject, api.onRiskState, func(err error) {
		logger.Warn("risk state decode failed", zap.Error(err))
	}); err != nil {
		logger.Warn("risk state subscribe failed", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if api.server != nil {
			api.server.Shutdown(shutdownCtx)
		}
	}()

	logger.Info("ops API starting", zap.String("addr", *httpAddr))
	if err := api.startServer(ctx, *httpAddr); err != nil {
		logger.Error("ops API exited", zap.Error(err))
	}
	logger.Info("ops API stopped")
}

func (api *APIServer) startServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", api.healthHandler)
	mux.HandleFunc("/api/mode", api.modeHandler)
	mux.HandleFunc("/api/paper/config", api.paperConfigHandler)
	mux.HandleFunc("/api/risk/state", api.riskStateHandler)
	mux.HandleFunc("/api/risk/reset", api.riskResetHandler)

	api.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			api.logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	return nil
}

func (api *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

func (api *APIServer) modeHandler(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, ModeResponse{Mode: api.mode, Shadow: false})
	case http.MethodPost:
		var req ModeResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		switch req.Mode {
		case "live", "paper", "replay":
		default:
			http.Error(w, "invalid mode", http.StatusBadRequest)
			return
		}
		if api.mode == "live" && req.Mode != "live" {
			http.Error(w, "mode change blocked while live risk active", http.StatusConflict)
			return
		}
		api.mode = req.Mode
		writeJSON(w, ModeResponse{Mode: api.mode})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (api *APIServer) paperConfigHandler(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, api.paper)
	case http.MethodPost:
		var req PaperConfig
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := validatePaperConfig(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		api.paper = req
		writeJSON(w, api.paper)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (api *APIServer) riskStateHandler(w http.ResponseWriter, r *http.Request) {
	api.riskMu.RLock()
	defer api.riskMu.RUnlock()
	if !api.haveState {
		http.Error(w, "no risk state received yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, api.riskState)
}

// riskResetHandler publishes onto risk.control.reset; it does not wait
// for an acknowledgement since the executor's reset is fire-and-forget
// by design (it is re-derived on the next risk.state broadcast).
func (api *APIServer) riskResetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := api.conn.Raw().Publish(riskResetSubject, nil); err != nil {
		http.Error(w, fmt.Sprintf("reset publish failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func validatePaperConfig(cfg PaperConfig) error {
	if cfg.SlippageBps < 0 || cfg.MaxSlippageBps < cfg.SlippageBps {
		return fmt.Errorf("max_slippage_bps must be >= slippage_bps")
	}
	if cfg.Latency.Mean < 0 || cfg.Latency.P95 < cfg.Latency.Mean {
		return fmt.Errorf("latency_ms invalid")
	}
	if cfg.PartialFill.MaxSlices < 1 {
		return fmt.Errorf("partial_fill.max_slices must be >= 1")
	}
	if cfg.PartialFill.MinSlicePct < 0 || cfg.PartialFill.MinSlicePct > 1 {
		return fmt.Errorf("partial_fill.min_slice_pct must be between 0 and 1")
	}
	return nil
}
