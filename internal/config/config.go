// Package config loads the engine configuration described in spec §6
// using viper, so that env-var overrides, defaults, and file-based config
// (yaml/json/toml) all compose the way the rest of the pack configures
// its trading services (0xtitan6-polymarket-mm, fd1az-arbitrage-bot both
// build on spf13/viper for exactly this).
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// SignalWeights maps each signal name to its aggregation weight; must sum
// to 1 (§4.4).
type SignalWeights struct {
	OBI        float64 `mapstructure:"obi"`
	Microprice float64 `mapstructure:"microprice"`
	Impact     float64 `mapstructure:"impact"`
}

type ThresholdsConfig struct {
	Theta1 float64 `mapstructure:"theta_1"`
	Theta2 float64 `mapstructure:"theta_2"`
}

type SignalsConfig struct {
	Weights    SignalWeights    `mapstructure:"weights"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	ImpactWindowMs int64        `mapstructure:"impact_window_ms"`
	OBIDepth       int          `mapstructure:"obi_depth"`
}

type ShallowMakerConfig struct {
	TimeoutHighSeconds   float64 `mapstructure:"timeout_high"`
	TimeoutMediumSeconds float64 `mapstructure:"timeout_medium"`
	TickOffset           int     `mapstructure:"tick_offset"`
	PostOnly             bool    `mapstructure:"post_only"`
}

type IOCConfig struct {
	FallbackOnHigh   bool    `mapstructure:"fallback_on_high"`
	FallbackOnMedium bool    `mapstructure:"fallback_on_medium"`
	MaxCrossBps      float64 `mapstructure:"max_cross_bps"`
}

type ExecutionConfig struct {
	Strategy     string             `mapstructure:"strategy"` // ioc_only|hybrid
	ShallowMaker ShallowMakerConfig `mapstructure:"shallow_maker"`
	IOC          IOCConfig          `mapstructure:"ioc"`
}

type RiskConfig struct {
	MaxSingleLossPct    float64 `mapstructure:"max_single_loss_pct"`
	MaxDailyDrawdownPct float64 `mapstructure:"max_daily_drawdown_pct"`
	MaxPositionUSD      float64 `mapstructure:"max_position_usd"`
	WorstAdverseMoveBps float64 `mapstructure:"worst_adverse_move_bps"`
}

type FillRateConfig struct {
	WindowSize             int     `mapstructure:"window_size"`
	AlertThresholdHigh     float64 `mapstructure:"alert_threshold_high"`
	AlertThresholdMedium   float64 `mapstructure:"alert_threshold_medium"`
	CriticalThreshold      float64 `mapstructure:"critical_threshold"`
}

type MonitoringConfig struct {
	FillRate FillRateConfig `mapstructure:"fill_rate"`
}

type CostConfig struct {
	MakerFeeBps float64 `mapstructure:"maker_fee_bps"`
	TakerFeeBps float64 `mapstructure:"taker_fee_bps"`
}

// TradingConfig controls the trading loop's sizing function and
// liveness budget, §4.13.
type TradingConfig struct {
	BaseSize            float64 `mapstructure:"base_size"`
	SizingK             float64 `mapstructure:"sizing_k"`
	MaxStalenessMs      int64   `mapstructure:"max_staleness_ms"`
	IterationBudgetMs   int64   `mapstructure:"iteration_budget_ms"`
	NAV                 float64 `mapstructure:"nav"`
}

// Config is the root engine configuration (spec §6 table).
type Config struct {
	Symbols     []string         `mapstructure:"symbols"`
	Signals     SignalsConfig    `mapstructure:"signals"`
	Execution   ExecutionConfig  `mapstructure:"execution"`
	Risk        RiskConfig       `mapstructure:"risk"`
	Monitoring  MonitoringConfig `mapstructure:"monitoring"`
	Cost        CostConfig       `mapstructure:"cost"`
	Trading     TradingConfig    `mapstructure:"trading"`
	NATSURL     string           `mapstructure:"nats_url"`
	MetricsAddr string           `mapstructure:"metrics_addr"`
	DryRun      bool             `mapstructure:"dry_run"`
}

// Defaults returns the spec's documented defaults.
func Defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("symbols", []string{"ETHUSDT"})
	v.SetDefault("signals.weights.obi", 0.4)
	v.SetDefault("signals.weights.microprice", 0.3)
	v.SetDefault("signals.weights.impact", 0.3)
	v.SetDefault("signals.thresholds.theta_1", 0.45)
	v.SetDefault("signals.thresholds.theta_2", 0.25)
	v.SetDefault("signals.impact_window_ms", 100)
	v.SetDefault("signals.obi_depth", 5)
	v.SetDefault("execution.strategy", "hybrid")
	v.SetDefault("execution.shallow_maker.timeout_high", 5.0)
	v.SetDefault("execution.shallow_maker.timeout_medium", 3.0)
	v.SetDefault("execution.shallow_maker.tick_offset", 1)
	v.SetDefault("execution.shallow_maker.post_only", true)
	v.SetDefault("execution.ioc.fallback_on_high", true)
	v.SetDefault("execution.ioc.fallback_on_medium", false)
	v.SetDefault("execution.ioc.max_cross_bps", 15.0)
	v.SetDefault("risk.max_single_loss_pct", 0.01)
	v.SetDefault("risk.max_daily_drawdown_pct", 0.05)
	v.SetDefault("risk.max_position_usd", 250000.0)
	v.SetDefault("risk.worst_adverse_move_bps", 30.0)
	v.SetDefault("monitoring.fill_rate.window_size", 100)
	v.SetDefault("monitoring.fill_rate.alert_threshold_high", 0.80)
	v.SetDefault("monitoring.fill_rate.alert_threshold_medium", 0.75)
	v.SetDefault("monitoring.fill_rate.critical_threshold", 0.60)
	v.SetDefault("cost.maker_fee_bps", 1.5)
	v.SetDefault("cost.taker_fee_bps", 4.5)
	v.SetDefault("trading.base_size", 1.0)
	v.SetDefault("trading.sizing_k", 1.0)
	v.SetDefault("trading.max_staleness_ms", 250)
	v.SetDefault("trading.iteration_budget_ms", 100)
	v.SetDefault("trading.nav", 100000.0)
	v.SetDefault("nats_url", "nats://localhost:4222")
	v.SetDefault("metrics_addr", ":8080")
	v.SetDefault("dry_run", false)
	return v
}

// Load reads configuration from path (if non-empty), overlays environment
// variables under the PERPCORE_ prefix, and unmarshals into Config.
func Load(path string) (*Config, error) {
	v := Defaults()
	v.SetEnvPrefix("perpcore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants spec.md requires of configuration, such
// as signal weights summing to 1 and theta1 > theta2 > 0.
func (c *Config) Validate() error {
	sum := c.Signals.Weights.OBI + c.Signals.Weights.Microprice + c.Signals.Weights.Impact
	if diff := sum - 1.0; diff > 1e-6 || diff < -1e-6 {
		return fmt.Errorf("config: signal weights must sum to 1, got %f", sum)
	}
	if !(c.Signals.Thresholds.Theta1 > c.Signals.Thresholds.Theta2 && c.Signals.Thresholds.Theta2 > 0) {
		return fmt.Errorf("config: require theta_1 > theta_2 > 0, got theta_1=%f theta_2=%f",
			c.Signals.Thresholds.Theta1, c.Signals.Thresholds.Theta2)
	}
	if c.Execution.Strategy != "ioc_only" && c.Execution.Strategy != "hybrid" {
		return fmt.Errorf("config: execution.strategy must be ioc_only or hybrid, got %q", c.Execution.Strategy)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: symbols must be non-empty")
	}
	return nil
}

// MakerFeeDecimal and TakerFeeDecimal convert the float bps fee schedule
// to decimal form.
func (c CostConfig) MakerFeeDecimal() decimal.Decimal { return decimal.NewFromFloat(c.MakerFeeBps) }
func (c CostConfig) TakerFeeDecimal() decimal.Decimal { return decimal.NewFromFloat(c.TakerFeeBps) }
