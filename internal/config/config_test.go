package config

import "testing"

func validConfig() Config {
	return Config{
		Symbols: []string{"ETHUSDT"},
		Signals: SignalsConfig{
			Weights:    SignalWeights{OBI: 0.4, Microprice: 0.3, Impact: 0.3},
			Thresholds: ThresholdsConfig{Theta1: 0.45, Theta2: 0.25},
		},
		Execution: ExecutionConfig{Strategy: "hybrid"},
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_RejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Signals.Weights.Impact = 0.1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for weights not summing to 1")
	}
}

func TestValidate_RejectsTheta1NotGreaterThanTheta2(t *testing.T) {
	cfg := validConfig()
	cfg.Signals.Thresholds.Theta1 = 0.2
	cfg.Signals.Thresholds.Theta2 = 0.25
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for theta_1 <= theta_2")
	}
}

func TestValidate_RejectsUnknownStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.Strategy = "market_maker"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown execution strategy")
	}
}

func TestValidate_RejectsEmptySymbols(t *testing.T) {
	cfg := validConfig()
	cfg.Symbols = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty symbols")
	}
}
